package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/domain/service"
	"SignalForge/internal/service/breaker"
	"SignalForge/internal/service/feed"
)

// Binance serves hourly klines for crypto pairs.
type Binance struct {
	base *Base
}

func NewBinance(o Options) *Binance {
	if o.Name == "" {
		o.Name = "binance"
	}
	return &Binance{base: NewBase(o)}
}

// HourlyCandles returns up to limit 1h klines, oldest first.
func (b *Binance) HourlyCandles(ctx context.Context, inst models.Instrument, limit int) ([]models.Candle, error) {
	if !inst.IsCrypto() {
		return nil, fmt.Errorf("binance klines for %s: %w", inst, drepo.ErrNotFound)
	}
	q := map[string][]string{
		"symbol":   {feed.ExchangePair(inst)},
		"interval": {"1h"},
		"limit":    {strconv.Itoa(limit)},
	}
	var rows [][]json.RawMessage
	if err := b.base.GetJSON(ctx, breaker.CryptoOHLCV, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := parseKline(inst, r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...].
func parseKline(inst models.Instrument, r []json.RawMessage) (models.Candle, error) {
	if len(r) < 6 {
		return models.Candle{}, fmt.Errorf("kline has %d fields: %w", len(r), drepo.ErrMalformedMessage)
	}
	var openMs int64
	if err := json.Unmarshal(r[0], &openMs); err != nil {
		return models.Candle{}, fmt.Errorf("kline open time: %w", drepo.ErrMalformedMessage)
	}
	vals := make([]float64, 5)
	for i := range vals {
		var s string
		if err := json.Unmarshal(r[i+1], &s); err != nil {
			return models.Candle{}, fmt.Errorf("kline field %d: %w", i+1, drepo.ErrMalformedMessage)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("kline field %d: %w", i+1, drepo.ErrMalformedMessage)
		}
		vals[i], _ = d.Float64()
	}
	return models.Candle{
		Bucket: time.UnixMilli(openMs).UTC(),
		Symbol: inst.String(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Pinger pings the exchange.
func (b *Binance) Pinger() service.Pinger {
	return ping{name: breaker.CryptoOHLCV, path: "/api/v3/ping", base: b.base}
}
