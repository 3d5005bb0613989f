package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

const quoteAsset = "USDT"

func validate(ev models.PriceEvent) error {
	if ev.Instrument == "" {
		return fmt.Errorf("missing instrument: %w", drepo.ErrMalformedMessage)
	}
	if ev.Price <= 0 {
		return fmt.Errorf("%s price %v: %w", ev.Instrument, ev.Price, drepo.ErrMalformedMessage)
	}
	if ev.Volume < 0 {
		return fmt.Errorf("%s volume %v: %w", ev.Instrument, ev.Volume, drepo.ErrMalformedMessage)
	}
	return nil
}

// CryptoInstrument maps an exchange pair such as BTCUSDT to BTC/USD.
func CryptoInstrument(raw string) (models.Instrument, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	base, ok := strings.CutSuffix(raw, quoteAsset)
	if !ok || base == "" {
		return "", false
	}
	return models.Instrument(base + "/USD"), true
}

// ExchangePair maps BTC/USD to BTCUSDT.
func ExchangePair(inst models.Instrument) string {
	return strings.ToUpper(inst.Base()) + quoteAsset
}

// parseDecimal reads an exchange decimal string as float64.
func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("decimal %q: %w", s, drepo.ErrMalformedMessage)
	}
	f, _ := d.Float64()
	return f, nil
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
