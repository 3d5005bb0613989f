package upstream

import (
	"context"
	"fmt"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/domain/service"
	"SignalForge/internal/service/breaker"
)

// equity sessions leave gaps, so look back far enough to fill limit bars
const polygonLookbackFactor = 4

// Polygon serves hourly aggregates for equities.
type Polygon struct {
	base   *Base
	apiKey string
	rest   *polygonrest.Client
	now    func() time.Time
}

func NewPolygon(apiKey string, o Options) *Polygon {
	if o.Name == "" {
		o.Name = "polygon"
	}
	base := NewBase(o)
	return &Polygon{
		base:   base,
		apiKey: apiKey,
		rest:   polygonrest.NewWithClient(apiKey, base.client.HTTPClient()),
		now:    time.Now,
	}
}

// HourlyCandles returns up to limit 1h aggregates, oldest first.
func (p *Polygon) HourlyCandles(ctx context.Context, inst models.Instrument, limit int) ([]models.Candle, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("polygon api key: %w", drepo.ErrConfigMissing)
	}
	if inst.IsCrypto() {
		return nil, fmt.Errorf("polygon aggs for %s: %w", inst, drepo.ErrNotFound)
	}
	var out []models.Candle
	err := p.base.guard(ctx, breaker.OHLCV, "list_aggs", func(ctx context.Context) error {
		out = out[:0]
		to := p.now()
		from := to.Add(-time.Duration(limit*polygonLookbackFactor) * time.Hour)
		params := &rmodels.ListAggsParams{
			Ticker:     inst.String(),
			Timespan:   rmodels.Hour,
			Multiplier: 1,
			From:       rmodels.Millis(from),
			To:         rmodels.Millis(to),
		}
		asc := rmodels.Asc
		adj := true
		params.Order = &asc
		params.Adjusted = &adj

		iter := p.rest.ListAggs(ctx, params)
		for iter.Next() {
			out = append(out, candleFromAgg(inst, iter.Item()))
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func candleFromAgg(inst models.Instrument, a rmodels.Agg) models.Candle {
	return models.Candle{
		Bucket: time.Time(a.Timestamp).UTC(),
		Symbol: inst.String(),
		Open:   a.Open,
		High:   a.High,
		Low:    a.Low,
		Close:  a.Close,
		Volume: a.Volume,
	}
}

type polygonPinger struct{ p *Polygon }

func (pp polygonPinger) Name() string { return breaker.OHLCV }

func (pp polygonPinger) Ping(ctx context.Context) error {
	if pp.p.apiKey == "" {
		return fmt.Errorf("polygon api key: %w", drepo.ErrConfigMissing)
	}
	to := pp.p.now()
	lim := 1
	params := &rmodels.ListAggsParams{
		Ticker:     "SPY",
		Timespan:   rmodels.Day,
		Multiplier: 1,
		From:       rmodels.Millis(to.AddDate(0, 0, -7)),
		To:         rmodels.Millis(to),
		Limit:      &lim,
	}
	iter := pp.p.rest.ListAggs(ctx, params)
	for iter.Next() {
	}
	return iter.Err()
}

// Pinger requests one daily bar.
func (p *Polygon) Pinger() service.Pinger { return polygonPinger{p: p} }
