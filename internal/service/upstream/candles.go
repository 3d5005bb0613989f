package upstream

import (
	"context"
	"errors"
	"fmt"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// CandleRouter sends equities to one source and crypto to another, and falls
// back to the archive when the primary fails or returns nothing.
type CandleRouter struct {
	equity  drepo.CandleSource
	crypto  drepo.CandleSource
	archive drepo.CandleSource
	log     *logger.Logger
}

// NewCandleRouter accepts nil sources; a missing source is skipped.
func NewCandleRouter(equity, crypto, archive drepo.CandleSource, log *logger.Logger) *CandleRouter {
	if log == nil {
		log = logger.Nop()
	}
	return &CandleRouter{equity: equity, crypto: crypto, archive: archive, log: log.Component("candles")}
}

func (r *CandleRouter) HourlyCandles(ctx context.Context, inst models.Instrument, limit int) ([]models.Candle, error) {
	primary := r.equity
	if inst.IsCrypto() {
		primary = r.crypto
	}
	var errs []error
	if primary != nil {
		candles, err := primary.HourlyCandles(ctx, inst, limit)
		if err == nil && len(candles) > 0 {
			return candles, nil
		}
		if err != nil {
			errs = append(errs, err)
			r.log.Debug("primary candle source failed",
				logger.String("symbol", inst.String()),
				logger.Error(err))
		}
	}
	if r.archive != nil {
		candles, err := r.archive.HourlyCandles(ctx, inst, limit)
		if err == nil && len(candles) > 0 {
			return candles, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("candles for %s: %w", inst, drepo.ErrInsufficientData)
	}
	return nil, errors.Join(errs...)
}
