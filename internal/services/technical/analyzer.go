package technical

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

const (
	hourlyCandleLimit = 50
	candleTimeout     = 8 * time.Second
	voteTotal         = 4.5
	voteThreshold     = 0.25
	defaultStrength   = 1.0
)

// Config tunes the analyzer.
type Config struct {
	// Simulate enables the synthetic fallback for timeframes without enough bars.
	Simulate bool
	MinBars  int
}

// Analyzer produces one TimeframeAnalysis per timeframe from a symbol snapshot.
type Analyzer struct {
	cfg     Config
	candles repository.CandleSource
	log     *logger.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewAnalyzer builds an analyzer. candles may be nil; rnd nil seeds from the clock.
func NewAnalyzer(cfg Config, candles repository.CandleSource, rnd *rand.Rand, log *logger.Logger) *Analyzer {
	if cfg.MinBars <= 0 {
		cfg.MinBars = minBarsForAnalysis
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{cfg: cfg, candles: candles, rnd: rnd, log: log.Component("technical")}
}

// Analyze returns analyses for 1m, 5m, 15m and 1h in that order. It never fails:
// missing data yields a simulated or default neutral analysis.
func (a *Analyzer) Analyze(ctx context.Context, snap models.SymbolSnapshot) []models.TimeframeAnalysis {
	out := make([]models.TimeframeAnalysis, 0, len(models.AllTimeframes))
	for _, tf := range models.AllTimeframes {
		out = append(out, a.analyzeTimeframe(ctx, snap, tf))
	}
	return out
}

func (a *Analyzer) analyzeTimeframe(ctx context.Context, snap models.SymbolSnapshot, tf models.Timeframe) models.TimeframeAnalysis {
	price := snap.CurrentPrice
	bars := Bucket(snap.Instrument, snap.History, tf.Duration())
	var notes []string

	if len(bars) < a.cfg.MinBars && tf == models.TF1m && len(snap.History) >= a.cfg.MinBars {
		bars = TickBars(snap.Instrument, snap.History)
		notes = append(notes, "tick_bars_1m")
	}
	if len(bars) < a.cfg.MinBars && tf == models.TF1h && a.candles != nil {
		if hourly := a.hourlyCandles(ctx, snap.Instrument); len(hourly) >= a.cfg.MinBars {
			bars = hourly
			notes = append(notes, "hourly_candles")
		}
	}

	if len(bars) >= a.cfg.MinBars {
		res := Evaluate(tf, bars, price)
		res.Reasoning = append(notes, res.Reasoning...)
		return res
	}
	if a.cfg.Simulate && price > 0 {
		a.rndMu.Lock()
		defer a.rndMu.Unlock()
		return Simulate(a.rnd, snap.Instrument, tf, price)
	}
	return Default(tf, price)
}

func (a *Analyzer) hourlyCandles(ctx context.Context, inst models.Instrument) []models.Candle {
	ctx, cancel := context.WithTimeout(ctx, candleTimeout)
	defer cancel()
	candles, err := a.candles.HourlyCandles(ctx, inst, hourlyCandleLimit)
	if err != nil {
		a.log.Debug("hourly candles unavailable",
			logger.String("symbol", inst.String()),
			logger.Error(err))
		return nil
	}
	return candles
}

// Default is the neutral analysis used when a timeframe has no usable data.
func Default(tf models.Timeframe, price float64) models.TimeframeAnalysis {
	return models.TimeframeAnalysis{
		Timeframe: tf,
		Sentiment: models.Neutral,
		Strength:  defaultStrength,
		Indicators: models.Indicators{
			RSI:           50,
			Bollinger:     models.Bollinger{Upper: price, Middle: price, Lower: price},
			VWAP:          price,
			ATR:           price * atrFloorRatio,
			VolumeProfile: models.VolumeProfile{Trend: models.Neutral},
		},
		Reasoning: []string{models.ReasonInsufficientData},
	}
}

// Evaluate computes indicators over bars and turns them into a sentiment vote.
func Evaluate(tf models.Timeframe, bars []models.Candle, price float64) models.TimeframeAnalysis {
	ind := Compute(bars, price)
	sentiment, strength, reasons := Vote(ind, price)
	return models.TimeframeAnalysis{
		Timeframe:  tf,
		Sentiment:  sentiment,
		Strength:   strength,
		Indicators: ind,
		Reasoning:  reasons,
	}
}

// Vote scores indicators on a [-4.5, 4.5] scale and maps the ratio to a sentiment
// and a strength in [0,5].
func Vote(ind models.Indicators, price float64) (models.Sentiment, float64, []string) {
	var net float64
	var reasons []string

	switch {
	case ind.RSI > 55:
		net++
		reasons = append(reasons, fmt.Sprintf("RSI %.1f bullish", ind.RSI))
	case ind.RSI < 45:
		net--
		reasons = append(reasons, fmt.Sprintf("RSI %.1f bearish", ind.RSI))
	}
	if ind.RSI > 80 {
		net -= 0.5
		reasons = append(reasons, "RSI overbought")
	} else if ind.RSI < 20 {
		net += 0.5
		reasons = append(reasons, "RSI oversold")
	}

	if ind.MACD.Line > 0 {
		net++
		reasons = append(reasons, "MACD positive")
	} else if ind.MACD.Line < 0 {
		net--
		reasons = append(reasons, "MACD negative")
	}

	if ind.VWAP > 0 {
		if price > ind.VWAP {
			net++
			reasons = append(reasons, "price above VWAP")
		} else if price < ind.VWAP {
			net--
			reasons = append(reasons, "price below VWAP")
		}
	}

	if price > ind.Bollinger.Middle {
		net += 0.5
	} else if price < ind.Bollinger.Middle {
		net -= 0.5
	}
	if ind.Bollinger.Upper > ind.Bollinger.Lower {
		if price > ind.Bollinger.Upper {
			reasons = append(reasons, "price above upper Bollinger band")
		} else if price < ind.Bollinger.Lower {
			reasons = append(reasons, "price below lower Bollinger band")
		}
	}

	if ind.OBV > 0 {
		net += 0.5
	} else if ind.OBV < 0 {
		net -= 0.5
	}
	net += 0.5 * ind.VolumeProfile.Trend.Sign()
	if ind.VolumeProfile.Trend != models.Neutral {
		reasons = append(reasons, "volume confirms "+string(ind.VolumeProfile.Trend)+" move")
	}

	ratio := util.Finite(net / voteTotal)
	strength := util.Clamp(1+4*math.Abs(ratio), 0, 5)
	switch {
	case ratio >= voteThreshold:
		return models.Bullish, util.Round(strength, 2), reasons
	case ratio <= -voteThreshold:
		return models.Bearish, util.Round(strength, 2), reasons
	default:
		return models.Neutral, util.Round(math.Min(strength, 2), 2), reasons
	}
}
