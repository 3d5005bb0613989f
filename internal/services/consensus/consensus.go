package consensus

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/services/features"
	"SignalForge/internal/services/technical"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

const (
	stopMultiple = 2.0
	tp1Multiple  = 5.0
	tp2Multiple  = 8.0

	voteMargin         = 2
	bigMovePercent     = 2.0
	bigMoveBonus       = 0.5
	trendBonus         = 0.3
	highVolPenalty     = 0.2
	sessionBonus       = 0.2
	compositeAgreement = 0.5
	overrideGap        = 1.0

	atrFloorRatio = 0.001
	candleLimit   = 50
	candleTimeout = 8 * time.Second
)

// Engine combines timeframe analyses and the composite result into a candidate.
type Engine struct {
	candles    repository.CandleSource
	marketOpen func(time.Time) bool
	log        *logger.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New builds an engine. candles may be nil; rnd breaks direction ties for neutral levels.
func New(candles repository.CandleSource, rnd *rand.Rand, log *logger.Logger) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{candles: candles, marketOpen: util.IsMarketOpen, rnd: rnd, log: log.Component("consensus")}
}

// WithMarketHours replaces the market-hours policy.
func (e *Engine) WithMarketHours(fn func(time.Time) bool) *Engine {
	e.marketOpen = fn
	return e
}

// Build produces the candidate for snap at now.
func (e *Engine) Build(ctx context.Context, snap models.SymbolSnapshot, tfs []models.TimeframeAnalysis, comp *models.CompositeResult, now time.Time) models.CandidateAnalysis {
	price := snap.CurrentPrice
	sentiment, bull, bear := Vote(tfs)
	strength := WeightedStrength(tfs)
	reasons := []string{fmt.Sprintf("timeframes %d bullish / %d bearish", bull, bear)}

	if comp != nil {
		if comp.Sentiment == sentiment {
			strength += compositeAgreement
			reasons = append(reasons, "composite agrees")
		}
		if comp.Score > strength+overrideGap {
			strength = comp.Score
			sentiment = comp.Sentiment
			reasons = append(reasons, "composite override")
		}
	}

	atr, atrSource := e.atr(ctx, snap, tfs)
	reasons = append(reasons, "atr_"+atrSource)

	mctx := features.Context(snap, now, e.marketOpen)
	change := snap.PriceChangePercent()

	direction := sentiment
	if direction == models.Neutral {
		direction = e.neutralDirection(snap)
	}
	levels := Levels(price, atr, direction)

	final := strength
	if math.Abs(change) > bigMovePercent {
		final += bigMoveBonus
	}
	if sentiment != models.Neutral && mctx.Trend == sentiment {
		final += trendBonus
	}
	if mctx.VolatilityRegime == models.VolatilityHigh {
		final -= highVolPenalty
	}
	if mctx.MarketOpen {
		final += sessionBonus
	}
	final = util.Clamp(util.Finite(final), 0, 5)

	reasons = append(reasons, tfReasons(tfs)...)
	if comp != nil {
		for _, r := range comp.Reasoning {
			if r == models.ReasonFallback || r == models.ReasonAPIDownFallback {
				reasons = append(reasons, r)
			}
		}
	}

	return models.CandidateAnalysis{
		Instrument:         snap.Instrument,
		Sentiment:          sentiment,
		Strength:           util.Round(util.Clamp(strength, 0, 5), 2),
		CurrentPrice:       price,
		PriceChangePercent: util.Round(change, 4),
		Levels:             levels,
		ATR:                atr,
		MarketContext:      mctx,
		Reasoning:          dedupe(reasons),
		FinalStrength:      util.Round(final, 2),
		RiskRewardRatio:    util.Round(levels.RiskReward(), 2),
		Timeframes:         tfs,
		Composite:          comp,
		AnalyzedAt:         now,
	}
}

// Vote is the timeframe majority vote. A side wins only with a margin of two.
func Vote(tfs []models.TimeframeAnalysis) (models.Sentiment, int, int) {
	var bull, bear int
	for _, a := range tfs {
		switch a.Sentiment {
		case models.Bullish:
			bull++
		case models.Bearish:
			bear++
		}
	}
	switch {
	case bull-bear >= voteMargin:
		return models.Bullish, bull, bear
	case bear-bull >= voteMargin:
		return models.Bearish, bull, bear
	default:
		return models.Neutral, bull, bear
	}
}

// WeightedStrength averages strengths with weights 1m:1, 5m:2, 15m:3, 1h:4.
// Timeframes without data are left out unless nothing else is available.
func WeightedStrength(tfs []models.TimeframeAnalysis) float64 {
	var num, den float64
	for _, a := range tfs {
		if isDefault(a) {
			continue
		}
		num += a.Strength * a.Timeframe.Weight()
		den += a.Timeframe.Weight()
	}
	if den == 0 {
		for _, a := range tfs {
			num += a.Strength * a.Timeframe.Weight()
			den += a.Timeframe.Weight()
		}
	}
	if den == 0 {
		return 0
	}
	return util.Finite(num / den)
}

// Levels places stop and targets at 2, 5 and 8 ATR from price along direction.
// A neutral direction is treated as bullish.
func Levels(price, atr float64, direction models.Sentiment) models.Levels {
	sign := 1.0
	if direction == models.Bearish {
		sign = -1
	}
	return models.Levels{
		Entry:       price,
		StopLoss:    price - sign*stopMultiple*atr,
		TakeProfit1: price + sign*tp1Multiple*atr,
		TakeProfit2: price + sign*tp2Multiple*atr,
	}
}

// atr prefers live timeframe readings from the longest bar down, then hourly
// candles from the candle source, then 0.1% of price.
func (e *Engine) atr(ctx context.Context, snap models.SymbolSnapshot, tfs []models.TimeframeAnalysis) (float64, string) {
	price := snap.CurrentPrice
	floor := price * atrFloorRatio
	for i := len(models.AllTimeframes) - 1; i >= 0; i-- {
		tf := models.AllTimeframes[i]
		for _, a := range tfs {
			if a.Timeframe == tf && !a.Simulated && !isDefault(a) && a.Indicators.ATR > 0 {
				return math.Max(a.Indicators.ATR, floor), string(tf)
			}
		}
	}
	if e.candles != nil {
		cctx, cancel := context.WithTimeout(ctx, candleTimeout)
		defer cancel()
		candles, err := e.candles.HourlyCandles(cctx, snap.Instrument, candleLimit)
		if err != nil {
			e.log.Debug("ohlcv fallback unavailable",
				logger.String("symbol", snap.Instrument.String()),
				logger.Error(err))
		} else if len(candles) > 1 {
			return technical.ATR(candles, price), "ohlcv"
		}
	}
	return floor, "floor"
}

// neutralDirection follows short-term momentum; a flat tape is a coin flip.
func (e *Engine) neutralDirection(snap models.SymbolSnapshot) models.Sentiment {
	roc := features.RateOfChange(snap.History, 5)
	if roc == 0 {
		roc = snap.PriceChangePercent()
	}
	switch {
	case roc > 0:
		return models.Bullish
	case roc < 0:
		return models.Bearish
	}
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	if e.rnd.Intn(2) == 0 {
		return models.Bullish
	}
	return models.Bearish
}

func isDefault(a models.TimeframeAnalysis) bool {
	for _, r := range a.Reasoning {
		if r == models.ReasonInsufficientData {
			return true
		}
	}
	return false
}

func tfReasons(tfs []models.TimeframeAnalysis) []string {
	var out []string
	synthetic := 0
	for _, a := range tfs {
		if a.Simulated {
			out = append(out, "simulated_"+string(a.Timeframe))
			synthetic++
		} else if isDefault(a) {
			synthetic++
		}
	}
	if len(tfs) > 0 && synthetic == len(tfs) {
		out = append(out, models.ReasonFallback)
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
