package technical

import (
	"fmt"
	"math"
	"math/rand"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/services/symbols"
	"SignalForge/pkg/util"
)

// profile parameterizes the simulated distribution for a category.
type profile struct {
	bullBias     float64
	baseStrength float64
	spread       float64
	volatility   float64
}

var profiles = map[symbols.Category]profile{
	symbols.MegaCap:  {bullBias: 0.58, baseStrength: 3.2, spread: 1.0, volatility: 0.015},
	symbols.Meme:     {bullBias: 0.50, baseStrength: 2.8, spread: 1.8, volatility: 0.05},
	symbols.ETF:      {bullBias: 0.55, baseStrength: 3.0, spread: 0.8, volatility: 0.01},
	symbols.Crypto:   {bullBias: 0.52, baseStrength: 3.0, spread: 1.5, volatility: 0.04},
	symbols.Standard: {bullBias: 0.50, baseStrength: 2.8, spread: 1.2, volatility: 0.02},
}

const neutralShare = 0.2

// timeframeScale damps shorter bars.
func timeframeScale(tf models.Timeframe) float64 {
	return 0.6 + 0.1*tf.Weight()
}

// Simulate draws a synthetic analysis for tf around price. The result is
// flagged Simulated and tagged simulated_<tf> in its reasoning.
func Simulate(rnd *rand.Rand, inst models.Instrument, tf models.Timeframe, price float64) models.TimeframeAnalysis {
	cat := symbols.CategoryOf(inst)
	p := profiles[cat]

	sentiment := models.Neutral
	if u := rnd.Float64(); u >= neutralShare {
		if rnd.Float64() < p.bullBias {
			sentiment = models.Bullish
		} else {
			sentiment = models.Bearish
		}
	}

	strength := (p.baseStrength + (rnd.Float64()*2-1)*p.spread/2) * timeframeScale(tf)
	if sentiment == models.Neutral {
		strength *= 0.5
	}
	strength = util.Clamp(strength, 0, 5)

	sign := sentiment.Sign()
	var rsi float64
	switch sentiment {
	case models.Bullish:
		rsi = 50 + rnd.Float64()*35
	case models.Bearish:
		rsi = 50 - rnd.Float64()*35
	default:
		rsi = 40 + rnd.Float64()*20
	}
	rsi = util.Clamp(rsi, 15, 85)

	barVol := p.volatility * math.Sqrt(tf.Duration().Hours())
	atr := math.Max(price*barVol, price*atrFloorRatio)
	line := sign * price * 0.001 * strength
	band := price * p.volatility

	return models.TimeframeAnalysis{
		Timeframe: tf,
		Sentiment: sentiment,
		Strength:  util.Round(strength, 2),
		Indicators: models.Indicators{
			RSI:       rsi,
			MACD:      models.MACD{Line: line, Signal: macdSignalRatio * line, Histogram: line - macdSignalRatio*line},
			Bollinger: models.Bollinger{Upper: price + band, Middle: price, Lower: price - band},
			VWAP:      price * (1 - sign*0.001),
			ATR:       atr,
			OBV:       sign * 1e5 * strength,
			VolumeProfile: models.VolumeProfile{
				Trend:    sentiment,
				Strength: util.Round(strength/5, 2),
			},
		},
		Simulated: true,
		Reasoning: []string{
			"simulated_" + string(tf),
			fmt.Sprintf("%s profile drew %s", cat, sentiment),
		},
	}
}
