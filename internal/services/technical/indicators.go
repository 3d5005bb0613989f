package technical

import (
	"math"

	"SignalForge/internal/domain/models"
)

const (
	rsiPeriod          = 14
	macdFastPeriod     = 12
	macdSlowPeriod     = 26
	macdSignalRatio    = 0.9
	bollingerPeriod    = 20
	bollingerStdDevs   = 2.0
	atrPeriod          = 14
	atrFloorRatio      = 0.001
	volumeProfileBars  = 10
	minBarsForAnalysis = atrPeriod + 1
)

func closes(bars []models.Candle) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// RSI is Wilder's relative strength index over the closes. A flat series reads 50.
func RSI(values []float64, period int) float64 {
	if len(values) <= period {
		return 50
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		avgGain = (avgGain*float64(period-1) + math.Max(delta, 0)) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + math.Max(-delta, 0)) / float64(period)
	}
	return rsiFromAvg(avgGain, avgLoss)
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACDOf returns EMA12-EMA26 with the simplified signal line 0.9*MACD.
// Short series use whatever closes are available.
func MACDOf(values []float64) models.MACD {
	if len(values) == 0 {
		return models.MACD{}
	}
	fast := emaSeries(values, macdFastPeriod)
	slow := emaSeries(values, macdSlowPeriod)
	line := fast[len(fast)-1] - slow[len(slow)-1]
	signal := macdSignalRatio * line
	return models.MACD{Line: line, Signal: signal, Histogram: line - signal}
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) == 1 {
		return mean, 0
	}
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}

// BollingerOf computes the 20-period, 2 sigma bands over the last closes.
func BollingerOf(values []float64) models.Bollinger {
	if len(values) > bollingerPeriod {
		values = values[len(values)-bollingerPeriod:]
	}
	mean, std := meanStd(values)
	return models.Bollinger{
		Upper:  mean + bollingerStdDevs*std,
		Middle: mean,
		Lower:  mean - bollingerStdDevs*std,
	}
}

// VWAP is sum(typical*volume)/sum(volume). Without volume it is the mean typical price.
func VWAP(bars []models.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	var pv, vol, typ float64
	for _, b := range bars {
		tp := b.TypicalPrice()
		pv += tp * b.Volume
		vol += b.Volume
		typ += tp
	}
	if vol == 0 {
		return typ / float64(len(bars))
	}
	return pv / vol
}

// ATR is the mean true range over the last 14 bars, floored at 0.1% of price.
func ATR(bars []models.Candle, price float64) float64 {
	floor := price * atrFloorRatio
	if len(bars) == 0 {
		return floor
	}
	start := 0
	if len(bars) > atrPeriod {
		start = len(bars) - atrPeriod
	}
	var sum float64
	n := 0
	for i := start; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(bars[i].High-prev), math.Abs(bars[i].Low-prev)))
		}
		sum += tr
		n++
	}
	atr := sum / float64(n)
	if math.IsNaN(atr) || atr < floor {
		return floor
	}
	return atr
}

// OBV accumulates volume signed by the close-to-close direction.
func OBV(bars []models.Candle) float64 {
	var obv float64
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			obv -= bars[i].Volume
		}
	}
	return obv
}

// VolumeProfileOf looks at the last 10 bars and reports whether rising volume
// accompanies up moves (bullish) or down moves (bearish).
func VolumeProfileOf(bars []models.Candle) models.VolumeProfile {
	if len(bars) > volumeProfileBars {
		bars = bars[len(bars)-volumeProfileBars:]
	}
	if len(bars) < 2 {
		return models.VolumeProfile{Trend: models.Neutral}
	}
	var up, down int
	for i := 1; i < len(bars); i++ {
		if bars[i].Volume <= bars[i-1].Volume {
			continue
		}
		switch {
		case bars[i].Close > bars[i-1].Close:
			up++
		case bars[i].Close < bars[i-1].Close:
			down++
		}
	}
	strength := math.Abs(float64(up-down)) / float64(len(bars)-1)
	switch {
	case up > down:
		return models.VolumeProfile{Trend: models.Bullish, Strength: strength}
	case down > up:
		return models.VolumeProfile{Trend: models.Bearish, Strength: strength}
	default:
		return models.VolumeProfile{Trend: models.Neutral}
	}
}

// Compute derives every indicator for a bar series.
func Compute(bars []models.Candle, price float64) models.Indicators {
	cl := closes(bars)
	return models.Indicators{
		RSI:           RSI(cl, rsiPeriod),
		MACD:          MACDOf(cl),
		Bollinger:     BollingerOf(cl),
		VWAP:          VWAP(bars),
		ATR:           ATR(bars, price),
		OBV:           OBV(bars),
		VolumeProfile: VolumeProfileOf(bars),
	}
}
