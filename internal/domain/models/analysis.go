package models

import "time"

// Timeframe is a bar width used by the technical analyzer.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// AllTimeframes lists analyzer timeframes from shortest to longest.
var AllTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h}

// Duration returns the bar width.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return time.Minute
	}
}

// Weight is the consensus weight of the timeframe.
func (tf Timeframe) Weight() float64 {
	switch tf {
	case TF1m:
		return 1
	case TF5m:
		return 2
	case TF15m:
		return 3
	case TF1h:
		return 4
	default:
		return 0
	}
}

type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type VolumeProfile struct {
	Trend    Sentiment `json:"trend"`
	Strength float64   `json:"strength"`
}

// Indicators holds one timeframe's technical readings.
type Indicators struct {
	RSI           float64       `json:"rsi"`
	MACD          MACD          `json:"macd"`
	Bollinger     Bollinger     `json:"bollinger"`
	VWAP          float64       `json:"vwap"`
	ATR           float64       `json:"atr"`
	OBV           float64       `json:"obv"`
	VolumeProfile VolumeProfile `json:"volumeProfile"`
}

// TimeframeAnalysis is the technical verdict for one timeframe.
type TimeframeAnalysis struct {
	Timeframe  Timeframe  `json:"timeframe"`
	Sentiment  Sentiment  `json:"sentiment"`
	Strength   float64    `json:"strength"`
	Indicators Indicators `json:"indicators"`
	Simulated  bool       `json:"simulated"`
	Reasoning  []string   `json:"reasoning,omitempty"`
}

// FactorName identifies a composite factor.
type FactorName string

const (
	FactorMomentum    FactorName = "momentum"
	FactorSentiment   FactorName = "sentiment"
	FactorInsider     FactorName = "insider"
	FactorTechnical   FactorName = "technical"
	FactorFundamental FactorName = "fundamental"
	FactorFlow        FactorName = "flow"
)

// FactorWeights are the composite blend weights.
var FactorWeights = map[FactorName]float64{
	FactorMomentum:    0.25,
	FactorSentiment:   0.20,
	FactorInsider:     0.15,
	FactorTechnical:   0.15,
	FactorFundamental: 0.15,
	FactorFlow:        0.10,
}

// FactorResult is one factor's contribution.
type FactorResult struct {
	Score       float64            `json:"score"`
	Confidence  float64            `json:"confidence"`
	Fallback    bool               `json:"fallback,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
}

// CompositeResult is the blended factor model output.
type CompositeResult struct {
	Sentiment  Sentiment                   `json:"sentiment"`
	Score      float64                     `json:"compositeScore"`
	Confidence float64                     `json:"confidence"`
	Factors    map[FactorName]FactorResult `json:"factors"`
	Reasoning  []string                    `json:"reasoning,omitempty"`
}

// Levels are the entry, stop and targets of a candidate.
type Levels struct {
	Entry       float64 `json:"entry"`
	StopLoss    float64 `json:"stopLoss"`
	TakeProfit1 float64 `json:"takeProfit1"`
	TakeProfit2 float64 `json:"takeProfit2"`
}

// Complete reports whether all levels are set and finite.
func (l Levels) Complete() bool {
	for _, v := range []float64{l.Entry, l.StopLoss, l.TakeProfit1, l.TakeProfit2} {
		if v <= 0 || v != v {
			return false
		}
	}
	return l.Entry != l.StopLoss && l.Entry != l.TakeProfit1
}

// RiskReward is |tp1-entry| / |entry-stop|.
func (l Levels) RiskReward() float64 {
	risk := l.Entry - l.StopLoss
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := l.TakeProfit1 - l.Entry
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}

// VolatilityRegime buckets realized volatility.
type VolatilityRegime string

const (
	VolatilityLow    VolatilityRegime = "low"
	VolatilityNormal VolatilityRegime = "normal"
	VolatilityHigh   VolatilityRegime = "high"
)

// MarketContext describes conditions at analysis time.
type MarketContext struct {
	MarketOpen       bool             `json:"marketOpen"`
	Trend            Sentiment        `json:"trend"`
	VolatilityRegime VolatilityRegime `json:"volatilityRegime"`
	RealizedVol      float64          `json:"realizedVol"`
}

// CandidateAnalysis is the combined result for one symbol at one instant.
type CandidateAnalysis struct {
	Instrument         Instrument          `json:"symbol"`
	Sentiment          Sentiment           `json:"sentiment"`
	Strength           float64             `json:"strength"`
	CurrentPrice       float64             `json:"currentPrice"`
	PriceChangePercent float64             `json:"priceChangePercent"`
	Levels             Levels              `json:"levels"`
	ATR                float64             `json:"atr"`
	MarketContext      MarketContext       `json:"marketContext"`
	Reasoning          []string            `json:"reasoning"`
	FinalStrength      float64             `json:"finalStrength"`
	RiskRewardRatio    float64             `json:"riskRewardRatio"`
	Timeframes         []TimeframeAnalysis `json:"timeframes,omitempty"`
	Composite          *CompositeResult    `json:"composite,omitempty"`
	AnalyzedAt         time.Time           `json:"analyzedAt"`
}

// Degraded reports whether any fallback path fed this candidate.
func (c CandidateAnalysis) Degraded() bool {
	for _, r := range c.Reasoning {
		if r == ReasonFallback || r == ReasonAPIDownFallback {
			return true
		}
	}
	return false
}

// Reasoning tags shared across analyzers.
const (
	ReasonFallback         = "fallback"
	ReasonAPIDownFallback  = "api_down_fallback"
	ReasonInsufficientData = "insufficient_data"
	ReasonCryptoSkip       = "crypto_skip"
)
