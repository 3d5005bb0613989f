package models

import "strings"

// AssetClass separates equities from crypto pairs.
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassCrypto AssetClass = "crypto"
)

// Instrument is a tradeable identifier. Equities are bare tickers, crypto uses BASE/QUOTE.
type Instrument string

// Class derives the asset class from the pair separator.
func (i Instrument) Class() AssetClass {
	if strings.Contains(string(i), "/") {
		return ClassCrypto
	}
	return ClassEquity
}

// IsCrypto reports whether the instrument is a crypto pair.
func (i Instrument) IsCrypto() bool { return i.Class() == ClassCrypto }

// Base returns the base asset for pairs, or the ticker itself.
func (i Instrument) Base() string {
	s := string(i)
	if idx := strings.Index(s, "/"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func (i Instrument) String() string { return string(i) }

// Sentiment is the direction of an analysis or tip.
type Sentiment string

const (
	Bullish Sentiment = "bullish"
	Bearish Sentiment = "bearish"
	Neutral Sentiment = "neutral"
)

// Sign returns +1, -1 or 0.
func (s Sentiment) Sign() float64 {
	switch s {
	case Bullish:
		return 1
	case Bearish:
		return -1
	default:
		return 0
	}
}

// Opposite returns the mirrored sentiment; neutral stays neutral.
func (s Sentiment) Opposite() Sentiment {
	switch s {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return Neutral
	}
}
