package models

import "time"

// Source tags which feed produced an event.
type Source string

const (
	SourceEquityA Source = "eqA"
	SourceEquityB Source = "eqB"
	SourceCrypto  Source = "crypto"
)

// PriceEvent is a normalized tick produced by a feed adapter.
type PriceEvent struct {
	Instrument Instrument `json:"instrument"`
	Price      float64    `json:"price"`
	Volume     float64    `json:"volume"`
	Timestamp  time.Time  `json:"timestamp"`
	Source     Source     `json:"source"`
}

// Quote is a top-of-book update. Only feed B carries quotes.
type Quote struct {
	Instrument Instrument
	BidPrice   float64
	BidSize    float64
	AskPrice   float64
	AskSize    float64
	Timestamp  time.Time
}

// PricePoint is one entry of a symbol's rolling history.
type PricePoint struct {
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// SymbolSnapshot is a point-in-time copy of one symbol's cached state.
type SymbolSnapshot struct {
	Instrument    Instrument
	CurrentPrice  float64
	PreviousPrice float64
	History       []PricePoint
	LastUpdate    time.Time
	LastAnalysis  time.Time
	CooldownUntil time.Time
}

// PriceChangePercent compares current to previous price.
func (s SymbolSnapshot) PriceChangePercent() float64 {
	if s.PreviousPrice <= 0 {
		return 0
	}
	return (s.CurrentPrice - s.PreviousPrice) / s.PreviousPrice * 100
}

// Closes returns the history prices in order.
func (s SymbolSnapshot) Closes() []float64 {
	out := make([]float64, len(s.History))
	for i, p := range s.History {
		out[i] = p.Price
	}
	return out
}
