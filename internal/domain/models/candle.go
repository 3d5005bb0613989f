package models

import "time"

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TypicalPrice is (high+low+close)/3.
func (c Candle) TypicalPrice() float64 { return (c.High + c.Low + c.Close) / 3 }
