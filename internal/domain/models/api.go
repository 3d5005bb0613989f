package models

// Requests for the status HTTP endpoints.

type TipRequest struct {
	Horizon string `param:"horizon" json:"horizon" validate:"required,max=16"`
}

type StatusRequest struct {
	Verbose bool `query:"verbose" json:"verbose" default:"false"`
}

// SymbolRequest selects the bar width and how many trailing bars to return.
type SymbolRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required,max=20"`
	Timeframe string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h"`
	Limit     int    `query:"limit" json:"limit" validate:"gte=0,lte=500"`
}
