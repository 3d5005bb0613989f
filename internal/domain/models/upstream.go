package models

import "time"

// NewsItem is a company news headline.
type NewsItem struct {
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
	Source   string    `json:"source"`
	URL      string    `json:"url"`
	Datetime time.Time `json:"datetime"`
}

// InsiderTransaction is one reported insider trade. Change is signed share count.
type InsiderTransaction struct {
	Name            string    `json:"name"`
	Change          float64   `json:"change"`
	TransactionCode string    `json:"transactionCode"`
	TransactionDate time.Time `json:"transactionDate"`
	Price           float64   `json:"transactionPrice"`
}

// Fundamentals holds the handful of ratios the fundamental factor reads.
// Zero means unknown.
type Fundamentals struct {
	PERatio       float64 `json:"peRatio"`
	RevenueGrowth float64 `json:"revenueGrowth"`
	ROE           float64 `json:"roe"`
	DebtToEquity  float64 `json:"debtToEquity"`
	Beta          float64 `json:"beta"`
}

// BreakerStatus is a point-in-time view of one upstream circuit breaker.
type BreakerStatus struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    uint32    `json:"failures"`
	LastFailure time.Time `json:"lastFailure,omitempty"`
	OpenedAt    time.Time `json:"openedAt,omitempty"`
}

// Open reports whether calls are currently short-circuited.
func (s BreakerStatus) Open() bool { return s.State == "open" }
