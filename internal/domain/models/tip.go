package models

import "time"

// Horizon is one of the three public latest-tip slots.
type Horizon string

const (
	HorizonShort Horizon = "short_term"
	HorizonMid   Horizon = "mid_term"
	HorizonLong  Horizon = "long_term"
)

// AllHorizons is ordered short to long; ties in slot selection resolve in this order.
var AllHorizons = []Horizon{HorizonShort, HorizonMid, HorizonLong}

// Valid reports whether h is a known slot.
func (h Horizon) Valid() bool {
	return h == HorizonShort || h == HorizonMid || h == HorizonLong
}

// CompanyMeta is static display metadata for an instrument.
type CompanyMeta struct {
	Name                string `json:"name"`
	Sector              string `json:"sector"`
	BusinessDescription string `json:"businessDescription"`
	LogoPath            string `json:"logoPath"`
	IsCrypto            bool   `json:"isCrypto"`
}

// InstitutionalGrade summarizes the composite result on an emitted tip.
type InstitutionalGrade struct {
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Sentiment  Sentiment `json:"sentiment"`
}

// Tip is an emitted recommendation.
type Tip struct {
	Instrument         Instrument          `json:"symbol"`
	Sentiment          Sentiment           `json:"sentiment"`
	Strength           float64             `json:"strength"`
	FinalStrength      float64             `json:"finalStrength"`
	Confidence         float64             `json:"confidence"`
	CurrentPrice       float64             `json:"currentPrice"`
	PriceChangePercent float64             `json:"priceChangePercent"`
	Levels             Levels              `json:"levels"`
	RiskRewardRatio    float64             `json:"riskRewardRatio"`
	MarketContext      MarketContext       `json:"marketContext"`
	Reasoning          []string            `json:"reasoning"`
	Horizon            Horizon             `json:"horizon"`
	Company            *CompanyMeta        `json:"companyMeta,omitempty"`
	Institutional      *InstitutionalGrade `json:"institutionalGrade,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	ExpiresAt          time.Time           `json:"expiresAt"`
	TrackingID         string              `json:"trackingId"`
	Source             string              `json:"source"`
}

// TipConfidence maps final strength to a display confidence.
func TipConfidence(finalStrength float64) float64 {
	c := finalStrength * 19
	if c > 95 {
		return 95
	}
	if c < 0 {
		return 0
	}
	return c
}

// StoredTip is a tip plus server-side timestamps from the store.
type StoredTip struct {
	Tip       Tip       `json:"tip"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AppStats is the global stats document.
type AppStats struct {
	GeneratedTips int64     `json:"generatedTips"`
	SuccessRate   int       `json:"successRate"`
	AIAccuracy    int       `json:"aiAccuracy"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Notification is the broadcast message on the tips topic. Data values are all strings.
type Notification struct {
	Topic string            `json:"topic"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// AnalyticsRecord is appended once per broadcast.
type AnalyticsRecord struct {
	MessageID  string    `json:"messageId"`
	Topic      string    `json:"topic"`
	Horizon    Horizon   `json:"horizon"`
	Symbol     string    `json:"symbol"`
	Sentiment  Sentiment `json:"sentiment"`
	Strength   float64   `json:"strength"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	TrackingID string    `json:"trackingId"`
	CreatedAt  time.Time `json:"createdAt"`
}
