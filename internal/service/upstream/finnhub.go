package upstream

import (
	"context"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/service"
	"SignalForge/internal/service/breaker"
)

const dateLayout = "2006-01-02"

// Finnhub serves company news, insider transactions and basic financials.
type Finnhub struct {
	base   *Base
	apiKey string
}

func NewFinnhub(apiKey string, o Options) *Finnhub {
	if o.Name == "" {
		o.Name = "finnhub"
	}
	return &Finnhub{base: NewBase(o), apiKey: apiKey}
}

func (f *Finnhub) query(kv ...string) map[string][]string {
	q := map[string][]string{"token": {f.apiKey}}
	for i := 0; i+1 < len(kv); i += 2 {
		q[kv[i]] = []string{kv[i+1]}
	}
	return q
}

type fhNews struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
}

// CompanyNews lists headlines between from and to.
func (f *Finnhub) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	var raw []fhNews
	q := f.query("symbol", symbol, "from", from.Format(dateLayout), "to", to.Format(dateLayout))
	if err := f.base.GetJSON(ctx, breaker.News, "/company-news", q, &raw); err != nil {
		return nil, err
	}
	out := make([]models.NewsItem, 0, len(raw))
	for _, n := range raw {
		out = append(out, models.NewsItem{
			Headline: n.Headline,
			Summary:  n.Summary,
			Source:   n.Source,
			URL:      n.URL,
			Datetime: time.Unix(n.Datetime, 0).UTC(),
		})
	}
	return out, nil
}

type fhInsider struct {
	Data []struct {
		Name            string  `json:"name"`
		Change          float64 `json:"change"`
		TransactionCode string  `json:"transactionCode"`
		TransactionDate string  `json:"transactionDate"`
		Price           float64 `json:"transactionPrice"`
	} `json:"data"`
}

// InsiderTransactions lists insider trades between from and to.
func (f *Finnhub) InsiderTransactions(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTransaction, error) {
	var raw fhInsider
	q := f.query("symbol", symbol, "from", from.Format(dateLayout), "to", to.Format(dateLayout))
	if err := f.base.GetJSON(ctx, breaker.Insider, "/stock/insider-transactions", q, &raw); err != nil {
		return nil, err
	}
	out := make([]models.InsiderTransaction, 0, len(raw.Data))
	for _, d := range raw.Data {
		at, _ := time.Parse(dateLayout, d.TransactionDate)
		out = append(out, models.InsiderTransaction{
			Name:            d.Name,
			Change:          d.Change,
			TransactionCode: d.TransactionCode,
			TransactionDate: at,
			Price:           d.Price,
		})
	}
	return out, nil
}

type fhMetric struct {
	Metric map[string]float64 `json:"metric"`
}

// Fundamentals reads the ratios used by the fundamental factor.
func (f *Finnhub) Fundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	var raw fhMetric
	q := f.query("symbol", symbol, "metric", "all")
	if err := f.base.GetJSON(ctx, breaker.Fundamentals, "/stock/metric", q, &raw); err != nil {
		return models.Fundamentals{}, err
	}
	m := raw.Metric
	pe := m["peTTM"]
	if pe == 0 {
		pe = m["peNormalizedAnnual"]
	}
	return models.Fundamentals{
		PERatio:       pe,
		RevenueGrowth: m["revenueGrowthTTMYoy"],
		ROE:           m["roeTTM"],
		DebtToEquity:  m["totalDebt/totalEquityAnnual"],
		Beta:          m["beta"],
	}, nil
}

// Pingers returns one cheap quote request per breaker this client feeds.
func (f *Finnhub) Pingers() []service.Pinger {
	q := f.query("symbol", "SPY")
	return []service.Pinger{
		ping{name: breaker.News, path: "/quote", query: q, base: f.base},
		ping{name: breaker.Insider, path: "/quote", query: q, base: f.base},
		ping{name: breaker.Fundamentals, path: "/quote", query: q, base: f.base},
	}
}
