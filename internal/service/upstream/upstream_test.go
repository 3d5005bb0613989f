package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	rmodels "github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/service/breaker"
	xhttp "SignalForge/pkg/http"
)

var day = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

func TestFinnhubEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/company-news":
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			assert.Equal(t, "2024-06-07", r.URL.Query().Get("from"))
			_, _ = w.Write([]byte(`[{"headline":"Apple surges","source":"wire","datetime":1718000000}]`))
		case "/stock/insider-transactions":
			_, _ = w.Write([]byte(`{"data":[{"name":"Cook","change":-5000,"transactionCode":"S","transactionDate":"2024-05-01","transactionPrice":190}]}`))
		case "/stock/metric":
			assert.Equal(t, "all", r.URL.Query().Get("metric"))
			_, _ = w.Write([]byte(`{"metric":{"peNormalizedAnnual":28.5,"revenueGrowthTTMYoy":6.1,"roeTTM":150,"totalDebt/totalEquityAnnual":1.8,"beta":1.2}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFinnhub("key", Options{BaseURL: srv.URL})
	ctx := context.Background()

	news, err := f.CompanyNews(ctx, "AAPL", day.AddDate(0, 0, -3), day)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "Apple surges", news[0].Headline)
	assert.Equal(t, time.Unix(1718000000, 0).UTC(), news[0].Datetime)

	txs, err := f.InsiderTransactions(ctx, "AAPL", day.AddDate(0, 0, -90), day)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, -5000.0, txs[0].Change)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), txs[0].TransactionDate)

	fund, err := f.Fundamentals(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.Fundamentals{PERatio: 28.5, RevenueGrowth: 6.1, ROE: 150, DebtToEquity: 1.8, Beta: 1.2}, fund)
}

func TestNewsOutageOpensBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := breaker.NewRegistry(nil, nil, nil)
	f := NewFinnhub("key", Options{BaseURL: srv.URL, Breakers: reg})
	ctx := context.Background()

	for i := 0; i < breaker.MaxFailures; i++ {
		_, err := f.CompanyNews(ctx, "NVDA", day, day)
		var se *xhttp.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Code)
		assert.True(t, se.Temporary())
	}
	assert.True(t, reg.IsOpen(breaker.News))

	_, err := f.CompanyNews(ctx, "NVDA", day, day)
	assert.ErrorIs(t, err, drepo.ErrUpstreamUnavailable)
	assert.Equal(t, int32(breaker.MaxFailures), hits.Load())

	// other upstreams are unaffected
	assert.False(t, reg.IsOpen(breaker.Insider))
}

func TestBinanceKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/klines":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "1h", r.URL.Query().Get("interval"))
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[
				[1718000000000,"60000.0","60500.5","59900.0","60400.0","12.5",1718003599999,"0",10,"0","0","0"],
				[1718003600000,"60400.0","61000.0","60300.0","60900.0","8.25",1718007199999,"0",10,"0","0","0"]
			]`))
		case "/api/v3/ping":
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	b := NewBinance(Options{BaseURL: srv.URL})
	candles, err := b.HourlyCandles(context.Background(), "BTC/USD", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 60500.5, candles[0].High)
	assert.Equal(t, 8.25, candles[1].Volume)
	assert.Equal(t, time.UnixMilli(1718000000000).UTC(), candles[0].Bucket)

	_, err = b.HourlyCandles(context.Background(), "AAPL", 2)
	assert.ErrorIs(t, err, drepo.ErrNotFound)

	p := b.Pinger()
	assert.Equal(t, breaker.CryptoOHLCV, p.Name())
	assert.NoError(t, p.Ping(context.Background()))
}

func TestParseKlineRejectsGarbage(t *testing.T) {
	_, err := parseKline("ETH/USD", nil)
	assert.ErrorIs(t, err, drepo.ErrMalformedMessage)
}

func TestCandleFromAgg(t *testing.T) {
	ts := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	c := candleFromAgg("AAPL", rmodels.Agg{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, Timestamp: rmodels.Millis(ts)})
	assert.Equal(t, models.Candle{Bucket: ts, Symbol: "AAPL", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}, c)
}

func TestPolygonNeedsKey(t *testing.T) {
	_, err := NewPolygon("", Options{}).HourlyCandles(context.Background(), "AAPL", 10)
	assert.ErrorIs(t, err, drepo.ErrConfigMissing)
}

type stubSource struct {
	candles []models.Candle
	err     error
	calls   int
}

func (s *stubSource) HourlyCandles(context.Context, models.Instrument, int) ([]models.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func TestCandleRouter(t *testing.T) {
	bar := []models.Candle{{High: 2, Low: 1, Close: 1.5}}
	equity := &stubSource{err: errors.New("polygon down")}
	crypto := &stubSource{candles: bar}
	archive := &stubSource{candles: bar}
	r := NewCandleRouter(equity, crypto, archive, nil)

	got, err := r.HourlyCandles(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	assert.Equal(t, bar, got)
	assert.Equal(t, 1, archive.calls)

	_, err = r.HourlyCandles(context.Background(), "ETH/USD", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, crypto.calls)
	assert.Equal(t, 1, archive.calls)

	empty := NewCandleRouter(nil, nil, &stubSource{}, nil)
	_, err = empty.HourlyCandles(context.Background(), "MSFT", 10)
	assert.ErrorIs(t, err, drepo.ErrInsufficientData)
}

func TestFinnhubPingers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		_, _ = w.Write([]byte(`{"c":500}`))
	}))
	defer srv.Close()

	pingers := NewFinnhub("key", Options{BaseURL: srv.URL}).Pingers()
	require.Len(t, pingers, 3)
	for _, p := range pingers {
		assert.NoError(t, p.Ping(context.Background()))
	}
}
