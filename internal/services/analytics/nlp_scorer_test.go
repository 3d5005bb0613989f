package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
)

type constScorer struct{ score, conf float64 }

func (c constScorer) Score(context.Context, []models.NewsItem) (float64, float64, error) {
	return c.score, c.conf, nil
}

var headlines = []models.NewsItem{
	{Headline: "Apple beats estimates", Summary: "Record services revenue"},
	{Headline: "Analysts upgrade Apple"},
}

func TestNLPScorerClampsServiceResult(t *testing.T) {
	var got scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentiment", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(scoreResponse{Score: 3.1, Confidence: 120})
	}))
	defer srv.Close()

	s := NewNLPScorer(NLPConfig{BaseURL: srv.URL}, constScorer{-1, 10}, nil)
	score, conf, err := s.Score(context.Background(), headlines)
	require.NoError(t, err)
	assert.Equal(t, 2.0, score)
	assert.Equal(t, 95.0, conf)
	assert.Equal(t, []string{"Apple beats estimates. Record services revenue", "Analysts upgrade Apple"}, got.Texts)
}

func TestNLPScorerRetriesThenFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		calls int32
	}{
		{"server error is retried", http.StatusBadGateway, 3},
		{"client error is not", http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			s := NewNLPScorer(NLPConfig{BaseURL: srv.URL, Attempts: 3}, constScorer{-1, 10}, nil)
			score, conf, err := s.Score(context.Background(), headlines)
			require.NoError(t, err)
			assert.Equal(t, -1.0, score)
			assert.Equal(t, 10.0, conf)
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}

func TestNLPScorerWithoutFallbackReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewNLPScorer(NLPConfig{BaseURL: srv.URL, Attempts: 1}, nil, nil)
	_, _, err := s.Score(context.Background(), headlines)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
