package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordEvent("eqA", "AAPL")
	r.RecordEvent("eqA", "AAPL")
	r.RecordEmission("mid_term", "ok")
	r.SetFeedConnected("finnhub", true)
	r.SetFreshness(0.8)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsTotal.WithLabelValues("eqA", "AAPL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.emissions.WithLabelValues("mid_term", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.feedUp.WithLabelValues("finnhub")))
	assert.Equal(t, 0.8, testutil.ToFloat64(r.freshness))
}

func TestNewIsSingleton(t *testing.T) {
	assert.Same(t, New(), New())
}
