package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal   *prometheus.CounterVec
	dropsTotal    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	gateDecisions *prometheus.CounterVec
	emissions     *prometheus.CounterVec
	feedUp        *prometheus.GaugeVec
	breakerState  *prometheus.GaugeVec
	freshness     prometheus.Gauge
}

var (
	defaultRecorder *Recorder
	defaultOnce     sync.Once
)

// New returns the process-wide Prometheus recorder. Collectors register once.
func New() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = newRecorder(promauto.With(prometheus.DefaultRegisterer))
	})
	return defaultRecorder
}

// NewWithRegistry builds a recorder on its own registry. Tests use this.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	return newRecorder(promauto.With(reg))
}

func newRecorder(f promauto.Factory) *Recorder {
	return &Recorder{
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_price_events_total",
				Help: "Total number of normalized price events ingested",
			},
			[]string{"source", "symbol"},
		),
		dropsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_dropped_events_total",
				Help: "Events dropped before analysis",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalforge_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalforge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		gateDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_gate_decisions_total",
				Help: "Opportunity and quality gate outcomes",
			},
			[]string{"decision"},
		),
		emissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_emissions_total",
				Help: "Tip emissions by horizon and result",
			},
			[]string{"horizon", "result"},
		),
		feedUp: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalforge_feed_connected",
				Help: "1 when the feed socket is open",
			},
			[]string{"feed"},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalforge_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"upstream"},
		),
		freshness: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalforge_data_freshness_ratio",
				Help: "Fraction of symbols with a price point inside the freshness window",
			},
		),
	}
}

// RecordEvent counts an ingested event.
func (r *Recorder) RecordEvent(source, symbol string) {
	r.eventsTotal.WithLabelValues(source, symbol).Inc()
}

// RecordDrop counts an event dropped before analysis.
func (r *Recorder) RecordDrop(reason string) {
	r.dropsTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordGateDecision(decision string) {
	r.gateDecisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) RecordEmission(horizon, result string) {
	r.emissions.WithLabelValues(horizon, result).Inc()
}

func (r *Recorder) SetFeedConnected(feed string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	r.feedUp.WithLabelValues(feed).Set(v)
}

func (r *Recorder) SetBreakerState(name string, state int) {
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

func (r *Recorder) SetFreshness(v float64) {
	r.freshness.Set(v)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordEvent(string, string) {}
func (Noop) RecordDrop(string) {}
func (Noop) RecordError(string) {}
func (Noop) RecordLastPrice(string, float64) {}
func (Noop) RecordLatency(string, float64) {}
func (Noop) RecordGateDecision(string) {}
func (Noop) RecordEmission(string, string) {}
func (Noop) SetFeedConnected(string, bool) {}
func (Noop) SetBreakerState(string, int) {}
func (Noop) SetFreshness(float64) {}
