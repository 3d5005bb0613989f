package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/services/consensus"
	"SignalForge/internal/services/gate"
	"SignalForge/internal/services/horizon"
	"SignalForge/internal/services/pricecache"
	"SignalForge/internal/services/quality"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/tracing"
)

// TechnicalAnalyzer produces per-timeframe verdicts from a snapshot.
type TechnicalAnalyzer interface {
	Analyze(ctx context.Context, snap models.SymbolSnapshot) []models.TimeframeAnalysis
}

// CompositeAnalyzer blends the factor model for a snapshot.
type CompositeAnalyzer interface {
	Analyze(ctx context.Context, snap models.SymbolSnapshot, tfs []models.TimeframeAnalysis) models.CompositeResult
}

// ProcessorDeps groups the stages a SignalProcessor drives.
type ProcessorDeps struct {
	Cache     *pricecache.Cache
	Gate      *gate.Gate
	Technical TechnicalAnalyzer
	Composite CompositeAnalyzer
	Consensus *consensus.Engine
	Quality   *quality.Gate
	Horizon   *horizon.Selector
	Emitter   *Emitter
}

// ProcessorStats are cumulative counts since start.
type ProcessorStats struct {
	Events     int64            `json:"events"`
	Analyses   int64            `json:"analyses"`
	Emissions  int64            `json:"emissions"`
	Failures   int64            `json:"failures"`
	Rejections map[string]int64 `json:"rejections"`
	Gate       map[string]int64 `json:"gate"`
	Quality    quality.Counters `json:"quality"`
}

// SignalProcessor runs one price event through cache, gate, analysis and emission.
// Events for one symbol must arrive in order from a single goroutine.
type SignalProcessor struct {
	deps    ProcessorDeps
	metrics drepo.Metrics
	tracer  trace.Tracer
	log     *logger.Logger
	now     func() time.Time

	events    atomic.Int64
	analyses  atomic.Int64
	emissions atomic.Int64
	failures  atomic.Int64

	mu         sync.Mutex
	rejections map[string]int64
	gateCounts map[string]int64
}

func NewSignalProcessor(deps ProcessorDeps, metrics drepo.Metrics, log *logger.Logger) *SignalProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &SignalProcessor{
		deps:       deps,
		metrics:    metrics,
		tracer:     tracing.Noop(),
		log:        log.Component("processor"),
		now:        time.Now,
		rejections: make(map[string]int64),
		gateCounts: make(map[string]int64),
	}
}

func (p *SignalProcessor) WithClock(now func() time.Time) *SignalProcessor {
	p.now = now
	return p
}

func (p *SignalProcessor) WithTracer(t trace.Tracer) *SignalProcessor {
	if t != nil {
		p.tracer = t
	}
	return p
}

// Process updates the cache and, when the gate opens, analyzes the symbol and
// emits an admitted candidate. Rejections are not errors.
func (p *SignalProcessor) Process(ctx context.Context, ev models.PriceEvent) error {
	if ev.Instrument == "" || ev.Price <= 0 {
		p.metrics.RecordDrop("malformed")
		return fmt.Errorf("process %q: %w", ev.Instrument, drepo.ErrMalformedMessage)
	}
	p.events.Add(1)
	p.deps.Cache.Update(ev)
	p.metrics.RecordEvent(string(ev.Source), ev.Instrument.String())
	p.metrics.RecordLastPrice(ev.Instrument.String(), ev.Price)

	now := p.now()
	decision := p.deps.Gate.Check(ev.Instrument, now)
	p.metrics.RecordGateDecision(string(decision))
	p.countGate(decision)
	if decision != gate.Analyze {
		return nil
	}
	return p.analyze(ctx, ev.Instrument, now)
}

func (p *SignalProcessor) analyze(ctx context.Context, inst models.Instrument, now time.Time) error {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "signal.analyze", trace.WithAttributes(
		attribute.String("symbol", inst.String()),
	))
	defer span.End()

	snap, ok := p.deps.Cache.Snapshot(inst)
	if !ok {
		return nil
	}
	p.analyses.Add(1)

	tfs := p.deps.Technical.Analyze(ctx, snap)
	var comp *models.CompositeResult
	if p.deps.Composite != nil {
		res := p.deps.Composite.Analyze(ctx, snap, tfs)
		comp = &res
	}
	cand := p.deps.Consensus.Build(ctx, snap, tfs, comp, now)
	p.metrics.RecordLatency("analyze", time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("sentiment", string(cand.Sentiment)),
		attribute.Float64("final_strength", cand.FinalStrength),
	)

	d := p.deps.Quality.TryAdmit(cand, now)
	if !d.Admitted {
		p.countRejection(d.Reason)
		p.log.Info("candidate rejected",
			logger.String("symbol", inst.String()),
			logger.String("reason", string(d.Reason)),
			logger.Float64("final_strength", cand.FinalStrength),
			logger.Float64("risk_reward", cand.RiskRewardRatio))
		return nil
	}

	h, policy := p.deps.Horizon.Select(ctx, cand)
	span.SetAttributes(attribute.String("horizon", string(h)), attribute.String("policy", string(policy)))
	if _, err := p.deps.Emitter.Emit(ctx, cand, h); err != nil {
		p.failures.Add(1)
		if errors.Is(err, drepo.ErrPersistence) {
			// admitted and cooled down; the slot simply keeps its previous tip
			return nil
		}
		return err
	}
	p.emissions.Add(1)
	return nil
}

func (p *SignalProcessor) countGate(d gate.Decision) {
	p.mu.Lock()
	p.gateCounts[string(d)]++
	p.mu.Unlock()
}

func (p *SignalProcessor) countRejection(r quality.Reason) {
	p.mu.Lock()
	p.rejections[string(r)]++
	p.mu.Unlock()
}

// Stats returns a copy of the cumulative counters.
func (p *SignalProcessor) Stats() ProcessorStats {
	p.mu.Lock()
	rej := make(map[string]int64, len(p.rejections))
	for k, v := range p.rejections {
		rej[k] = v
	}
	gc := make(map[string]int64, len(p.gateCounts))
	for k, v := range p.gateCounts {
		gc[k] = v
	}
	p.mu.Unlock()
	return ProcessorStats{
		Events:     p.events.Load(),
		Analyses:   p.analyses.Load(),
		Emissions:  p.emissions.Load(),
		Failures:   p.failures.Load(),
		Rejections: rej,
		Gate:       gc,
		Quality:    p.deps.Quality.Counters(),
	}
}
