package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/services/symbols"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/tracing"
)

const (
	TipsTopic   = "trading_tips"
	tipLifetime = 24 * time.Hour

	// degraded tips lose part of their displayed confidence
	degradedConfidenceFactor = 0.85
)

var (
	successRates   = []int{94, 95, 96, 97, 98}
	aiAccuracyVals = []int{95, 96, 97, 98, 99}
)

// EmitterConfig holds topic and I/O budgets.
type EmitterConfig struct {
	Topic          string
	Source         string
	PersistTimeout time.Duration
	PublishTimeout time.Duration
}

// Emitter turns an admitted candidate into a persisted, broadcast tip.
type Emitter struct {
	cfg          EmitterConfig
	store        drepo.TipStore
	broadcasters []drepo.Broadcaster
	archive      drepo.Archive
	metrics      drepo.Metrics
	tracer       trace.Tracer
	log          *logger.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
	emitted  atomic.Int64
	failed   atomic.Int64
}

// NewEmitter wires the emitter. archive may be nil.
func NewEmitter(cfg EmitterConfig, store drepo.TipStore, broadcasters []drepo.Broadcaster, archive drepo.Archive, metrics drepo.Metrics, rnd *rand.Rand, log *logger.Logger) *Emitter {
	if cfg.Topic == "" {
		cfg.Topic = TipsTopic
	}
	if cfg.Source == "" {
		cfg.Source = "signalforge"
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Emitter{
		cfg:          cfg,
		store:        store,
		broadcasters: broadcasters,
		archive:      archive,
		metrics:      metrics,
		tracer:       tracing.Noop(),
		log:          log.Component("emitter"),
		rnd:          rnd,
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
}

func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// WithIDs replaces the id generator used for tracking and message ids.
func (e *Emitter) WithIDs(fn func() string) *Emitter {
	e.newID = fn
	return e
}

func (e *Emitter) WithTracer(t trace.Tracer) *Emitter {
	if t != nil {
		e.tracer = t
	}
	return e
}

// Emit persists the tip for horizon h, then updates stats, broadcasts and
// records analytics. Only the persistence step can fail the emission.
func (e *Emitter) Emit(ctx context.Context, c models.CandidateAnalysis, h models.Horizon) (models.Tip, error) {
	e.inflight.Add(1)
	defer e.inflight.Done()

	ctx, span := e.tracer.Start(ctx, "emitter.emit", trace.WithAttributes(
		attribute.String("symbol", c.Instrument.String()),
		attribute.String("horizon", string(h)),
	))
	defer span.End()

	tip := e.BuildTip(c, h)
	log := e.log.With(
		logger.String("symbol", tip.Instrument.String()),
		logger.String("horizon", string(h)),
		logger.String("tracking_id", tip.TrackingID),
	)

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	err := e.store.UpsertLatestTip(pctx, h, tip)
	cancel()
	if err != nil {
		if !errors.Is(err, drepo.ErrPersistence) {
			err = fmt.Errorf("%w: %v", drepo.ErrPersistence, err)
		}
		e.failed.Add(1)
		e.metrics.RecordEmission(string(h), "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		log.Error("persist tip failed", logger.Error(err))
		return tip, fmt.Errorf("emit %s: %w", tip.Instrument, err)
	}

	e.updateStats(ctx, log)

	messageID := e.newID()
	n := e.Notification(tip, messageID)
	e.broadcast(ctx, tip.Instrument.String(), n, log)

	rec := models.AnalyticsRecord{
		MessageID:  messageID,
		Topic:      n.Topic,
		Horizon:    h,
		Symbol:     tip.Instrument.String(),
		Sentiment:  tip.Sentiment,
		Strength:   tip.FinalStrength,
		Title:      n.Title,
		Body:       n.Body,
		TrackingID: tip.TrackingID,
		CreatedAt:  tip.CreatedAt,
	}
	e.recordAnalytics(ctx, rec, log)

	e.emitted.Add(1)
	e.metrics.RecordEmission(string(h), "ok")
	log.Info("tip emitted",
		logger.String("sentiment", string(tip.Sentiment)),
		logger.Float64("final_strength", tip.FinalStrength),
		logger.Float64("risk_reward", tip.RiskRewardRatio),
		logger.String("message_id", messageID))
	return tip, nil
}

// BuildTip assembles the tip record. Neutral sentiment is resolved here.
func (e *Emitter) BuildTip(c models.CandidateAnalysis, h models.Horizon) models.Tip {
	now := e.now().UTC()
	meta := symbols.Lookup(c.Instrument)
	reasoning := append([]string(nil), c.Reasoning...)

	confidence := models.TipConfidence(c.FinalStrength)
	if c.Degraded() {
		confidence *= degradedConfidenceFactor
	}

	tip := models.Tip{
		Instrument:         c.Instrument,
		Sentiment:          ResolveSentiment(c),
		Strength:           c.Strength,
		FinalStrength:      c.FinalStrength,
		Confidence:         round(confidence, 1),
		CurrentPrice:       c.CurrentPrice,
		PriceChangePercent: c.PriceChangePercent,
		Levels:             c.Levels,
		RiskRewardRatio:    c.RiskRewardRatio,
		MarketContext:      c.MarketContext,
		Reasoning:          reasoning,
		Horizon:            h,
		Company:            &meta,
		CreatedAt:          now,
		ExpiresAt:          now.Add(tipLifetime),
		TrackingID:         e.newID(),
		Source:             e.cfg.Source,
	}
	if c.Composite != nil {
		tip.Institutional = &models.InstitutionalGrade{
			Score:      c.Composite.Score,
			Confidence: c.Composite.Confidence,
			Sentiment:  c.Composite.Sentiment,
		}
	}
	return tip
}

// ResolveSentiment maps neutral to a direction using the level layout, then
// the sign of the price change.
func ResolveSentiment(c models.CandidateAnalysis) models.Sentiment {
	if c.Sentiment == models.Bullish || c.Sentiment == models.Bearish {
		return c.Sentiment
	}
	switch {
	case c.Levels.TakeProfit1 > c.Levels.Entry:
		return models.Bullish
	case c.Levels.TakeProfit1 < c.Levels.Entry:
		return models.Bearish
	case c.PriceChangePercent < 0:
		return models.Bearish
	default:
		return models.Bullish
	}
}

// Notification renders the broadcast payload. Every data value is a string.
func (e *Emitter) Notification(tip models.Tip, messageID string) models.Notification {
	dp := priceDecimals(tip.Instrument, tip.CurrentPrice)
	reasoning, _ := json.Marshal(tip.Reasoning)
	if tip.Reasoning == nil {
		reasoning = []byte("[]")
	}

	var meta models.CompanyMeta
	if tip.Company != nil {
		meta = *tip.Company
	}
	title := fmt.Sprintf("%s %s signal", tip.Instrument, tip.Sentiment)
	body := fmt.Sprintf("Entry %s, target %s, stop %s (R:R %s)",
		FormatPrice(tip.Levels.Entry, dp),
		FormatPrice(tip.Levels.TakeProfit1, dp),
		FormatPrice(tip.Levels.StopLoss, dp),
		strconv.FormatFloat(tip.RiskRewardRatio, 'f', 2, 64))

	return models.Notification{
		Topic: e.cfg.Topic,
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":                 "trading_tip",
			"symbol":               tip.Instrument.String(),
			"timeframe":            string(tip.Horizon),
			"target_timeframe":     string(tip.Horizon),
			"sentiment":            string(tip.Sentiment),
			"strength":             strconv.FormatFloat(tip.FinalStrength, 'f', 1, 64),
			"confidence":           strconv.FormatFloat(tip.Confidence, 'f', 0, 64),
			"current_price":        FormatPrice(tip.CurrentPrice, dp),
			"price_change_percent": strconv.FormatFloat(tip.PriceChangePercent, 'f', 2, 64),
			"entry_price":          FormatPrice(tip.Levels.Entry, dp),
			"stop_loss":            FormatPrice(tip.Levels.StopLoss, dp),
			"take_profit_1":        FormatPrice(tip.Levels.TakeProfit1, dp),
			"take_profit_2":        FormatPrice(tip.Levels.TakeProfit2, dp),
			"risk_reward_ratio":    strconv.FormatFloat(tip.RiskRewardRatio, 'f', 2, 64),
			"reasoning":            string(reasoning),
			"company_name":         meta.Name,
			"sector":               meta.Sector,
			"business_description": meta.BusinessDescription,
			"logo_url":             meta.LogoPath,
			"is_crypto":            strconv.FormatBool(tip.Instrument.IsCrypto()),
			"trackingId":           tip.TrackingID,
			"message_id":           messageID,
			"isFerrariSignal":      "true",
			"created_at":           tip.CreatedAt.Format(time.RFC3339),
			"expires_at":           tip.ExpiresAt.Format(time.RFC3339),
		},
	}
}

func (e *Emitter) updateStats(ctx context.Context, log *logger.Logger) {
	e.rndMu.Lock()
	sr := successRates[e.rnd.Intn(len(successRates))]
	acc := aiAccuracyVals[e.rnd.Intn(len(aiAccuracyVals))]
	e.rndMu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	defer cancel()
	if _, err := e.store.UpdateStats(sctx, sr, acc, e.now()); err != nil {
		e.metrics.RecordError("stats")
		log.Warn("update stats failed", logger.Error(err))
	}
}

func (e *Emitter) broadcast(ctx context.Context, key string, n models.Notification, log *logger.Logger) {
	for _, b := range e.broadcasters {
		bctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
		err := b.Broadcast(bctx, key, n)
		cancel()
		if err != nil {
			e.metrics.RecordError("broadcast_" + b.Name())
			log.Warn("broadcast failed", logger.String("broadcaster", b.Name()), logger.Error(err))
		}
	}
}

func (e *Emitter) recordAnalytics(ctx context.Context, rec models.AnalyticsRecord, log *logger.Logger) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	defer cancel()
	if err := e.store.AppendAnalytics(actx, rec); err != nil {
		e.metrics.RecordError("analytics")
		log.Warn("append analytics failed", logger.Error(err))
	}
	if e.archive == nil {
		return
	}
	if err := e.archive.StoreAnalytics(actx, rec); err != nil {
		e.metrics.RecordError("archive_analytics")
		log.Warn("archive analytics failed", logger.Error(err))
	}
}

// Wait blocks until in-flight emissions finish or ctx expires.
func (e *Emitter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for emissions: %w", ctx.Err())
	}
}

// Stats returns cumulative emitted and failed counts.
func (e *Emitter) Stats() (emitted, failed int64) {
	return e.emitted.Load(), e.failed.Load()
}

// FormatPrice renders v with dp decimals without float artifacts.
func FormatPrice(v float64, dp int32) string {
	return decimal.NewFromFloat(v).StringFixed(dp)
}

func priceDecimals(inst models.Instrument, price float64) int32 {
	if inst.IsCrypto() || price < 1 {
		return 4
	}
	return 2
}

func round(v float64, dp int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(dp).Float64()
	return f
}
