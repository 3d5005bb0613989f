package composite

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/service"
	svccache "SignalForge/internal/service/cache"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

const (
	newsLookback    = 3 * 24 * time.Hour
	insiderLookback = 90 * 24 * time.Hour
	bookMaxAge      = time.Minute
)

// Sources bundles the upstream collaborators. Nil sources degrade their factor.
type Sources struct {
	News         service.NewsSource
	Insider      service.InsiderSource
	Fundamentals service.FundamentalSource
	Scorer       service.SentimentScorer
	Book         service.OrderBook
}

// Config holds cache TTLs and the per-factor timeout.
type Config struct {
	SentimentTTL  time.Duration
	InsiderTTL    time.Duration
	FactorTimeout time.Duration
}

// Analyzer runs the six-factor institutional model.
type Analyzer struct {
	src       Sources
	cfg       Config
	sentiment *svccache.TTLCache[models.FactorResult]
	insider   *svccache.TTLCache[models.FactorResult]
	now       func() time.Time
	log       *logger.Logger
}

func NewAnalyzer(src Sources, cfg Config, log *logger.Logger) *Analyzer {
	if cfg.SentimentTTL <= 0 {
		cfg.SentimentTTL = 5 * time.Minute
	}
	if cfg.InsiderTTL <= 0 {
		cfg.InsiderTTL = 60 * time.Minute
	}
	if cfg.FactorTimeout <= 0 {
		cfg.FactorTimeout = 8 * time.Second
	}
	if src.Scorer == nil {
		src.Scorer = NewKeywordScorer()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{
		src:       src,
		cfg:       cfg,
		sentiment: svccache.NewTTLCache[models.FactorResult](cfg.SentimentTTL),
		insider:   svccache.NewTTLCache[models.FactorResult](cfg.InsiderTTL),
		now:       time.Now,
		log:       log.Component("composite"),
	}
}

// WithClock swaps the time source of the analyzer and its caches.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	a.sentiment.WithClock(now)
	a.insider.WithClock(now)
	return a
}

type factorItem struct {
	name models.FactorName
	res  models.FactorResult
}

// Analyze runs every factor concurrently and blends them.
func (a *Analyzer) Analyze(ctx context.Context, snap models.SymbolSnapshot, tfs []models.TimeframeAnalysis) models.CompositeResult {
	run := map[models.FactorName]func(context.Context) models.FactorResult{
		models.FactorMomentum:    func(context.Context) models.FactorResult { return momentumFactor(snap) },
		models.FactorTechnical:   func(context.Context) models.FactorResult { return technicalFactor(tfs) },
		models.FactorSentiment:   func(ctx context.Context) models.FactorResult { return a.sentimentFactor(ctx, snap.Instrument) },
		models.FactorInsider:     func(ctx context.Context) models.FactorResult { return a.insiderFactor(ctx, snap.Instrument) },
		models.FactorFundamental: func(ctx context.Context) models.FactorResult { return a.fundamentalFactor(ctx, snap.Instrument) },
		models.FactorFlow:        func(context.Context) models.FactorResult { return a.flowFactor(snap) },
	}

	ch := make(chan factorItem, len(run))
	var wg sync.WaitGroup
	for name, fn := range run {
		wg.Add(1)
		go func(name models.FactorName, fn func(context.Context) models.FactorResult) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, a.cfg.FactorTimeout)
			defer cancel()
			ch <- factorItem{name: name, res: fn(fctx)}
		}(name, fn)
	}
	go func() { wg.Wait(); close(ch) }()

	factors := make(map[models.FactorName]models.FactorResult, len(run))
	for it := range ch {
		factors[it.name] = it.res
	}
	return Blend(factors)
}

func (a *Analyzer) sentimentFactor(ctx context.Context, inst models.Instrument) models.FactorResult {
	key := inst.String()
	if res, ok := a.sentiment.Get(key); ok {
		return res
	}
	if a.src.News == nil {
		return models.FactorResult{Fallback: true, Reason: reasonNoSource}
	}
	to := a.now()
	items, err := a.src.News.CompanyNews(ctx, inst.Base(), to.Add(-newsLookback), to)
	if err != nil {
		a.log.Warn("news unavailable, sentiment factor degraded",
			logger.String("symbol", key),
			logger.Error(err))
		return fallbackFor(err)
	}
	res := sentimentFactor(ctx, a.src.Scorer, items)
	if !res.Fallback {
		a.sentiment.Set(key, res)
	}
	return res
}

func (a *Analyzer) insiderFactor(ctx context.Context, inst models.Instrument) models.FactorResult {
	if inst.IsCrypto() {
		return models.FactorResult{Reason: models.ReasonCryptoSkip}
	}
	key := inst.String()
	if res, ok := a.insider.Get(key); ok {
		return res
	}
	if a.src.Insider == nil {
		return models.FactorResult{Fallback: true, Reason: reasonNoSource}
	}
	to := a.now()
	txs, err := a.src.Insider.InsiderTransactions(ctx, key, to.Add(-insiderLookback), to)
	if err != nil {
		a.log.Warn("insider transactions unavailable",
			logger.String("symbol", key),
			logger.Error(err))
		return fallbackFor(err)
	}
	res := insiderScore(txs)
	a.insider.Set(key, res)
	return res
}

func (a *Analyzer) fundamentalFactor(ctx context.Context, inst models.Instrument) models.FactorResult {
	if inst.IsCrypto() {
		return models.FactorResult{Reason: models.ReasonCryptoSkip}
	}
	if a.src.Fundamentals == nil {
		return models.FactorResult{Fallback: true, Reason: reasonNoSource}
	}
	f, err := a.src.Fundamentals.Fundamentals(ctx, inst.String())
	if err != nil {
		a.log.Warn("fundamentals unavailable",
			logger.String("symbol", inst.String()),
			logger.Error(err))
		return fallbackFor(err)
	}
	return fundamentalScore(f)
}

func (a *Analyzer) flowFactor(snap models.SymbolSnapshot) models.FactorResult {
	var imb float64
	var ok bool
	if a.src.Book != nil {
		imb, ok = a.src.Book.Imbalance(snap.Instrument, bookMaxAge)
	}
	return flowScore(imb, ok, snap)
}

// Blend combines factor results with confidence-weighted factor weights.
// A factor on fallback still counts toward the confidence average, so an
// outage lowers the composite confidence. Skipped factors do not count.
func Blend(factors map[models.FactorName]models.FactorResult) models.CompositeResult {
	var num, den, confSum float64
	contributing := 0
	for name, f := range factors {
		w := models.FactorWeights[name]
		c := util.Finite(f.Confidence) / 100
		num += util.Finite(f.Score * w * c)
		den += util.Finite(w * c)
		if f.Confidence > 0 || f.Fallback {
			confSum += util.Finite(f.Confidence)
			contributing++
		}
	}

	var score float64
	if den > 0 {
		score = util.Finite(num / den)
	}
	score = util.Clamp(score, -2, 2)

	var confidence float64
	if contributing > 0 {
		confidence = util.Clamp(util.Finite(confSum/float64(contributing)), 0, 95)
	}

	sentiment := models.Neutral
	switch {
	case score > 0.5:
		sentiment = models.Bullish
	case score < -0.5:
		sentiment = models.Bearish
	}

	return models.CompositeResult{
		Sentiment:  sentiment,
		Score:      util.Round(score, 4),
		Confidence: util.Round(confidence, 2),
		Factors:    factors,
		Reasoning:  reasoning(factors, sentiment, score),
	}
}

func reasoning(factors map[models.FactorName]models.FactorResult, sentiment models.Sentiment, score float64) []string {
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, string(name))
	}
	sort.Strings(names)

	out := []string{fmt.Sprintf("composite %s %.2f", sentiment, score)}
	var apiDown, fallback bool
	for _, n := range names {
		f := factors[models.FactorName(n)]
		switch {
		case f.Reason == models.ReasonAPIDownFallback:
			apiDown = true
		case f.Fallback:
			fallback = true
		}
		if f.Confidence > 0 {
			out = append(out, fmt.Sprintf("%s %+.2f (%.0f%%)", n, f.Score, f.Confidence))
		}
	}
	if apiDown {
		out = append(out, models.ReasonAPIDownFallback)
	}
	if fallback {
		out = append(out, models.ReasonFallback)
	}
	return out
}
