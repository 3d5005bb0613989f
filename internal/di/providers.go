package di

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"

	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/domain/service"
	"SignalForge/internal/handler/api"
	mid "SignalForge/internal/middleware"
	internalrepo "SignalForge/internal/repository"
	"SignalForge/internal/service/breaker"
	"SignalForge/internal/service/feed"
	"SignalForge/internal/service/notify"
	"SignalForge/internal/service/ratelimit"
	"SignalForge/internal/service/upstream"
	"SignalForge/internal/services/analytics"
	"SignalForge/internal/services/composite"
	"SignalForge/internal/services/consensus"
	"SignalForge/internal/services/gate"
	"SignalForge/internal/services/horizon"
	"SignalForge/internal/services/pricecache"
	"SignalForge/internal/services/quality"
	"SignalForge/internal/services/symbols"
	"SignalForge/internal/services/technical"
	"SignalForge/internal/usecase"
	"SignalForge/pkg/cache"
	pkgch "SignalForge/pkg/clickhouse"
	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/metrics"
	"SignalForge/pkg/server"
	"SignalForge/pkg/tracing"
)

// ProvideConsoleLogger builds a logger without the Kafka collector.
func ProvideConsoleLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideLogger builds the root logger. With Kafka enabled, repeated warnings
// and errors are aggregated onto the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := ProvideConsoleLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	if producer == nil || cfg.Kafka.LogTopic == "" {
		return l, func() {}, nil
	}
	l.AddCollector(&logger.CollectionConfig{
		Interval:   30 * time.Second,
		MaxEntries: 100,
		Topic:      cfg.Kafka.LogTopic,
		Publisher:  producer,
		MinLevel:   "warn",
		Service:    cfg.Tracing.ServiceName,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

func ProvideTracer(cfg *config.Config) (trace.Tracer, func(), error) {
	t, shutdown, err := tracing.Init(context.Background(), tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}
	return t, cleanup, nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithKeyHashing(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideKafkaConsumer creates the consumer used by the watch command.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset("latest"),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBuffer(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisCache returns nil when Redis is disabled, or unreachable and not required.
func ProvideRedisCache(cfg *config.Config, log *logger.Logger) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2),
		cache.WithRedisTimeouts(cfg.Redis.Timeout, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		if cfg.Redis.Required {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		log.Warn("redis unreachable, using in-memory tip store", logger.Error(err))
		return nil, func() {}, nil
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideTipStore(rc *cache.RedisCache) drepo.TipStore {
	if rc == nil {
		return internalrepo.NewMemoryTipStore()
	}
	return internalrepo.NewRedisTipStore(rc)
}

// ProvideClickHouseClient returns nil when the archive is disabled or unreachable.
func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err == nil {
		err = client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database))
		if err != nil {
			_ = client.Close()
		}
	}
	if err != nil {
		log.Warn("clickhouse unavailable, archive disabled", logger.Error(err))
		return nil, func() {}, nil
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideArchive returns a nil interface, not a typed nil, without ClickHouse.
func ProvideArchive(ch *pkgch.Client) drepo.Archive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(ch)
}

func ProvideBroadcasters(cfg *config.Config, producer *pkgkafka.Producer, log *logger.Logger) []drepo.Broadcaster {
	var out []drepo.Broadcaster
	if producer != nil {
		out = append(out, internalrepo.NewKafkaBroadcaster(producer, cfg.Kafka.Topic))
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn("telegram mirror disabled", logger.Error(err))
		} else {
			out = append(out, tg)
		}
	}
	return out
}

func ProvideBreakers(m drepo.Metrics, log *logger.Logger) *breaker.Registry {
	return breaker.NewRegistry(nil, m, log)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(float64(cfg.Upstream.RequestsPerMin), 5)
}

func upstreamOptions(cfg *config.Config, name, baseURL string, breakers *breaker.Registry, limiter *ratelimit.Limiter, tracer trace.Tracer) upstream.Options {
	return upstream.Options{
		Name:     name,
		BaseURL:  baseURL,
		Timeout:  cfg.Upstream.Timeout,
		Breakers: breakers,
		Limiter:  limiter,
		Tracer:   tracer,
	}
}

func ProvideFinnhubREST(cfg *config.Config, breakers *breaker.Registry, limiter *ratelimit.Limiter, tracer trace.Tracer) *upstream.Finnhub {
	return upstream.NewFinnhub(cfg.Feeds.Finnhub.APIKey,
		upstreamOptions(cfg, "finnhub", cfg.Feeds.Finnhub.RestURL, breakers, limiter, tracer))
}

func ProvidePolygon(cfg *config.Config, breakers *breaker.Registry, limiter *ratelimit.Limiter, tracer trace.Tracer) *upstream.Polygon {
	return upstream.NewPolygon(cfg.Feeds.Polygon.APIKey,
		upstreamOptions(cfg, "polygon", "https://api.polygon.io", breakers, limiter, tracer))
}

func ProvideBinanceREST(cfg *config.Config, breakers *breaker.Registry, limiter *ratelimit.Limiter, tracer trace.Tracer) *upstream.Binance {
	return upstream.NewBinance(upstreamOptions(cfg, "binance", cfg.Feeds.Binance.RestURL, breakers, limiter, tracer))
}

// ProvideCandleSource routes equities to Polygon and crypto to Binance, with
// the tick archive as the last resort.
func ProvideCandleSource(polygon *upstream.Polygon, binance *upstream.Binance, ch *pkgch.Client, log *logger.Logger) drepo.CandleSource {
	var archive drepo.CandleSource
	if ch != nil {
		archive = internalrepo.NewClickHouseArchive(ch)
	}
	return upstream.NewCandleRouter(polygon, binance, archive, log)
}

func ProvidePingers(fh *upstream.Finnhub, polygon *upstream.Polygon, binance *upstream.Binance) []service.Pinger {
	pingers := fh.Pingers()
	return append(pingers, polygon.Pinger(), binance.Pinger())
}

func ProvideSentimentScorer(cfg *config.Config, log *logger.Logger) service.SentimentScorer {
	keywords := composite.NewKeywordScorer()
	if cfg.Sentiment.ServiceURL == "" {
		return keywords
	}
	return analytics.NewNLPScorer(analytics.NLPConfig{
		BaseURL:  cfg.Sentiment.ServiceURL,
		Timeout:  cfg.Sentiment.Timeout,
		Attempts: cfg.Sentiment.Attempts,
	}, keywords, log)
}

func ProvideOrderBook() *feed.OrderBook {
	return feed.NewOrderBook()
}

// ProvideStreams builds one stream per enabled feed. Feeds lacking
// credentials are still returned and disable themselves on connect.
func ProvideStreams(cfg *config.Config, book *feed.OrderBook, m drepo.Metrics, log *logger.Logger) []drepo.MarketStream {
	eq, cr := symbols.Watchlists(cfg.Symbols.Equities, cfg.Symbols.Crypto)
	eqSyms := make([]string, len(eq))
	for i, s := range eq {
		eqSyms[i] = s.String()
	}
	opts := feed.Options{
		ReconnectDelay: cfg.Feeds.ReconnectDelay,
		PingInterval:   cfg.Feeds.PingInterval,
		DialTimeout:    cfg.Feeds.DialTimeout,
		Metrics:        m,
		Logger:         log,
	}

	var streams []drepo.MarketStream
	if cfg.Feeds.Finnhub.Enabled && len(eqSyms) > 0 {
		streams = append(streams, feed.NewFinnhub(cfg.Feeds.Finnhub.APIKey, cfg.Feeds.Finnhub.WebSocketURL, eqSyms, opts))
	}
	if cfg.Feeds.Alpaca.Enabled && len(eqSyms) > 0 {
		streams = append(streams, feed.NewAlpaca(cfg.Feeds.Alpaca.APIKey, cfg.Feeds.Alpaca.APISecret, cfg.Feeds.Alpaca.WebSocketURL, eqSyms, book, opts))
	}
	if cfg.Feeds.Binance.Enabled && len(cr) > 0 {
		streams = append(streams, feed.NewBinance(cfg.Feeds.Binance.WebSocketURL, cr, opts))
	}
	return streams
}

func seeded(cfg *config.Config, salt int64) *rand.Rand {
	if cfg.Engine.Seed != 0 {
		return rand.New(rand.NewSource(cfg.Engine.Seed + salt))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano() + salt))
}

func ProvidePriceCache(cfg *config.Config) *pricecache.Cache {
	return pricecache.New(pricecache.Options{
		HistorySize:      cfg.Engine.HistorySize,
		StaleAfter:       cfg.Engine.StaleAfter,
		SweepProbability: cfg.Engine.SweepProbability,
		Rand:             seeded(cfg, 1),
	})
}

func ProvideOpportunityGate(cfg *config.Config, c *pricecache.Cache) *gate.Gate {
	return gate.New(c, gate.Config{MinHistory: cfg.Engine.MinHistory, AnalysisInterval: cfg.Engine.AnalysisInterval})
}

func ProvideTechnical(cfg *config.Config, candles drepo.CandleSource, log *logger.Logger) *technical.Analyzer {
	return technical.NewAnalyzer(technical.Config{Simulate: cfg.Engine.SimulateFallback}, candles, seeded(cfg, 2), log)
}

func ProvideComposite(cfg *config.Config, fh *upstream.Finnhub, scorer service.SentimentScorer, book *feed.OrderBook, log *logger.Logger) *composite.Analyzer {
	return composite.NewAnalyzer(composite.Sources{
		News:         fh,
		Insider:      fh,
		Fundamentals: fh,
		Scorer:       scorer,
		Book:         book,
	}, composite.Config{
		SentimentTTL:  cfg.Engine.SentimentCacheTTL,
		InsiderTTL:    cfg.Engine.InsiderCacheTTL,
		FactorTimeout: cfg.Upstream.Timeout,
	}, log)
}

func ProvideConsensus(cfg *config.Config, candles drepo.CandleSource, log *logger.Logger) *consensus.Engine {
	return consensus.New(candles, seeded(cfg, 3), log)
}

func ProvideQualityGate(cfg *config.Config, c *pricecache.Cache) *quality.Gate {
	return quality.New(quality.Config{
		MinFinalStrength: cfg.Engine.MinFinalStrength,
		MinRiskReward:    cfg.Engine.MinRiskReward,
		DailyCap:         cfg.Engine.DailyCap,
		MinSpacing:       cfg.Engine.MinSignalSpacing,
		SymbolCooldown:   cfg.Engine.SymbolCooldown,
	}, c)
}

func ProvideHorizonSelector(store drepo.TipStore, log *logger.Logger) *horizon.Selector {
	return horizon.New(store, log)
}

func ProvideEmitter(cfg *config.Config, store drepo.TipStore, b []drepo.Broadcaster, archive drepo.Archive, m drepo.Metrics, tracer trace.Tracer, log *logger.Logger) *usecase.Emitter {
	return usecase.NewEmitter(usecase.EmitterConfig{
		Topic:          cfg.Kafka.Topic,
		PublishTimeout: cfg.Kafka.Producer.WriteTimeout,
	}, store, b, archive, m, seeded(cfg, 4), log).WithTracer(tracer)
}

func ProvideSignalProcessor(
	c *pricecache.Cache,
	g *gate.Gate,
	tech *technical.Analyzer,
	comp *composite.Analyzer,
	cons *consensus.Engine,
	q *quality.Gate,
	h *horizon.Selector,
	e *usecase.Emitter,
	m drepo.Metrics,
	tracer trace.Tracer,
	log *logger.Logger,
) *usecase.SignalProcessor {
	return usecase.NewSignalProcessor(usecase.ProcessorDeps{
		Cache:     c,
		Gate:      g,
		Technical: tech,
		Composite: comp,
		Consensus: cons,
		Quality:   q,
		Horizon:   h,
		Emitter:   e,
	}, m, log).WithTracer(tracer)
}

func ProvideDispatcher(cfg *config.Config, proc *usecase.SignalProcessor, m drepo.Metrics, log *logger.Logger) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m,
		mid.WithShards(cfg.Engine.Shards),
		mid.WithBufferSize(cfg.Engine.ShardBuffer),
		mid.WithLogger(log),
	)
}

// ProvideTickArchiver returns nil without an archive.
func ProvideTickArchiver(cfg *config.Config, archive drepo.Archive, m drepo.Metrics, log *logger.Logger) *usecase.TickArchiver {
	if archive == nil {
		return nil
	}
	return usecase.NewTickArchiver(archive, cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval, m, log)
}

func ProvideFeedCollector(cfg *config.Config, streams []drepo.MarketStream, d *mid.RealtimePipeline, archiver *usecase.TickArchiver, m drepo.Metrics, log *logger.Logger) *usecase.FeedCollector {
	return usecase.NewFeedCollector(streams, d, archiver, m, cfg.Feeds.ReconnectDelay, log)
}

func ProvideHealthMonitor(cfg *config.Config, breakers *breaker.Registry, pingers []service.Pinger, c *pricecache.Cache, fc *usecase.FeedCollector, m drepo.Metrics, log *logger.Logger) *usecase.HealthMonitor {
	return usecase.NewHealthMonitor(usecase.HealthConfig{
		UpstreamInterval: cfg.Health.UpstreamInterval,
		SocketInterval:   cfg.Health.SocketInterval,
		FreshnessWindow:  cfg.Health.FreshnessWindow,
		MinFreshness:     cfg.Health.FreshnessMinRatio,
		PingTimeout:      cfg.Upstream.Timeout,
	}, breakers, pingers, c, fc, m, log)
}

// ProvidePingMonitor is a monitor with no feeds or cache, for one-shot pings.
func ProvidePingMonitor(cfg *config.Config, breakers *breaker.Registry, pingers []service.Pinger, m drepo.Metrics, log *logger.Logger) *usecase.HealthMonitor {
	return usecase.NewHealthMonitor(usecase.HealthConfig{PingTimeout: cfg.Upstream.Timeout}, breakers, pingers, nil, nil, m, log)
}

func ProvideStatusUseCase(
	proc *usecase.SignalProcessor,
	d *mid.RealtimePipeline,
	fc *usecase.FeedCollector,
	breakers *breaker.Registry,
	hm *usecase.HealthMonitor,
	c *pricecache.Cache,
	store drepo.TipStore,
	archive drepo.Archive,
	e *usecase.Emitter,
) *usecase.StatusUseCase {
	return usecase.NewStatusUseCase(usecase.StatusSources{
		Processor:  proc,
		Dispatcher: d,
		Feeds:      fc,
		Breakers:   breakers,
		Health:     hm,
		Cache:      c,
		Store:      store,
		Archive:    archive,
		Emitter:    e,
	})
}

func ProvideHTTPHandler(log *logger.Logger, state *server.State, status *usecase.StatusUseCase, tips *usecase.TipsUseCase, syms *usecase.SymbolsUseCase) xhttp.Handler {
	return api.NewEngineEchoHandler(log, state, status, tips, syms)
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, log *logger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, log,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, 0),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...),
	)
}

func ProvideTimeouts(cfg *config.Config) server.Timeouts {
	return server.Timeouts{Feeds: 5 * time.Second, Drain: cfg.Server.ShutdownTimeout, HTTP: 5 * time.Second}
}
