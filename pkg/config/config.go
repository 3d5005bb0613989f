package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	applogger "SignalForge/pkg/logger"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Log         applogger.Config `yaml:"log"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"25s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Symbols struct {
		Equities []string `yaml:"equities"`
		Crypto   []string `yaml:"crypto"`
	} `yaml:"symbols"`
	Feeds struct {
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
		DialTimeout    time.Duration `yaml:"dial_timeout" default:"10s"`
		Finnhub        struct {
			Enabled      bool   `yaml:"enabled" default:"true"`
			APIKey       string `yaml:"api_key"`
			WebSocketURL string `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
			RestURL      string `yaml:"rest_url" default:"https://finnhub.io/api/v1"`
		} `yaml:"finnhub"`
		Alpaca struct {
			Enabled      bool   `yaml:"enabled" default:"true"`
			APIKey       string `yaml:"api_key"`
			APISecret    string `yaml:"api_secret"`
			WebSocketURL string `yaml:"websocket_url" default:"wss://stream.data.alpaca.markets/v2/iex"`
		} `yaml:"alpaca"`
		Binance struct {
			Enabled      bool   `yaml:"enabled" default:"true"`
			WebSocketURL string `yaml:"websocket_url" default:"wss://stream.binance.com:9443/stream"`
			RestURL      string `yaml:"rest_url" default:"https://api.binance.com"`
		} `yaml:"binance"`
		Polygon struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"polygon"`
	} `yaml:"feeds"`
	Upstream struct {
		Timeout        time.Duration `yaml:"timeout" default:"8s"`
		RequestsPerMin int           `yaml:"requests_per_minute" default:"55" validate:"gte=1"`
	} `yaml:"upstream"`
	Sentiment struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout" default:"3s"`
		Attempts   int           `yaml:"attempts" default:"2" validate:"gte=1"`
	} `yaml:"sentiment"`
	Engine struct {
		HistorySize       int           `yaml:"history_size" default:"100" validate:"gte=20"`
		MinHistory        int           `yaml:"min_history" default:"20" validate:"gte=1"`
		AnalysisInterval  time.Duration `yaml:"analysis_interval" default:"30s"`
		SymbolCooldown    time.Duration `yaml:"symbol_cooldown" default:"2h"`
		StaleAfter        time.Duration `yaml:"stale_after" default:"24h"`
		SweepProbability  float64       `yaml:"sweep_probability" default:"0.001" validate:"gte=0,lte=1"`
		MinFinalStrength  float64       `yaml:"min_final_strength" default:"4.0"`
		MinRiskReward     float64       `yaml:"min_risk_reward" default:"2.5"`
		DailyCap          int           `yaml:"daily_cap" default:"5" validate:"gte=1"`
		MinSignalSpacing  time.Duration `yaml:"min_signal_spacing" default:"1h"`
		SentimentCacheTTL time.Duration `yaml:"sentiment_cache_ttl" default:"5m"`
		InsiderCacheTTL   time.Duration `yaml:"insider_cache_ttl" default:"60m"`
		Shards            int           `yaml:"shards" default:"16" validate:"gte=1"`
		ShardBuffer       int           `yaml:"shard_buffer" default:"512" validate:"gte=1"`
		SimulateFallback  bool          `yaml:"simulate_fallback" default:"true"`
		Seed              int64         `yaml:"seed"`
	} `yaml:"engine"`
	Health struct {
		UpstreamInterval  time.Duration `yaml:"upstream_interval" default:"120s"`
		SocketInterval    time.Duration `yaml:"socket_interval" default:"30s"`
		FreshnessWindow   time.Duration `yaml:"freshness_window" default:"5m"`
		FreshnessMinRatio float64       `yaml:"freshness_min_ratio" default:"0.7" validate:"gte=0,lte=1"`
	} `yaml:"health"`
	Redis struct {
		Enabled  bool          `yaml:"enabled" default:"true"`
		Required bool          `yaml:"required"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"signalforge"`
		PoolSize int           `yaml:"pool_size" default:"10" validate:"gte=1"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled" default:"true"`
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"trading_tips"`
		LogTopic     string   `yaml:"log_topic" default:"engine_logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"1"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signalforge-watch"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"signalforge"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		BatchSize        int           `yaml:"batch_size" default:"500"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"5s"`
	} `yaml:"clickhouse"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Tracing struct {
		Endpoint    string  `yaml:"endpoint"`
		ServiceName string  `yaml:"service_name" default:"signalforge"`
		SampleRatio float64 `yaml:"sample_ratio" default:"1" validate:"gte=0,lte=1"`
		Insecure    bool    `yaml:"insecure" default:"true"`
	} `yaml:"tracing"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. An empty path yields defaults.
func Load(path string) (*Config, error) {
	var c Config
	// defaults first so explicit zero values in YAML (enabled: false) survive
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	c.applySymbolDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string, upper bool) {
		if v := getenv(key); v != "" {
			*dst = splitList(v, upper)
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("FINNHUB_API_KEY", &c.Feeds.Finnhub.APIKey)
	str("ALPACA_API_KEY", &c.Feeds.Alpaca.APIKey)
	str("ALPACA_API_SECRET", &c.Feeds.Alpaca.APISecret)
	str("POLYGON_API_KEY", &c.Feeds.Polygon.APIKey)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	str("SENTIMENT_SERVICE_URL", &c.Sentiment.ServiceURL)
	list("KAFKA_BROKERS", &c.Kafka.Brokers, false)
	list("EQUITY_SYMBOLS", &c.Symbols.Equities, true)
	list("CRYPTO_SYMBOLS", &c.Symbols.Crypto, true)

	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
}

func (c *Config) applySymbolDefaults() {
	if len(c.Symbols.Equities) == 0 {
		c.Symbols.Equities = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AMD", "SPY", "QQQ", "GME", "AMC"}
	}
	if len(c.Symbols.Crypto) == 0 {
		c.Symbols.Crypto = []string{"BTC/USD", "ETH/USD", "SOL/USD", "DOGE/USD"}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, s := range c.Symbols.Equities {
		if strings.Contains(s, "/") {
			return fmt.Errorf("symbols.equities: %q looks like a crypto pair", s)
		}
	}
	for _, s := range c.Symbols.Crypto {
		if !strings.Contains(s, "/") {
			return fmt.Errorf("symbols.crypto: %q must be BASE/QUOTE", s)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// MissingCredentials lists adapters that will stay down for lack of credentials.
func (c *Config) MissingCredentials() []string {
	var out []string
	if c.Feeds.Finnhub.Enabled && c.Feeds.Finnhub.APIKey == "" {
		out = append(out, "finnhub")
	}
	if c.Feeds.Alpaca.Enabled && (c.Feeds.Alpaca.APIKey == "" || c.Feeds.Alpaca.APISecret == "") {
		out = append(out, "alpaca")
	}
	if c.Feeds.Polygon.APIKey == "" {
		out = append(out, "polygon")
	}
	return out
}

func splitList(v string, upper bool) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if upper {
			p = strings.ToUpper(p)
		}
		out = append(out, p)
	}
	return out
}
