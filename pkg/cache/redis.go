package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures the connection.
type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	MinIdle     int
	DialTimeout time.Duration
	OpTimeout   time.Duration
	Prefix      string
}

// WithRedisAddr sets host and port; an empty host keeps localhost.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		if host == "" {
			host = "localhost"
		}
		if port <= 0 {
			port = 6379
		}
		c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

func WithRedisPool(size, minIdle int) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		c.MinIdle = minIdle
	}
}

// WithRedisTimeouts sets dial and per-command timeouts. Zero keeps the default.
func WithRedisTimeouts(dial, op time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if op > 0 {
			c.OpTimeout = op
		}
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// RedisCache is a go-redis client plus the key namespace the engine writes under.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects and pings; the ping is bounded by the dial timeout.
func NewRedisCache(ctx context.Context, opts ...RedisOption) (*RedisCache, error) {
	cfg := RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		MinIdle:     2,
		DialTimeout: 5 * time.Second,
		OpTimeout:   5 * time.Second,
		Prefix:      "signalforge",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdle,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

// NewFromClient wraps an existing client, e.g. one pointed at miniredis.
func NewFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Client() *redis.Client { return c.client }

// Key joins parts with ':' under the prefix: Key("latest_tips", "mid_term")
// is "signalforge:latest_tips:mid_term".
func (c *RedisCache) Key(parts ...string) string {
	k := strings.Join(parts, ":")
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
