package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Client owns a database/sql pool opened through clickhouse-go.
type Client struct {
	db           *sql.DB
	database     string
	writeTimeout time.Duration
}

// NewClient opens the pool and pings it within the dial timeout.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	if s.host == "" {
		return nil, fmt.Errorf("clickhouse: host is required")
	}

	db := ch.OpenDB(s.options())
	pctx, cancel := context.WithTimeout(ctx, s.dial)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", s, err)
	}
	return &Client{db: db, database: s.database, writeTimeout: s.write}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.database }

// WriteContext bounds a single insert.
func (c *Client) WriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.writeTimeout)
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	return nil
}

// Schema is the DDL for the tick archive and notification analytics.
func Schema(database string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.price_events (
			ts DateTime64(3, 'UTC'),
			symbol LowCardinality(String),
			price Float64,
			volume Float64,
			source LowCardinality(String)
		) ENGINE = MergeTree
		PARTITION BY toYYYYMMDD(ts)
		ORDER BY (symbol, ts)
		TTL toDateTime(ts) + INTERVAL 30 DAY`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.notification_analytics (
			created_at DateTime64(3, 'UTC'),
			message_id String,
			topic LowCardinality(String),
			horizon LowCardinality(String),
			symbol LowCardinality(String),
			sentiment LowCardinality(String),
			strength Float64,
			title String,
			body String,
			tracking_id String
		) ENGINE = MergeTree
		ORDER BY (created_at, message_id)`, database),
	}
}
