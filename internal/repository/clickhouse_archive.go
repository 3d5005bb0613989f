package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	pkgch "SignalForge/pkg/clickhouse"
)

const insertChunk = 2000

// ClickHouseArchive stores ticks and notification analytics in ClickHouse.
type ClickHouseArchive struct {
	db       *sql.DB
	database string
	bound    func(context.Context) (context.Context, context.CancelFunc)
}

// NewClickHouseArchive wraps a connected client.
func NewClickHouseArchive(ch *pkgch.Client) *ClickHouseArchive {
	return &ClickHouseArchive{db: ch.DB(), database: ch.Database(), bound: ch.WriteContext}
}

func (a *ClickHouseArchive) table(name string) string {
	if a.database == "" {
		return name
	}
	return a.database + "." + name
}

func (a *ClickHouseArchive) exec(ctx context.Context, q string, args ...interface{}) error {
	if a.bound != nil {
		var cancel context.CancelFunc
		ctx, cancel = a.bound(ctx)
		defer cancel()
	}
	_, err := a.db.ExecContext(ctx, q, args...)
	return err
}

// StoreEvents inserts ticks as multi-row VALUES in chunks.
func (a *ClickHouseArchive) StoreEvents(ctx context.Context, events []models.PriceEvent) error {
	if len(events) == 0 {
		return nil
	}
	for start := 0; start < len(events); start += insertChunk {
		end := start + insertChunk
		if end > len(events) {
			end = len(events)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, ev := range events[start:end] {
			if ev.Instrument == "" || ev.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, ev.Timestamp.UTC(), ev.Instrument.String(), ev.Price, ev.Volume, string(ev.Source))
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source) VALUES %s",
			a.table("price_events"), strings.Join(values, ","))
		if err := a.exec(ctx, q, args...); err != nil {
			return fmt.Errorf("store events: %w: %v", drepo.ErrPersistence, err)
		}
	}
	return nil
}

func (a *ClickHouseArchive) StoreAnalytics(ctx context.Context, rec models.AnalyticsRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (created_at, message_id, topic, horizon, symbol, sentiment, strength, title, body, tracking_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.table("notification_analytics"))
	err := a.exec(ctx, q,
		rec.CreatedAt.UTC(),
		rec.MessageID,
		rec.Topic,
		string(rec.Horizon),
		rec.Symbol,
		string(rec.Sentiment),
		rec.Strength,
		rec.Title,
		rec.Body,
		rec.TrackingID,
	)
	if err != nil {
		return fmt.Errorf("store analytics: %w: %v", drepo.ErrPersistence, err)
	}
	return nil
}

// HourlyCandles rolls archived ticks up into 1h bars, oldest first.
func (a *ClickHouseArchive) HourlyCandles(ctx context.Context, inst models.Instrument, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
        SELECT bucket, open, high, low, close, vol FROM (
            SELECT toStartOfHour(ts) AS bucket,
                   argMin(price, ts) AS open,
                   max(price) AS high,
                   min(price) AS low,
                   argMax(price, ts) AS close,
                   sum(volume) AS vol
            FROM %s
            WHERE symbol = ?
            GROUP BY bucket
            ORDER BY bucket DESC
            LIMIT ?
        ) ORDER BY bucket ASC`, a.table("price_events"))
	rows, err := a.db.QueryContext(ctx, q, inst.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("hourly candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		c := models.Candle{Symbol: inst.String()}
		if err := rows.Scan(&c.Bucket, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = c.Bucket.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the client.
func (a *ClickHouseArchive) Close() error {
	return nil
}

var (
	_ drepo.Archive      = (*ClickHouseArchive)(nil)
	_ drepo.CandleSource = (*ClickHouseArchive)(nil)
)
