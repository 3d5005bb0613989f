package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	s := defaults()
	for _, opt := range []ClientOption{
		WithHost("ch.internal"),
		WithPort(9440),
		WithDatabase("signalforge"),
		WithCredentials("", "secret"),
		WithAsyncInsert(true, false),
		WithMaxExecutionTime(30 * time.Second),
		WithTimeouts(0, 3*time.Second, 0),
	} {
		opt(&s)
	}

	opts := s.options()
	require.Len(t, opts.Addr, 1)
	assert.Equal(t, "ch.internal:9440", opts.Addr[0])
	assert.Equal(t, "signalforge", opts.Auth.Database)
	assert.Equal(t, "default", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
	assert.Equal(t, ch.Native, opts.Protocol)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
	assert.Equal(t, 30, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 0, opts.Settings["wait_for_async_insert"])
	assert.Equal(t, "default@ch.internal:9440/signalforge", s.String())
}

func TestOptionsHTTPWithoutAsync(t *testing.T) {
	s := defaults()
	WithHost("localhost")(&s)
	WithHTTP(true)(&s)

	opts := s.options()
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Empty(t, opts.Settings)
}

func TestSchemaTargetsDatabase(t *testing.T) {
	stmts := Schema("sf")
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS sf", stmts[0])
	assert.Contains(t, stmts[1], "sf.price_events")
	assert.Contains(t, stmts[2], "sf.notification_analytics")
}
