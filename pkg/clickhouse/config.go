package clickhouse

import (
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

type ClientOption func(*settings)

type settings struct {
	host     string
	port     int
	database string
	user     string
	password string

	maxOpen  int
	maxIdle  int
	lifetime time.Duration

	dial  time.Duration
	read  time.Duration
	write time.Duration

	http      bool
	async     bool
	waitAsync bool
	maxExec   time.Duration
}

func defaults() settings {
	return settings{
		port:     9000,
		database: "default",
		user:     "default",
		maxOpen:  10,
		maxIdle:  5,
		lifetime: 5 * time.Minute,
		dial:     5 * time.Second,
		read:     10 * time.Second,
		write:    10 * time.Second,
	}
}

// options maps the settings onto clickhouse-go's native option struct.
func (s settings) options() *ch.Options {
	opts := &ch.Options{
		Addr: []string{net.JoinHostPort(s.host, strconv.Itoa(s.port))},
		Auth: ch.Auth{
			Database: s.database,
			Username: s.user,
			Password: s.password,
		},
		Protocol:        ch.Native,
		DialTimeout:     s.dial,
		ReadTimeout:     s.read,
		MaxOpenConns:    s.maxOpen,
		MaxIdleConns:    s.maxIdle,
		ConnMaxLifetime: s.lifetime,
		Settings:        ch.Settings{},
	}
	if s.http {
		opts.Protocol = ch.HTTP
	}
	if s.maxExec > 0 {
		opts.Settings["max_execution_time"] = int(s.maxExec / time.Second)
	}
	if s.async {
		opts.Settings["async_insert"] = 1
		if s.waitAsync {
			opts.Settings["wait_for_async_insert"] = 1
		} else {
			opts.Settings["wait_for_async_insert"] = 0
		}
	}
	return opts
}

func (s settings) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", s.user, s.host, s.port, s.database)
}

func WithHost(host string) ClientOption {
	return func(s *settings) { s.host = host }
}

func WithPort(port int) ClientOption {
	return func(s *settings) {
		if port > 0 {
			s.port = port
		}
	}
}

func WithDatabase(database string) ClientOption {
	return func(s *settings) {
		if database != "" {
			s.database = database
		}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(s *settings) {
		if user != "" {
			s.user = user
		}
		s.password = password
	}
}

// WithMaxConnections sizes the pool.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(s *settings) {
		s.maxOpen = maxOpen
		s.maxIdle = maxIdle
	}
}

// WithTimeouts sets dial, read and per-insert deadlines. Zero keeps the default.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(s *settings) {
		if dial > 0 {
			s.dial = dial
		}
		if read > 0 {
			s.read = read
		}
		if write > 0 {
			s.write = write
		}
	}
}

func WithHTTP(useHTTP bool) ClientOption {
	return func(s *settings) { s.http = useHTTP }
}

func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(s *settings) {
		s.async = enabled
		s.waitAsync = wait
	}
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(s *settings) { s.maxExec = d }
}
