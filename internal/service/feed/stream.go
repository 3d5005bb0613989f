package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/metrics"
)

// ErrSessionRejected marks a frame in which the provider refuses the session.
// Read ends with it so the caller reconnects instead of idling on a dead socket.
var ErrSessionRejected = fmt.Errorf("session rejected: %w", drepo.ErrUpstreamUnavailable)

const (
	defaultBuffer    = 1024
	closeGracePeriod = time.Second
	writeTimeout     = 5 * time.Second
)

// Options carries the settings shared by every feed.
type Options struct {
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	DialTimeout    time.Duration
	Buffer         int
	Metrics        drepo.Metrics
	Logger         *logger.Logger
}

func (o *Options) applyDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = defaultBuffer
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Noop{}
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
}

// codec holds what differs between upstreams: where to dial, what to send
// after connecting, and how to turn frames into events.
type codec interface {
	url() (string, error)
	handshake(conn *websocket.Conn) error
	decode(frame []byte) ([]models.PriceEvent, error)
}

// stream implements MarketStream over a websocket and a codec.
type stream struct {
	name   string
	codec  codec
	opts   Options
	dialer *websocket.Dialer
	log    *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

func newStream(name string, c codec, opts Options) *stream {
	opts.applyDefaults()
	return &stream{
		name:  name,
		codec: c,
		opts:  opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
		log: opts.Logger.Component("feed").With(logger.String("feed", name)),
	}
}

func (s *stream) Name() string { return s.name }

// Connect dials the upstream.
func (s *stream) Connect(ctx context.Context) error {
	u, err := s.codec.url()
	if err != nil {
		return fmt.Errorf("%s connect: %w", s.name, err)
	}
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("%s connect: %w", s.name, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setConnected(true)
	s.log.Info("connected")
	return nil
}

// Subscribe sends the codec handshake (auth and subscriptions).
func (s *stream) Subscribe(ctx context.Context) error {
	conn := s.current()
	if conn == nil || !s.IsConnected() {
		return fmt.Errorf("%s not connected", s.name)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	if err := s.codec.handshake(conn); err != nil {
		return fmt.Errorf("%s subscribe: %w", s.name, err)
	}
	return nil
}

// Read streams normalized events until the connection fails or ctx ends.
// The error channel carries at most one error.
func (s *stream) Read(ctx context.Context) (<-chan models.PriceEvent, <-chan error) {
	events := make(chan models.PriceEvent, s.opts.Buffer)
	errs := make(chan error, 1)
	conn := s.current()

	done := make(chan struct{})

	// ping loop
	go func() {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("%s conn nil", s.name)
			return
		}
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.setConnected(false)
				errs <- fmt.Errorf("%s read: %w", s.name, err)
				return
			}
			evs, err := s.codec.decode(b)
			if errors.Is(err, ErrSessionRejected) {
				s.setConnected(false)
				errs <- fmt.Errorf("%s: %w", s.name, err)
				return
			}
			if err != nil {
				s.opts.Metrics.RecordDrop("malformed")
				s.log.Warn("dropping frame", logger.Error(err))
				continue
			}
			for _, ev := range evs {
				if err := validate(ev); err != nil {
					s.opts.Metrics.RecordDrop("invalid_event")
					s.log.Warn("dropping event", logger.Error(err))
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				default:
					s.opts.Metrics.RecordDrop("feed_backpressure")
				}
			}
		}
	}()

	return events, errs
}

// Reconnect closes the socket, waits the reconnect delay, then connects and subscribes again.
func (s *stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.opts.ReconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close sends a normal-closure frame and closes the socket.
func (s *stream) Close() error {
	s.setConnected(false)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return conn.Close()
}

func (s *stream) IsConnected() bool { return s.connected.Load() }

func (s *stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *stream) setConnected(up bool) {
	s.connected.Store(up)
	s.opts.Metrics.SetFeedConnected(s.name, up)
}
