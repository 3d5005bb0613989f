package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SignalForge/pkg/http/middleware"
	"SignalForge/pkg/logger"
)

// Handler mounts its routes on the engine.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

type ServerOption func(*serverSettings)

type serverSettings struct {
	host        string
	port        int
	read, write time.Duration
	grace       time.Duration
	slow        time.Duration
	origins     []string
	registry    *prometheus.Registry
}

// Server is the engine's HTTP surface: API routes plus /metrics.
type Server struct {
	e   *echo.Echo
	s   serverSettings
	log *logger.Logger
}

func NewServer(h Handler, log *logger.Logger, opts ...ServerOption) *Server {
	s := serverSettings{
		host:    "0.0.0.0",
		port:    8080,
		read:    10 * time.Second,
		write:   10 * time.Second,
		grace:   10 * time.Second,
		slow:    time.Second,
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("http")

	reg, gather := prometheus.Registerer(prometheus.DefaultRegisterer), prometheus.Gatherer(prometheus.DefaultGatherer)
	if s.registry != nil {
		reg, gather = s.registry, s.registry
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = s.read
	e.Server.WriteTimeout = s.write

	e.Use(
		middleware.Recover(log),
		middleware.Metrics(middleware.NewHTTPMetrics(reg), log, s.slow),
		middleware.RequestLogging(log),
	)
	if len(s.origins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: s.origins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderAccept, echo.HeaderContentType},
			MaxAge:       600,
		}))
	}

	if h != nil {
		h.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gather, promhttp.HandlerOpts{})))

	return &Server{e: e, s: s, log: log}
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.s.host, strconv.Itoa(s.s.port))
}

// Start binds the listener, so a taken port fails here, then serves in
// the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.Addr(), err)
	}
	s.e.Listener = ln
	s.log.Info("listening", logger.String("addr", ln.Addr().String()))

	go func() {
		if err := s.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve", logger.Error(err))
		}
	}()
	return nil
}

// ListenAddr is the bound address once Start succeeded.
func (s *Server) ListenAddr() net.Addr {
	if s.e.Listener == nil {
		return nil
	}
	return s.e.Listener.Addr()
}

// Stop drains in-flight requests within the grace period.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.s.grace)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.e }

func WithHost(host string) ServerOption {
	return func(s *serverSettings) {
		if host != "" {
			s.host = host
		}
	}
}

// WithPort sets the listen port; 0 picks a free one.
func WithPort(port int) ServerOption {
	return func(s *serverSettings) { s.port = port }
}

// WithTimeouts sets read, write and shutdown grace. Zero keeps the default.
func WithTimeouts(read, write, grace time.Duration) ServerOption {
	return func(s *serverSettings) {
		if read > 0 {
			s.read = read
		}
		if write > 0 {
			s.write = write
		}
		if grace > 0 {
			s.grace = grace
		}
	}
}

// WithCORSOrigins replaces the allowed origins. No origins keeps "*";
// use WithoutCORS to drop the middleware.
func WithCORSOrigins(origins ...string) ServerOption {
	return func(s *serverSettings) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

func WithoutCORS() ServerOption {
	return func(s *serverSettings) { s.origins = nil }
}

func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *serverSettings) { s.registry = reg }
}

// WithSlowRequest sets the latency above which a request is logged as slow.
func WithSlowRequest(d time.Duration) ServerOption {
	return func(s *serverSettings) { s.slow = d }
}
