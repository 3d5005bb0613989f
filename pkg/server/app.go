package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalForge/internal/middleware"
	"SignalForge/internal/usecase"
	xhttp "SignalForge/pkg/http"
	applogger "SignalForge/pkg/logger"
)

// Timeouts bounds each shutdown step.
type Timeouts struct {
	Feeds time.Duration
	Drain time.Duration
	HTTP  time.Duration
}

// App encapsulates the engine lifecycle: feeds fan into the dispatcher, the
// health monitor runs its timers, and the HTTP server exposes status.
type App struct {
	state      *State
	log        *applogger.Logger
	collector  *usecase.FeedCollector
	dispatcher *middleware.RealtimePipeline
	emitter    *usecase.Emitter
	health     *usecase.HealthMonitor
	httpServer *xhttp.Server
	timeouts   Timeouts
}

// New creates a new App instance with all dependencies.
func New(
	state *State,
	log *applogger.Logger,
	collector *usecase.FeedCollector,
	dispatcher *middleware.RealtimePipeline,
	emitter *usecase.Emitter,
	health *usecase.HealthMonitor,
	httpServer *xhttp.Server,
	timeouts Timeouts,
) *App {
	if timeouts.Feeds <= 0 {
		timeouts.Feeds = 5 * time.Second
	}
	if timeouts.Drain <= 0 {
		timeouts.Drain = 25 * time.Second
	}
	if timeouts.HTTP <= 0 {
		timeouts.HTTP = 5 * time.Second
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		state:      state,
		log:        log.Component("app"),
		collector:  collector,
		dispatcher: dispatcher,
		emitter:    emitter,
		health:     health,
		httpServer: httpServer,
		timeouts:   timeouts,
	}
}

// State exposes the lifecycle phase.
func (a *App) State() *State { return a.state }

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts everything and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	a.state.Set(PhaseStarting)

	// workers get their own context so they can drain after ctx is cancelled
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	timerCtx, cancelTimers := context.WithCancel(ctx)
	defer cancelTimers()

	// bind first: a taken port must fail before any feed connects
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.state.Set(PhaseStopped)
			return fmt.Errorf("start http: %w", err)
		}
	}
	a.dispatcher.Start(workCtx)
	a.collector.Start(workCtx)
	if a.health != nil {
		a.health.Start(timerCtx)
	}

	a.state.Set(PhaseRunning)
	a.log.Info("engine running")

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(cancelTimers)
}

// shutdown stops intake first, then drains what is in flight.
func (a *App) shutdown(stopTimers context.CancelFunc) error {
	a.state.Set(PhaseShuttingDown)
	a.dispatcher.Close()

	var errs []error

	feedCtx, cancel := context.WithTimeout(context.Background(), a.timeouts.Feeds)
	if err := a.collector.Shutdown(feedCtx); err != nil {
		a.log.Warn("feed shutdown", applogger.Error(err))
		errs = append(errs, err)
	}
	cancel()

	stopTimers()
	if a.health != nil {
		a.health.Wait()
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), a.timeouts.Drain)
	if err := a.dispatcher.Drain(drainCtx); err != nil {
		a.log.Error("dispatcher drain", applogger.Error(err))
		errs = append(errs, err)
	}
	if err := a.emitter.Wait(drainCtx); err != nil {
		a.log.Error("in-flight emissions", applogger.Error(err))
		errs = append(errs, err)
	}
	cancel()

	if a.httpServer != nil {
		httpCtx, cancel := context.WithTimeout(context.Background(), a.timeouts.HTTP)
		if err := a.httpServer.Stop(httpCtx); err != nil {
			a.log.Warn("http shutdown", applogger.Error(err))
		}
		cancel()
	}

	a.state.Set(PhaseStopped)
	accepted, dropped := a.dispatcher.Stats()
	emitted, failed := a.emitter.Stats()
	a.log.Info("shutdown complete",
		applogger.Int64("accepted", accepted),
		applogger.Int64("dropped", dropped),
		applogger.Int64("emitted", emitted),
		applogger.Int64("failed", failed))

	// timeouts are reported but do not change the exit code
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown finished with errors", applogger.Error(err))
	}
	return nil
}
