package api

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/usecase"
	xhttp "SignalForge/pkg/http"
	xlogger "SignalForge/pkg/logger"
)

// Lifecycle reports the application phase.
type Lifecycle interface {
	Ready() bool
	Phase() string
}

// HealthPayload is the /health body.
type HealthPayload struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
	Phase  string `json:"phase"`
	Uptime string `json:"uptime"`
}

// EngineEchoHandler serves health, status, tips and cached symbol state.
type EngineEchoHandler struct {
	logger  *xlogger.Logger
	life    Lifecycle
	status  *usecase.StatusUseCase
	tips    *usecase.TipsUseCase
	symbols *usecase.SymbolsUseCase
}

func NewEngineEchoHandler(logger *xlogger.Logger, life Lifecycle, status *usecase.StatusUseCase, tips *usecase.TipsUseCase, symbols *usecase.SymbolsUseCase) *EngineEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EngineEchoHandler{logger: logger.Component("api"), life: life, status: status, tips: tips, symbols: symbols}
}

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/status", h.Status)

	g := e.Group("/api")
	g.GET("/tips/:horizon", h.LatestTip)
	g.GET("/stats", h.Stats)
	g.GET("/symbols", h.Symbols)
	g.GET("/symbols/:symbol", h.Symbol)
}

func (h *EngineEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.health())
}

// Healthz adds runtime memory and dependency checks; 503 when a dependency fails.
func (h *EngineEchoHandler) Healthz(c echo.Context) error {
	st := h.status.Snapshot(c.Request().Context(), true)
	body := struct {
		HealthPayload
		Engine *usecase.EngineStatus `json:"engine"`
	}{h.health(), st}
	if !st.Healthy() {
		return xhttp.ServiceUnavailableResponse(c, body)
	}
	return xhttp.SuccessResponse(c, body)
}

func (h *EngineEchoHandler) Ready(c echo.Context) error {
	hp := h.health()
	if !hp.Ready {
		return xhttp.ServiceUnavailableResponse(c, hp)
	}
	return xhttp.SuccessResponse(c, hp)
}

func (h *EngineEchoHandler) Status(c echo.Context) error {
	req := &models.StatusRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.status.Snapshot(c.Request().Context(), req.Verbose))
}

func (h *EngineEchoHandler) LatestTip(c echo.Context) error {
	req := &models.TipRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tip, err := h.tips.LatestTip(c.Request().Context(), req.Horizon)
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, tip)
}

func (h *EngineEchoHandler) Stats(c echo.Context) error {
	stats, err := h.tips.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *EngineEchoHandler) Symbols(c echo.Context) error {
	syms := h.symbols.Symbols()
	return xhttp.ListResponse(c, syms, int64(len(syms)))
}

// Symbol accepts BTC-USD for BTC/USD since the slash cannot appear in a path segment.
func (h *EngineEchoHandler) Symbol(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	view, err := h.symbols.Symbol(req.Symbol, req.Timeframe)
	if errors.Is(err, usecase.ErrUnknownSymbol) && strings.Contains(req.Symbol, "-") {
		view, err = h.symbols.Symbol(strings.Replace(req.Symbol, "-", "/", 1), req.Timeframe)
	}
	if err != nil {
		return h.fail(c, err)
	}
	if req.Limit > 0 && len(view.Bars) > req.Limit {
		view.Bars = view.Bars[len(view.Bars)-req.Limit:]
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *EngineEchoHandler) health() HealthPayload {
	hp := HealthPayload{
		Status: "OK",
		Phase:  "unknown",
		Uptime: time.Since(h.status.StartedAt()).Truncate(time.Second).String(),
	}
	if h.life != nil {
		hp.Ready = h.life.Ready()
		hp.Phase = h.life.Phase()
	}
	return hp
}

func (h *EngineEchoHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidHorizon):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("horizon must be one of short_term, mid_term, long_term").
			With("field", "horizon").Wrap(err))
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("symbol is not tracked").Wrap(err))
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("nothing emitted yet").Wrap(err))
	}
	h.logger.Error("request failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("internal error").Wrap(err))
}

var _ xhttp.Handler = (*EngineEchoHandler)(nil)
