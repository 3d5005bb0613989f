package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundError("no such thing")) })
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(pingHandler{}, nil, WithRegistry(prometheus.NewRegistry()), WithPort(0))
}

func serve(s *Server, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServerRoutesAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")

	rec = serve(s, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"ERR_NOT_FOUND"`)

	rec = serve(s, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `signalforge_http_requests_total{method="GET",route="/ping",status="200"} 1`)
	assert.Contains(t, body, `signalforge_http_requests_total{method="GET",route="/missing",status="404"} 1`)
	assert.True(t, strings.Contains(body, "signalforge_http_in_flight_requests"))
}

func TestAppErrorCodes(t *testing.T) {
	assert.Equal(t, "ERR_BAD_REQUEST", BadRequestError("x").Code)
	assert.Equal(t, "ERR_INTERNAL_SERVER_ERROR", InternalError("x").Code)
	assert.Equal(t, "ERR_599", NewAppError(599, "x").Code)

	err := NotFoundError("no tip").With("horizon", "mid_term").Wrap(errors.New("redis: nil"))
	assert.Equal(t, "no tip: redis: nil", err.Error())
	assert.Equal(t, "mid_term", err.Details["horizon"])
}

func TestServerCORS(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodOptions, "/ping", map[string]string{
		echo.HeaderOrigin:                     "https://dash.example.com",
		echo.HeaderAccessControlRequestMethod: http.MethodGet,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET,OPTIONS", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))

	rec = serve(s, http.MethodGet, "/ping", nil)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(pingHandler{}, nil, WithRegistry(prometheus.NewRegistry()), WithHost("127.0.0.1"), WithPort(0))
	require.NoError(t, s.Start())
	addr := s.ListenAddr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	_, err = http.Get("http://" + addr.String() + "/ping")
	assert.Error(t, err)
}

func TestServerStartFailsOnTakenPort(t *testing.T) {
	first := NewServer(nil, nil, WithRegistry(prometheus.NewRegistry()), WithHost("127.0.0.1"), WithPort(0))
	require.NoError(t, first.Start())
	defer func() { _ = first.Stop(context.Background()) }()

	port := first.ListenAddr().(*net.TCPAddr).Port
	second := NewServer(nil, nil, WithRegistry(prometheus.NewRegistry()), WithHost("127.0.0.1"), WithPort(port))
	assert.Error(t, second.Start())
}

func TestServerWithoutCORS(t *testing.T) {
	s := NewServer(pingHandler{}, nil, WithRegistry(prometheus.NewRegistry()), WithoutCORS())
	rec := serve(s, http.MethodGet, "/ping", map[string]string{echo.HeaderOrigin: "https://dash.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
