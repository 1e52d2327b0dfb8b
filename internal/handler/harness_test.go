package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/require"

	"scafoldr-gateway/internal/client"
	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/github"
	"scafoldr-gateway/internal/metrics"
	"scafoldr-gateway/internal/middleware"
	"scafoldr-gateway/internal/service"
	"scafoldr-gateway/internal/session"
)

const testSuccessRedirect = "http://localhost:3000/github/auth-success"

// gatewayEnv is a gateway wired against a fake upstream. The same upstream
// server plays the REST API, the core API and GitHub's token endpoint.
type gatewayEnv struct {
	echo     *echo.Echo
	metrics  *metrics.Metrics
	cfg      *config.Config
	upstream *httptest.Server
}

func newGatewayEnv(t *testing.T, upstream http.Handler, opts ...func(*config.Config)) *gatewayEnv {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			RestBaseURL:     srv.URL + "/rest",
			CoreBaseURL:     srv.URL + "/core",
			IdleConnections: 10,
		},
		GitHub: config.GitHubConfig{
			ClientID:        "Iv1.test",
			ClientSecret:    "secret",
			RedirectURI:     "https://scafoldr.test/api/github/callback",
			TokenURL:        srv.URL + "/login/oauth/access_token",
			SuccessRedirect: testSuccessRedirect,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	up := client.NewUpstreamClient(cfg, logger, m)
	gw, err := service.NewGateway(up, cfg, logger)
	require.NoError(t, err)
	appSessions := session.NewAppStore(cfg)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.AuthGate(appSessions, m, logger))
	RegisterRoutes(e, cfg, m, Handlers{
		Proxy:  NewProxyHandler(gw, appSessions, logger),
		Stream: NewStreamHandler(gw, m, logger),
		GitHub: NewGitHubHandler(github.NewClient(up, cfg, logger), session.NewGitHubStore(cfg), cfg, logger),
		Health: NewHealthHandler(cfg, "test"),
	})

	return &gatewayEnv{echo: e, metrics: m, cfg: cfg, upstream: srv}
}

// do serves one request in-process.
func (g *gatewayEnv) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptestRequest(method, target, body)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return serveRequest(g, req)
}

// serve starts the gateway on a real listener, for tests that depend on
// connection behavior.
func (g *gatewayEnv) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.echo)
	t.Cleanup(srv.Close)
	return srv
}

func errorField(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "response is not JSON: %q", rec.Body.String())
	s, _ := body["error"].(string)
	return s
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func httptestRequest(method, target, body string) *http.Request {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func serveRequest(g *gatewayEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.echo.ServeHTTP(rec, req)
	return rec
}
