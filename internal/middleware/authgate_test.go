package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/metrics"
	"scafoldr-gateway/internal/session"
)

func newGatedEcho(m *metrics.Metrics) *echo.Echo {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(AuthGate(session.NewAppStore(&config.Config{}), m, logger))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "page")
	})
	return e
}

func TestAuthGate(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		cookie       *http.Cookie
		wantStatus   int
		wantLocation string
	}{
		{name: "app without session", target: "/app", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/auth"},
		{name: "app subpath without session", target: "/app/projects/1", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/auth"},
		{
			name:         "query is preserved",
			target:       "/app/editor?project=42&tab=dbml",
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "/auth?project=42&tab=dbml",
		},
		{name: "app with session", target: "/app", cookie: &http.Cookie{Name: "auth", Value: "jwt"}, wantStatus: http.StatusOK},
		{name: "app with empty session", target: "/app", cookie: &http.Cookie{Name: "auth", Value: ""}, wantStatus: http.StatusTemporaryRedirect, wantLocation: "/auth"},
		{name: "github cookie is not a session", target: "/app", cookie: &http.Cookie{Name: "access_token", Value: "gho"}, wantStatus: http.StatusTemporaryRedirect, wantLocation: "/auth"},
		{name: "api without session", target: "/api/chat", wantStatus: http.StatusOK},
		{name: "api code without session", target: "/api/code/1/src/app/index.js", wantStatus: http.StatusOK},
		{name: "auth without session", target: "/auth", wantStatus: http.StatusOK},
		{name: "auth subpath without session", target: "/auth/verify", wantStatus: http.StatusOK},
		{name: "root without session", target: "/", wantStatus: http.StatusOK},
		{name: "app lookalike prefix", target: "/application", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newGatedEcho(nil)

			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLocation {
				t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
			}
		})
	}
}

func TestAuthGate_CountsRedirects(t *testing.T) {
	m := metrics.New()
	e := newGatedEcho(m)

	for _, target := range []string{"/app", "/app/x", "/api/chat"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, http.NoBody))
	}

	if got := testutil.ToFloat64(m.AuthGateRedirects); got != 2 {
		t.Errorf("auth gate redirects = %v, want 2", got)
	}
}
