package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/metrics"
	"scafoldr-gateway/internal/session"
)

// Path prefixes seen by the gate. A prefix matches the path itself and
// anything below it.
const (
	apiPrefix  = "/api"
	authPrefix = "/auth"
	appPrefix  = "/app"
)

// AuthGate redirects requests for the application pages to the login page
// unless the request carries a session. API and login paths always pass.
// Only the presence of a session is checked; sessions decides what counts.
// m may be nil.
func AuthGate(sessions session.Lookup, m *metrics.Metrics, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if underPrefix(path, apiPrefix) || underPrefix(path, authPrefix) || !underPrefix(path, appPrefix) {
				return next(c)
			}
			if _, ok := sessions.Token(req); ok {
				return next(c)
			}

			target := authPrefix
			if req.URL.RawQuery != "" {
				target += "?" + req.URL.RawQuery
			}
			if m != nil {
				m.AuthGateRedirects.Inc()
			}
			logger.Debug("no session, redirecting to login", "path", path)
			return c.Redirect(http.StatusTemporaryRedirect, target)
		}
	}
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
