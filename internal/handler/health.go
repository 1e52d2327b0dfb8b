package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         string(h.version),
		"rest_base_url":   h.cfg.Upstream.RestBaseURL,
		"core_base_url":   h.cfg.Upstream.CoreBaseURL,
		"github_oauth":    h.cfg.GitHub.ClientID != "",
		"secure_cookies":  h.cfg.Session.SecureCookies(),
		"static_frontend": h.cfg.Server.StaticDir != "",
	})
}
