package handler

import (
	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/metrics"
)

// Handlers groups the route handlers for RegisterRoutes.
type Handlers struct {
	Proxy  *ProxyHandler
	Stream *StreamHandler
	GitHub *GitHubHandler
	Health *HealthHandler
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, h Handlers) {
	e.GET("/healthz", h.Health.Healthz)
	e.GET("/gateway/status", h.Health.Status)
	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))
	}

	api := e.Group("/api")

	api.POST("/auth/send-code", h.Proxy.SendCode)
	api.POST("/auth/verify", h.Proxy.Verify)

	api.POST("/chat", h.Proxy.Chat)
	api.POST("/chat-interactive", h.Stream.ChatInteractive)
	api.POST("/scafoldr-inc", h.Proxy.Consult)
	api.POST("/scafoldr-inc-stream", h.Stream.ConsultStream)
	api.POST("/dbml-ai-agent/stream", h.Stream.AgentStream)
	api.POST("/generate", h.Proxy.Generate)

	api.GET("/fetch/code/:projectId", h.Proxy.FetchBulkCode)
	api.GET("/code/sse/:projectId", h.Stream.CodeUpdates)
	api.GET("/code/:projectId", h.Proxy.ListFiles)
	api.POST("/code/:projectId", h.Proxy.SaveFiles)
	api.GET("/code/:projectId/*", h.Proxy.GetFile)
	api.POST("/code/:projectId/*", h.Proxy.SaveFile)
	api.DELETE("/code/:projectId/*", h.Proxy.DeleteFile)

	gh := api.Group("/github")
	gh.POST("/access_token", h.GitHub.AccessToken)
	gh.GET("/callback", h.GitHub.Callback)
	gh.GET("/check_access_token", h.GitHub.CheckAccessToken)
	gh.GET("/get_access_token", h.GitHub.GetAccessToken)
	gh.GET("/config", h.GitHub.Config)
}
