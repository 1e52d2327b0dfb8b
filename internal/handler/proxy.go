package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/model"
	"scafoldr-gateway/internal/service"
	"scafoldr-gateway/internal/session"
)

// Messages used when an upstream error body is JSON without an error field.
const (
	msgSendCodeFailed   = "Failed to save send code to user"
	msgVerifyFailed     = "Failed to verify user"
	msgFetchFilesFailed = "Failed to fetch project files"
	msgSaveFilesFailed  = "Failed to save files"
	msgFetchFileFailed  = "Failed to fetch file"
	msgSaveFileFailed   = "Failed to save file"
	msgDeleteFileFailed = "Failed to delete file"
)

// maxVerifyBodyBytes caps the verify response buffered to read the token.
const maxVerifyBodyBytes = 1 << 20

// ProxyHandler serves the request/response routes: the upstream answer is
// relayed once it is complete.
type ProxyHandler struct {
	gateway  *service.Gateway
	sessions *session.AppStore
	logger   *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(gw *service.Gateway, sessions *session.AppStore, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		gateway:  gw,
		sessions: sessions,
		logger:   logger.With("component", "proxy_handler"),
	}
}

// SendCode handles POST /api/auth/send-code.
func (h *ProxyHandler) SendCode(c echo.Context) error {
	var in model.SendCodeInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	resp, err := h.gateway.SendCode(c.Request().Context(), in)
	return h.respond(c, resp, err, msgSendCodeFailed)
}

// Verify handles POST /api/auth/verify. A token in the upstream answer is
// stored in the session cookie; the body is relayed unchanged.
func (h *ProxyHandler) Verify(c echo.Context) error {
	var in model.VerifyInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	resp, err := h.gateway.VerifyCode(c.Request().Context(), in)
	if err != nil {
		return mapError(c, err, h.logger)
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.OK() {
		return writeUpstreamError(c, resp, h.logger, msgVerifyFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyBodyBytes))
	if err != nil {
		return mapError(c, err, h.logger)
	}
	var result model.VerifyResult
	if err := json.Unmarshal(body, &result); err != nil {
		h.logger.Warn("verify response is not JSON", "err", err)
	}
	if result.Token != "" {
		h.sessions.Issue(c.Response(), result.Token)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return passThrough(c, resp, h.logger)
}

// Chat handles POST /api/chat.
func (h *ProxyHandler) Chat(c echo.Context) error {
	var in model.ChatInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	resp, err := h.gateway.Chat(c.Request().Context(), in)
	return h.respond(c, resp, err, "")
}

// Consult handles POST /api/scafoldr-inc.
func (h *ProxyHandler) Consult(c echo.Context) error {
	var in model.ChatInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	resp, err := h.gateway.Consult(c.Request().Context(), in)
	return h.respond(c, resp, err, "")
}

// Generate handles POST /api/generate.
func (h *ProxyHandler) Generate(c echo.Context) error {
	var in model.GenerateInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	if in.ProjectName == "" {
		return errorJSON(c, http.StatusBadRequest, "project_name is required")
	}
	resp, err := h.gateway.Generate(c.Request().Context(), in)
	return h.respond(c, resp, err, "")
}

// FetchBulkCode handles GET /api/fetch/code/:projectId.
func (h *ProxyHandler) FetchBulkCode(c echo.Context) error {
	resp, err := h.gateway.FetchBulkCode(c.Request().Context(), pathParam(c, "projectId"))
	return h.respond(c, resp, err, msgFetchFilesFailed)
}

// ListFiles handles GET /api/code/:projectId.
func (h *ProxyHandler) ListFiles(c echo.Context) error {
	resp, err := h.gateway.ListFiles(c.Request().Context(), pathParam(c, "projectId"))
	return h.respond(c, resp, err, msgFetchFilesFailed)
}

// SaveFiles handles POST /api/code/:projectId.
func (h *ProxyHandler) SaveFiles(c echo.Context) error {
	resp, err := h.gateway.SaveFiles(c.Request().Context(), pathParam(c, "projectId"), c.Request().Body)
	return h.respond(c, resp, err, msgSaveFilesFailed)
}

// GetFile handles GET /api/code/:projectId/*.
func (h *ProxyHandler) GetFile(c echo.Context) error {
	resp, err := h.gateway.GetFile(c.Request().Context(), pathParam(c, "projectId"), pathParam(c, "*"))
	return h.respond(c, resp, err, msgFetchFileFailed)
}

// SaveFile handles POST /api/code/:projectId/*.
func (h *ProxyHandler) SaveFile(c echo.Context) error {
	resp, err := h.gateway.SaveFile(c.Request().Context(), pathParam(c, "projectId"), pathParam(c, "*"), c.Request().Body)
	return h.respond(c, resp, err, msgSaveFileFailed)
}

// DeleteFile handles DELETE /api/code/:projectId/*.
func (h *ProxyHandler) DeleteFile(c echo.Context) error {
	req := c.Request()
	resp, err := h.gateway.DeleteFile(req.Context(), pathParam(c, "projectId"), pathParam(c, "*"), req.Header.Get(echo.HeaderAuthorization))
	return h.respond(c, resp, err, msgDeleteFileFailed)
}

func (h *ProxyHandler) respond(c echo.Context, resp *model.ProxyResponse, err error, fallback string) error {
	if err != nil {
		return mapError(c, err, h.logger)
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.OK() {
		return writeUpstreamError(c, resp, h.logger, fallback)
	}
	return passThrough(c, resp, h.logger)
}

// bindBody decodes the JSON request body into v. An empty body leaves v zero.
func bindBody(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	return nil
}
