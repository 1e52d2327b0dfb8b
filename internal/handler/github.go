package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/github"
	"scafoldr-gateway/internal/model"
	"scafoldr-gateway/internal/session"
)

const (
	msgMissingCode       = "Missing code parameter"
	msgTokenExchange     = "OAuth token exchange failed"
	maxTokenResponseSize = 64 << 10
)

// tokenErrorFields are searched for the message of a failed exchange.
var tokenErrorFields = []string{"error_description"}

// GitHubHandler serves the GitHub OAuth routes. The GitHub access token lives
// only in an httpOnly cookie.
type GitHubHandler struct {
	exchanger github.Exchanger
	tokens    *session.GitHubStore
	cfg       config.GitHubConfig
	logger    *slog.Logger
}

// NewGitHubHandler creates a GitHubHandler.
func NewGitHubHandler(ex github.Exchanger, tokens *session.GitHubStore, cfg *config.Config, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{
		exchanger: ex,
		tokens:    tokens,
		cfg:       cfg.GitHub,
		logger:    logger.With("component", "github_handler"),
	}
}

// AccessToken handles POST /api/github/access_token. GitHub's token response
// is returned unchanged.
func (h *GitHubHandler) AccessToken(c echo.Context) error {
	var in model.OAuthCodeInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	if in.Code == "" {
		return errorJSON(c, http.StatusBadRequest, msgMissingCode)
	}

	resp, err := h.exchanger.Exchange(c.Request().Context(), in.Code)
	if err != nil {
		return mapError(c, err, h.logger)
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.OK() {
		return writeUpstreamError(c, resp, h.logger, msgTokenExchange, tokenErrorFields...)
	}
	return passThrough(c, resp, h.logger)
}

// Callback handles GET /api/github/callback?code=. The token is stored in the
// access_token cookie and the browser is sent to the configured success page.
func (h *GitHubHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return errorJSON(c, http.StatusBadRequest, msgMissingCode)
	}

	resp, err := h.exchanger.Exchange(c.Request().Context(), code)
	if err != nil {
		return mapError(c, err, h.logger)
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.OK() {
		return writeUpstreamError(c, resp, h.logger, msgTokenExchange, tokenErrorFields...)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return mapError(c, err, h.logger)
	}
	tok, err := github.DecodeToken(bytes.NewReader(body))
	if err != nil {
		msg := msgTokenExchange
		if errors.Is(err, github.ErrNoAccessToken) && tok.ErrorDescription != "" {
			msg = tok.ErrorDescription
		}
		h.logger.Warn("github callback without token", "err", err)
		return errorJSON(c, http.StatusBadRequest, msg)
	}

	h.tokens.Issue(c.Response(), tok.AccessToken)
	return c.Redirect(http.StatusFound, h.cfg.SuccessRedirect)
}

// CheckAccessToken handles GET /api/github/check_access_token.
func (h *GitHubHandler) CheckAccessToken(c echo.Context) error {
	_, ok := h.tokens.Token(c.Request())
	return c.JSON(http.StatusOK, map[string]bool{"isAuthorized": ok})
}

type cookieValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GetAccessToken handles GET /api/github/get_access_token.
func (h *GitHubHandler) GetAccessToken(c echo.Context) error {
	token, ok := h.tokens.Token(c.Request())
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{"isAuthorized": nil})
	}
	return c.JSON(http.StatusOK, map[string]cookieValue{
		"access_token": {Name: h.tokens.Name(), Value: token},
	})
}

// Config handles GET /api/github/config, the values the frontend needs to
// start the OAuth flow.
func (h *GitHubHandler) Config(c echo.Context) error {
	if h.cfg.ClientID == "" {
		return errorJSON(c, http.StatusInternalServerError, "GitHub client ID not configured")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"clientId":    h.cfg.ClientID,
		"redirectUri": h.cfg.RedirectURI,
	})
}
