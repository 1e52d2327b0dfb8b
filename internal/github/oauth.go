// Package github exchanges GitHub OAuth authorization codes for access tokens.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"scafoldr-gateway/internal/client"
	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/model"
	"scafoldr-gateway/internal/service"
)

// OpTokenExchange labels the token exchange in upstream metrics.
const OpTokenExchange = "github-token"

// maxTokenBodyBytes caps the token response read by DecodeToken.
const maxTokenBodyBytes = 64 << 10

// ErrNoAccessToken is returned by DecodeToken when GitHub answered without a token.
var ErrNoAccessToken = errors.New("no access token in response")

// Exchanger trades an authorization code for GitHub's token response.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*model.ProxyResponse, error)
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

// Token is GitHub's token endpoint response. GitHub reports a bad code with a
// 200 status and the error fields set.
type Token struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Client is the production Exchanger, posting to the configured token URL.
type Client struct {
	upstream *client.UpstreamClient
	cfg      config.GitHubConfig
	logger   *slog.Logger
}

// NewClient creates a Client from the github config section.
func NewClient(up *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		upstream: up,
		cfg:      cfg.GitHub,
		logger:   logger.With("component", "github_oauth"),
	}
}

// Exchange posts the code with the app credentials. The response is returned
// with the body untouched and headers reduced to the forwardable set.
func (c *Client) Exchange(ctx context.Context, code string) (*model.ProxyResponse, error) {
	header := make(http.Header)
	header.Set("Accept", "application/json")

	c.logger.Debug("exchanging authorization code")
	resp, err := c.upstream.DoJSON(ctx, OpTokenExchange, http.MethodPost, c.cfg.TokenURL, header, tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Code:         code,
		RedirectURI:  c.cfg.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("github token exchange: %w", err)
	}
	resp.Header = service.FilterResponseHeaders(resp.Header)
	return resp, nil
}

// DecodeToken reads a token response body. It returns ErrNoAccessToken,
// together with the decoded fields, when GitHub sent no token.
func DecodeToken(body io.Reader) (*Token, error) {
	var tok Token
	if err := json.NewDecoder(io.LimitReader(body, maxTokenBodyBytes)).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode github token response: %w", err)
	}
	if tok.AccessToken == "" {
		return &tok, ErrNoAccessToken
	}
	return &tok, nil
}
