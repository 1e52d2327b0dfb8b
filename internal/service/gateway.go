// Package service implements the upstream operations behind each gateway route.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"scafoldr-gateway/internal/client"
	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/model"
)

// Operation names, used as upstream metric labels and in logs.
const (
	OpSendCode      = "send-code"
	OpVerify        = "verify"
	OpChat          = "chat"
	OpChatStream    = "chat-stream"
	OpConsult       = "consult"
	OpConsultStream = "consult-stream"
	OpAgentStream   = "dbml-agent-stream"
	OpGenerate      = "generate"
	OpCodeUpdates   = "code-updates"
	OpFetchBulkCode = "fetch-bulk-code"
	OpListFiles     = "list-files"
	OpSaveFiles     = "save-files"
	OpGetFile       = "get-file"
	OpSaveFile      = "save-file"
	OpDeleteFile    = "delete-file"
)

const dbmlChatKey = "dbml-chat"

// ErrInvalidPath is returned when a project ID or file path cannot be mapped
// onto an upstream URL.
var ErrInvalidPath = errors.New("invalid project or file path")

// forwardableResponseHeaders are the only response headers relayed to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":     true,
	"Content-Length":   true,
	"Content-Encoding": true,
	"Cache-Control":    true,
	"Date":             true,
}

const userAgent = "scafoldr-gateway/1.0"

// Gateway performs the upstream call for each logical operation. Base URLs are
// parsed once; every call builds its URL from a fixed sub-path.
type Gateway struct {
	client *client.UpstreamClient
	rest   *url.URL
	core   *url.URL
	logger *slog.Logger
}

// NewGateway creates a Gateway from the configured base URLs.
func NewGateway(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	rest, err := url.Parse(cfg.Upstream.RestBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream rest_base_url: %w", err)
	}
	core, err := url.Parse(cfg.Upstream.CoreBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream core_base_url: %w", err)
	}
	return &Gateway{
		client: c,
		rest:   rest,
		core:   core,
		logger: logger.With("component", "gateway_service"),
	}, nil
}

// SendCode asks the auth service to email a login code.
func (g *Gateway) SendCode(ctx context.Context, in model.SendCodeInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpSendCode, g.rest.JoinPath("api", "v1", "auth", "send-code"), model.SendCodeInput{Email: in.Email})
}

// VerifyCode exchanges an emailed code for a session token.
func (g *Gateway) VerifyCode(ctx context.Context, in model.VerifyInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpVerify, g.rest.JoinPath("api", "v1", "auth", "verify"), model.VerifyInput{Code: in.Code, Email: in.Email})
}

// Chat sends one DBML chat turn and waits for the full answer.
func (g *Gateway) Chat(ctx context.Context, in model.ChatInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpChat, g.core.JoinPath("generate-dbml-chat"), model.UpstreamChat{
		ChatKey:        dbmlChatKey,
		UserInput:      in.UserInput,
		ConversationID: in.ConversationID,
	})
}

// ChatStream sends one DBML chat turn and returns the streamed answer.
func (g *Gateway) ChatStream(ctx context.Context, in model.ChatInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpChatStream, g.core.JoinPath("generate-dbml-chat-stream"), model.UpstreamChat{
		UserInput:      in.UserInput,
		ConversationID: in.ConversationID,
	})
}

// Consult asks the agent company for a full answer.
func (g *Gateway) Consult(ctx context.Context, in model.ChatInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpConsult, g.core.JoinPath("scafoldr-inc", "consult"), consultPayload(in))
}

// ConsultStream asks the agent company and returns the streamed answer.
func (g *Gateway) ConsultStream(ctx context.Context, in model.ChatInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpConsultStream, g.core.JoinPath("scafoldr-inc", "consult-stream"), consultPayload(in))
}

func consultPayload(in model.ChatInput) model.UpstreamChat {
	return model.UpstreamChat{
		UserInput:      in.UserInput,
		ConversationID: in.ConversationID,
		ProjectID:      in.ProjectID,
	}
}

// AgentStream runs the DBML assistant agent and returns its chunked output.
func (g *Gateway) AgentStream(ctx context.Context, in model.AgentInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpAgentStream, g.core.JoinPath("api", "dbml-ai-agent", "stream"), in)
}

// Generate asks the core API to generate a project from a DBML schema.
func (g *Gateway) Generate(ctx context.Context, in model.GenerateInput) (*model.ProxyResponse, error) {
	return g.postJSON(ctx, OpGenerate, g.core.JoinPath("generate"), in.ToUpstream())
}

// CodeUpdates opens the SSE stream of code changes for a project.
func (g *Gateway) CodeUpdates(ctx context.Context, projectID string) (*model.ProxyResponse, error) {
	u, err := g.codeURL("api", "sse", "code-updates", projectID)
	if err != nil {
		return nil, err
	}
	header := g.header()
	header.Set("Accept", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	return g.do(ctx, OpCodeUpdates, http.MethodGet, u, header, nil)
}

// FetchBulkCode returns every file of a project with its content.
func (g *Gateway) FetchBulkCode(ctx context.Context, projectID string) (*model.ProxyResponse, error) {
	u, err := g.codeURL("api", "code", projectID, "bulk")
	if err != nil {
		return nil, err
	}
	return g.getJSON(ctx, OpFetchBulkCode, u)
}

// ListFiles returns the file metadata of a project.
func (g *Gateway) ListFiles(ctx context.Context, projectID string) (*model.ProxyResponse, error) {
	u, err := g.codeURL("api", "code", projectID)
	if err != nil {
		return nil, err
	}
	return g.getJSON(ctx, OpListFiles, u)
}

// SaveFiles forwards a bulk save; body is relayed without re-encoding.
func (g *Gateway) SaveFiles(ctx context.Context, projectID string, body io.Reader) (*model.ProxyResponse, error) {
	u, err := g.codeURL("api", "code", projectID, "bulk")
	if err != nil {
		return nil, err
	}
	header := g.header()
	header.Set("Content-Type", "application/json")
	return g.do(ctx, OpSaveFiles, http.MethodPost, u, header, body)
}

// GetFile returns a single file of a project.
func (g *Gateway) GetFile(ctx context.Context, projectID, filePath string) (*model.ProxyResponse, error) {
	u, err := g.fileURL(projectID, filePath)
	if err != nil {
		return nil, err
	}
	return g.getJSON(ctx, OpGetFile, u)
}

// SaveFile updates a single file; body is relayed without re-encoding.
func (g *Gateway) SaveFile(ctx context.Context, projectID, filePath string, body io.Reader) (*model.ProxyResponse, error) {
	u, err := g.fileURL(projectID, filePath)
	if err != nil {
		return nil, err
	}
	header := g.header()
	header.Set("Content-Type", "application/json")
	return g.do(ctx, OpSaveFile, http.MethodPost, u, header, body)
}

// DeleteFile deletes a single file. The caller's Authorization header, if any,
// is the only inbound header forwarded upstream.
func (g *Gateway) DeleteFile(ctx context.Context, projectID, filePath, authorization string) (*model.ProxyResponse, error) {
	u, err := g.fileURL(projectID, filePath)
	if err != nil {
		return nil, err
	}
	header := g.header()
	if authorization != "" {
		header.Set("Authorization", authorization)
	}
	return g.do(ctx, OpDeleteFile, http.MethodDelete, u, header, nil)
}

func (g *Gateway) postJSON(ctx context.Context, op string, u *url.URL, payload any) (*model.ProxyResponse, error) {
	g.logger.Debug("forwarding request", "operation", op, "path", u.Path)
	resp, err := g.client.DoJSON(ctx, op, http.MethodPost, u.String(), g.header(), payload)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", op, err)
	}
	resp.Header = FilterResponseHeaders(resp.Header)
	return resp, nil
}

func (g *Gateway) getJSON(ctx context.Context, op string, u *url.URL) (*model.ProxyResponse, error) {
	header := g.header()
	header.Set("Accept", "application/json")
	return g.do(ctx, op, http.MethodGet, u, header, nil)
}

func (g *Gateway) do(ctx context.Context, op, method string, u *url.URL, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	g.logger.Debug("forwarding request", "operation", op, "method", method, "path", u.Path)
	resp, err := g.client.Do(ctx, &model.UpstreamRequest{
		Operation: op,
		Method:    method,
		URL:       u.String(),
		Header:    header,
		Body:      body,
	})
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", op, err)
	}
	resp.Header = FilterResponseHeaders(resp.Header)
	return resp, nil
}

func (g *Gateway) header() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	return h
}

// codeURL joins raw path segments onto the core base URL, escaping each one.
// Every segment must be a plain name: empty, "." and ".." are rejected.
func (g *Gateway) codeURL(segments ...string) (*url.URL, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		if s == "" || s == "." || s == ".." {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidPath, s)
		}
		escaped[i] = url.PathEscape(s)
	}
	return g.core.JoinPath(escaped...), nil
}

func (g *Gateway) fileURL(projectID, filePath string) (*url.URL, error) {
	segments := append([]string{"api", "code", projectID}, strings.Split(strings.Trim(filePath, "/"), "/")...)
	return g.codeURL(segments...)
}

// FilterResponseHeaders keeps only the headers a client may see from an
// upstream response. The gateway's own request id and security headers are
// never overridden by upstream values.
func FilterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
