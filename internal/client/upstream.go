// Package client provides the upstream HTTP client for the backend services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/metrics"
	"scafoldr-gateway/internal/model"
)

// UpstreamClient sends requests to the backend services. One instance is shared
// by every route; connections are pooled by the transport.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// The client has no overall timeout: a whole-request deadline would cut off
// long-lived SSE streams. Only the wait for response headers is bounded, and
// only when configured.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.ResponseHeaderTimeoutSeconds) * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Upstreams answer with JSON or streams; a redirect is not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an upstream request and returns the raw response.
// The caller is responsible for closing the response body.
// The context controls the lifetime of the whole exchange, including reading
// the body: canceling it aborts an in-flight stream.
func (c *UpstreamClient) Do(ctx context.Context, ur *model.UpstreamRequest) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, ur.Method, ur.URL, ur.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if ur.Header != nil {
		req.Header = ur.Header
	}

	c.logger.Debug("upstream request",
		"operation", ur.Operation,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(ur.Operation).Observe(duration)
	}
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(ur.Operation, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxyResponse{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Header:        resp.Header,
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

// DoJSON encodes payload as the request body and executes the request.
// header may be nil; Content-Type is always set to application/json.
func (c *UpstreamClient) DoJSON(ctx context.Context, operation, method, url string, header http.Header, payload any) (*model.ProxyResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", operation, err)
	}
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Type", "application/json")
	return c.Do(ctx, &model.UpstreamRequest{
		Operation: operation,
		Method:    method,
		URL:       url,
		Header:    header,
		Body:      bytes.NewReader(body),
	})
}
