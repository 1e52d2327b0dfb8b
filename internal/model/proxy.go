// Package model defines shared types for the gateway.
package model

import (
	"io"
	"net/http"
)

// UpstreamRequest is one outbound call to a backend service.
type UpstreamRequest struct {
	// Operation names the logical call (e.g. "chat-stream"); used for logs and metrics.
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      io.Reader
}

// ProxyResponse represents the upstream response to be relayed back.
type ProxyResponse struct {
	StatusCode int
	// Status is the upstream status line, e.g. "503 Service Unavailable".
	Status string
	Header http.Header
	Body   io.ReadCloser
	// ContentLength mirrors http.Response.ContentLength; -1 means unknown.
	ContentLength int64
}

// OK reports whether the upstream status is in the 2xx range.
func (r *ProxyResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// HasBody reports whether the upstream sent a body that can be streamed.
func (r *ProxyResponse) HasBody() bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
