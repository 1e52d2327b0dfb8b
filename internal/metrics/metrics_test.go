package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("GET", "200", "/api/chat").Inc()
	m.StreamsTotal.WithLabelValues("chat-stream", OutcomeCompleted).Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"scafoldr_gateway_http_requests_total": false,
		"scafoldr_gateway_streams_total":       false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestStreamCounters(t *testing.T) {
	m := New()

	m.StreamBytes.WithLabelValues("code-updates").Add(42)
	m.StreamChunks.WithLabelValues("code-updates").Add(3)

	if got := testutil.ToFloat64(m.StreamBytes.WithLabelValues("code-updates")); got != 42 {
		t.Errorf("stream bytes = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.StreamChunks.WithLabelValues("code-updates")); got != 3 {
		t.Errorf("stream chunks = %v, want 3", got)
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/auth/verify", "/api/auth"},
		{"/api/chat", "/api/chat"},
		{"/api/chat-interactive", "/api/chat-interactive"},
		{"/api/code/sse/42", "/api/code"},
		{"/api/code/42/src/index.ts", "/api/code"},
		{"/api/fetch/code/42", "/api/fetch"},
		{"/api/scafoldr-inc", "/api/scafoldr-inc"},
		{"/api/scafoldr-inc-stream", "/api/scafoldr-inc-stream"},
		{"/api/github/callback", "/api/github"},
		{"/app/projects", "/app"},
		{"/healthz", "/healthz"},
		{"/gateway/status", "/gateway/status"},
		{"/metrics", "/metrics"},
		{"/apple", "other"},
		{"/api/unknown", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHandler_ServesRegistry(t *testing.T) {
	m := New()
	m.AuthGateRedirects.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "scafoldr_gateway_auth_gate_redirects_total 1") {
		t.Error("expected auth gate redirect counter in exposition output")
	}
}
