package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"scafoldr-gateway/internal/config"
	"scafoldr-gateway/internal/metrics"
	"scafoldr-gateway/internal/model"
)

func newTestClient(m *metrics.Metrics) *UpstreamClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{IdleConnections: 10},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(nil)

	resp, err := c.Do(context.Background(), &model.UpstreamRequest{
		Operation: "test",
		Method:    http.MethodGet,
		URL:       srv.URL + "/test",
		Header:    http.Header{"Accept": {"text/event-stream"}},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Status != "200 OK" {
		t.Errorf("Status = %q, want %q", resp.Status, "200 OK")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(body), `{"status":"ok"}`)
	}
}

func TestUpstreamClient_DoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var got map[string]string
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if got["user_input"] != "hello" {
			t.Errorf("user_input = %q, want %q", got["user_input"], "hello")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(m)

	resp, err := c.DoJSON(context.Background(), "chat", http.MethodPost, srv.URL, nil, map[string]string{"user_input": "hello"})
	if err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if got := testutil.ToFloat64(m.UpstreamResponses.WithLabelValues("chat", "201")); got != 1 {
		t.Errorf("upstream responses{chat,201} = %v, want 1", got)
	}
}

func TestUpstreamClient_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(nil)
	resp, err := c.Do(context.Background(), &model.UpstreamRequest{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
}

func TestUpstreamClient_Do_Error(t *testing.T) {
	c := newTestClient(nil)

	_, err := c.Do(context.Background(), &model.UpstreamRequest{Method: http.MethodGet, URL: "http://127.0.0.1:1/nonexistent"})
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
}

func TestUpstreamClient_Do_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Do(ctx, &model.UpstreamRequest{Method: http.MethodGet, URL: srv.URL + "/slow"})
	if err == nil {
		t.Fatal("Do() expected error for canceled context, got nil")
	}
}
