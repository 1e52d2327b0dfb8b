package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"scafoldr-gateway/internal/model"
)

// maxErrorBodyBytes caps how much of an upstream error body is read.
const maxErrorBodyBytes = 64 << 10

// DefaultErrorFields are the JSON fields searched, in order, for an upstream error message.
var DefaultErrorFields = []string{"error", "message"}

// ErrorMessage extracts the client-facing message from a non-success upstream
// response. It reads (and drains) the body and applies, in order:
//
//  1. JSON object with a non-empty string in one of fields: that string.
//     Valid JSON without such a field yields fallback.
//  2. Body that is not JSON: the raw text.
//  3. Empty or unreadable body: "HTTP <status>: <statusText>".
//
// fields defaults to DefaultErrorFields. An empty fallback falls through to tier 3.
func ErrorMessage(resp *model.ProxyResponse, fallback string, fields ...string) string {
	if len(fields) == 0 {
		fields = DefaultErrorFields
	}
	if resp.Body == nil {
		return StatusMessage(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return StatusMessage(resp)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return string(data)
	}
	if obj, ok := parsed.(map[string]any); ok {
		for _, f := range fields {
			if s, ok := obj[f].(string); ok && s != "" {
				return s
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return StatusMessage(resp)
}

// StatusMessage synthesizes "HTTP <status>: <statusText>" from the upstream status.
// The reason phrase the upstream sent is preferred over Go's canonical text.
func StatusMessage(resp *model.ProxyResponse) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
}
