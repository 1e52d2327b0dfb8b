package service

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"scafoldr-gateway/internal/model"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func errorResponse(code int, status, body string) *model.ProxyResponse {
	return &model.ProxyResponse{
		StatusCode: code,
		Status:     status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		resp     *model.ProxyResponse
		fallback string
		fields   []string
		want     string
	}{
		{
			name: "json error field",
			resp: errorResponse(400, "400 Bad Request", `{"error":"Invalid email"}`),
			want: "Invalid email",
		},
		{
			name: "json message field",
			resp: errorResponse(404, "404 Not Found", `{"message":"Project not found"}`),
			want: "Project not found",
		},
		{
			name: "error wins over message",
			resp: errorResponse(400, "400 Bad Request", `{"error":"first","message":"second"}`),
			want: "first",
		},
		{
			name: "empty error falls to message",
			resp: errorResponse(400, "400 Bad Request", `{"error":"","message":"second"}`),
			want: "second",
		},
		{
			name:     "json without known field uses fallback",
			resp:     errorResponse(500, "500 Internal Server Error", `{"detail":{"type":"generation_error"}}`),
			fallback: "Failed to verify user",
			want:     "Failed to verify user",
		},
		{
			name: "json without fallback synthesizes",
			resp: errorResponse(500, "500 Internal Server Error", `{"detail":"x"}`),
			want: "HTTP 500: Internal Server Error",
		},
		{
			name:     "non-string error field uses fallback",
			resp:     errorResponse(422, "422 Unprocessable Entity", `{"error":{"code":1}}`),
			fallback: "Failed to save files",
			want:     "Failed to save files",
		},
		{
			name:     "invalid json surfaces raw text",
			resp:     errorResponse(503, "503 Service Unavailable", "service unavailable"),
			fallback: "ignored",
			want:     "service unavailable",
		},
		{
			name: "empty body synthesizes",
			resp: errorResponse(502, "502 Bad Gateway", ""),
			want: "HTTP 502: Bad Gateway",
		},
		{
			name: "whitespace body synthesizes",
			resp: errorResponse(504, "504 Gateway Timeout", " \n"),
			want: "HTTP 504: Gateway Timeout",
		},
		{
			name: "upstream reason phrase preserved",
			resp: errorResponse(503, "503 Down For Maintenance", ""),
			want: "HTTP 503: Down For Maintenance",
		},
		{
			name: "unreadable body synthesizes",
			resp: &model.ProxyResponse{
				StatusCode: 500,
				Status:     "500 Internal Server Error",
				Body:       io.NopCloser(failingReader{}),
			},
			want: "HTTP 500: Internal Server Error",
		},
		{
			name:   "custom fields",
			resp:   errorResponse(401, "401 Unauthorized", `{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`),
			fields: []string{"error_description"},
			want:   "The code passed is incorrect or expired.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorMessage(tt.resp, tt.fallback, tt.fields...)
			if got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusMessage_NoStatusLine(t *testing.T) {
	got := StatusMessage(&model.ProxyResponse{StatusCode: http.StatusTeapot})
	want := "HTTP 418: I'm a teapot"
	if got != want {
		t.Errorf("StatusMessage() = %q, want %q", got, want)
	}
}
