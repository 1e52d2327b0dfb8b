package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/model"
	"scafoldr-gateway/internal/service"
)

// secretPattern matches OAuth secrets in query strings (?code=...) or JSON
// keys ("code": "...") embedded in error messages.
var secretPattern = regexp.MustCompile(`(?i)([?&](?:client_secret|code|access_token)=|"(?:client_secret|code|access_token)"\s*:\s*"?)[^&\s",}]+`)

// errorJSON writes the uniform {"error": msg} body.
func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, model.ErrorBody{Error: msg})
}

// passThrough relays a successful upstream response unchanged: status,
// filtered headers and body.
func passThrough(c echo.Context, resp *model.ProxyResponse, logger *slog.Logger) error {
	copyHeaders(c, resp.Header)
	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a copy failure can only be logged.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		logger.Error("relaying response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

func copyHeaders(c echo.Context, h http.Header) {
	for key, vals := range h {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
}

// writeUpstreamError answers a non-success upstream response with its status
// and the classified message. fallback is used for JSON bodies that carry no
// message in fields.
func writeUpstreamError(c echo.Context, resp *model.ProxyResponse, logger *slog.Logger, fallback string, fields ...string) error {
	msg := service.ErrorMessage(resp, fallback, fields...)
	logger.Warn("upstream error",
		"status", resp.StatusCode,
		"path", c.Request().URL.Path,
		"error", sanitize(msg),
	)
	return errorJSON(c, resp.StatusCode, msg)
}

// mapError turns a failed upstream call into a client response. Invalid paths
// are the caller's fault; every network failure is a 500.
func mapError(c echo.Context, err error, logger *slog.Logger) error {
	if errors.Is(err, service.ErrInvalidPath) {
		return errorJSON(c, http.StatusBadRequest, "invalid project or file path")
	}

	logger.Error("upstream call failed",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return errorJSON(c, http.StatusInternalServerError, "upstream request timed out")
	}

	if errors.Is(err, context.Canceled) {
		return errorJSON(c, http.StatusInternalServerError, "client disconnected")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errorJSON(c, http.StatusInternalServerError, "upstream host unreachable")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errorJSON(c, http.StatusInternalServerError, "upstream connection failed")
	}

	return errorJSON(c, http.StatusInternalServerError, "upstream request failed")
}

// sanitizeError redacts OAuth secrets from error messages that may contain
// upstream URLs or payloads.
func sanitizeError(err error) string {
	return sanitize(err.Error())
}

func sanitize(s string) string {
	return secretPattern.ReplaceAllString(s, "${1}[REDACTED]")
}

// ErrorHandler is the Echo HTTP error handler. Errors returned by handlers and
// middleware are answered with the uniform JSON error body.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		} else {
			logger.Error("unhandled error", "err", sanitizeError(err), "path", c.Request().URL.Path)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = errorJSON(c, code, msg)
		}
		if err != nil {
			logger.Error("writing error response", "err", err)
		}
	}
}

// pathParam returns a decoded route parameter. Echo matches on the raw path
// when the request has one, leaving its parameters escaped.
func pathParam(c echo.Context, name string) string {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}
