package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"scafoldr-gateway/internal/metrics"
	"scafoldr-gateway/internal/model"
	"scafoldr-gateway/internal/relay"
	"scafoldr-gateway/internal/service"
)

// streamRoute describes how one streaming route answers.
type streamRoute struct {
	op string
	// missingStatus and missingMsg answer a success without a body.
	missingStatus int
	missingMsg    string
	// contentType, when set, replaces the upstream Content-Type.
	contentType string
	// defaultType is used when the upstream sends no Content-Type.
	defaultType string
}

var (
	chatStreamRoute = streamRoute{
		op:            service.OpChatStream,
		missingStatus: http.StatusBadGateway,
		missingMsg:    "No stream from upstream",
		contentType:   "text/plain; charset=utf-8",
	}
	consultStreamRoute = streamRoute{
		op:            service.OpConsultStream,
		missingStatus: http.StatusInternalServerError,
		missingMsg:    "Stream not available",
		defaultType:   "text/plain; charset=utf-8",
	}
	agentStreamRoute = streamRoute{
		op:            service.OpAgentStream,
		missingStatus: http.StatusInternalServerError,
		missingMsg:    "Stream not available",
		defaultType:   "text/event-stream; charset=utf-8",
	}
	codeUpdatesRoute = streamRoute{
		op:            service.OpCodeUpdates,
		missingStatus: http.StatusInternalServerError,
		missingMsg:    "SSE stream not available",
		contentType:   "text/event-stream",
	}
)

// StreamHandler serves the streaming routes. Upstream chunks are written to
// the client as they arrive.
type StreamHandler struct {
	gateway *service.Gateway
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStreamHandler creates a StreamHandler. m may be nil.
func NewStreamHandler(gw *service.Gateway, m *metrics.Metrics, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		gateway: gw,
		metrics: m,
		logger:  logger.With("component", "stream_handler"),
	}
}

// ChatInteractive handles POST /api/chat-interactive.
func (h *StreamHandler) ChatInteractive(c echo.Context) error {
	var in model.ChatInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	return h.stream(c, chatStreamRoute, func(ctx context.Context) (*model.ProxyResponse, error) {
		return h.gateway.ChatStream(ctx, in)
	})
}

// ConsultStream handles POST /api/scafoldr-inc-stream.
func (h *StreamHandler) ConsultStream(c echo.Context) error {
	var in model.ChatInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	return h.stream(c, consultStreamRoute, func(ctx context.Context) (*model.ProxyResponse, error) {
		return h.gateway.ConsultStream(ctx, in)
	})
}

// AgentStream handles POST /api/dbml-ai-agent/stream.
func (h *StreamHandler) AgentStream(c echo.Context) error {
	var in model.AgentInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	return h.stream(c, agentStreamRoute, func(ctx context.Context) (*model.ProxyResponse, error) {
		return h.gateway.AgentStream(ctx, in)
	})
}

// CodeUpdates handles GET /api/code/sse/:projectId.
func (h *StreamHandler) CodeUpdates(c echo.Context) error {
	projectID := pathParam(c, "projectId")
	return h.stream(c, codeUpdatesRoute, func(ctx context.Context) (*model.ProxyResponse, error) {
		return h.gateway.CodeUpdates(ctx, projectID)
	})
}

// stream opens the upstream stream and relays it. The upstream request lives
// in a context derived from the client's, so a client disconnect cancels it.
// If the upstream fails after the first byte was sent, the client connection
// is aborted so the client sees a broken stream rather than a clean end.
func (h *StreamHandler) stream(c echo.Context, route streamRoute, open func(context.Context) (*model.ProxyResponse, error)) error {
	req := c.Request()
	ctx, cancel := context.WithCancelCause(req.Context())
	defer cancel(nil)

	resp, err := open(ctx)
	if err != nil {
		return mapError(c, err, h.logger)
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.OK() {
		return writeUpstreamError(c, resp, h.logger, "")
	}
	if !resp.HasBody() {
		h.logger.Warn("upstream returned no stream", "operation", route.op, "status", resp.StatusCode)
		return errorJSON(c, route.missingStatus, route.missingMsg)
	}

	contentType := route.contentType
	if contentType == "" {
		contentType = resp.Header.Get(echo.HeaderContentType)
	}
	if contentType == "" {
		contentType = route.defaultType
	}

	res := c.Response()
	relay.PrepareHeaders(res.Header(), contentType)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	h.streamStarted()
	result, err := relay.Copy(req.Context(), res, resp.Body, cancel)
	h.streamFinished(route.op, result, err)

	switch {
	case err == nil:
		h.logger.Debug("stream completed", "operation", route.op, "bytes", result.Bytes, "chunks", result.Chunks)
		return nil
	case errors.Is(err, relay.ErrClientGone):
		h.logger.Info("client left stream", "operation", route.op, "bytes", result.Bytes)
		return nil
	default:
		h.logger.Error("upstream stream failed",
			"operation", route.op,
			"err", sanitizeError(err),
			"bytes", result.Bytes,
		)
		panic(http.ErrAbortHandler)
	}
}

func (h *StreamHandler) streamStarted() {
	if h.metrics != nil {
		h.metrics.StreamsActive.Inc()
	}
}

func (h *StreamHandler) streamFinished(op string, result relay.Result, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.StreamsActive.Dec()
	h.metrics.StreamBytes.WithLabelValues(op).Add(float64(result.Bytes))
	h.metrics.StreamChunks.WithLabelValues(op).Add(float64(result.Chunks))

	outcome := metrics.OutcomeCompleted
	switch {
	case errors.Is(err, relay.ErrClientGone):
		outcome = metrics.OutcomeClientGone
	case err != nil:
		outcome = metrics.OutcomeUpstreamError
	}
	h.metrics.StreamsTotal.WithLabelValues(op, outcome).Inc()
}
