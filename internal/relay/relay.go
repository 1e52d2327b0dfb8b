// Package relay copies a streamed upstream body to the client, flushing after
// every chunk so frames reach the browser as soon as they arrive.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// chunkSize bounds a single read from the upstream body. Reads return as soon
// as any data is available, so small frames are not held back.
const chunkSize = 32 << 10

var (
	// ErrUpstream means the upstream body failed mid-stream.
	ErrUpstream = errors.New("upstream stream failed")
	// ErrClientGone means the client disconnected or could not be written to.
	ErrClientGone = errors.New("client disconnected")
)

// Result summarizes a finished relay.
type Result struct {
	Bytes  int64
	Chunks int
}

// Copy relays src to dst one chunk at a time, flushing dst after each write
// when it implements http.Flusher. Chunks are written in order and never
// modified.
//
// ctx is the client's request context. When it is done, or when writing to dst
// fails, cancel is called with ErrClientGone so the upstream request is
// aborted, and an error wrapping ErrClientGone is returned. A read failure
// while the client is still connected returns an error wrapping ErrUpstream.
// A clean end of src returns a nil error. cancel may be nil.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, cancel context.CancelCauseFunc) (Result, error) {
	if cancel == nil {
		cancel = func(error) {}
	}
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, chunkSize)

	var res Result
	for {
		if err := ctx.Err(); err != nil {
			cancel(ErrClientGone)
			return res, fmt.Errorf("%w: %w", ErrClientGone, context.Cause(ctx))
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				cancel(ErrClientGone)
				return res, fmt.Errorf("%w: %w", ErrClientGone, werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
			res.Bytes += int64(n)
			res.Chunks++
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			return res, nil
		case ctx.Err() != nil:
			// The read was aborted because the client went away.
			cancel(ErrClientGone)
			return res, fmt.Errorf("%w: %w", ErrClientGone, context.Cause(ctx))
		default:
			return res, fmt.Errorf("%w: %w", ErrUpstream, rerr)
		}
	}
}

// PrepareHeaders sets the response headers of a relayed stream. An empty
// contentType leaves Content-Type unchanged. Content-Length is removed because
// the relayed body is chunked.
func PrepareHeaders(h http.Header, contentType string) {
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Del("Content-Length")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
