package router

import (
	"bufio"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var ErrStreamingUnsupported = errors.New("response writer does not implement http.Flusher")

// SSEWriter writes pre-framed server-sent events and flushes after each one.
type SSEWriter struct {
	bw      *bufio.Writer
	flusher http.Flusher
}

// StartSSE sets the event-stream headers and commits a 200 response.
func StartSSE(c *gin.Context) (*SSEWriter, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	flusher.Flush()
	return &SSEWriter{bw: bufio.NewWriter(c.Writer), flusher: flusher}, nil
}

// Write sends one framed event. An error means the client is gone.
func (w *SSEWriter) Write(frame []byte) error {
	if _, err := w.bw.Write(frame); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
