package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// errNoFlusher means the ResponseWriter cannot stream.
var errNoFlusher = errors.New("response writer does not support flushing")

// sseWriter frames JSON events as server-sent events and flushes after
// every frame so fragments reach the browser immediately.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// newSSEWriter sets streaming headers and commits the 200 status. After
// this point errors must be reported in-band.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlusher
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &sseWriter{w: w, f: f}, nil
}

// WriteEvent writes one "data: <json>" frame.
func (s *sseWriter) WriteEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// WriteDone writes the terminal sentinel frame.
func (s *sseWriter) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
