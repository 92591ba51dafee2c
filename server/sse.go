package server

import (
	"errors"
	"fmt"
	"net/http"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// sseWriter writes server-sent events. Headers are sent with the first frame,
// so a request can still fail with a plain response before streaming starts.
// After a write fails every later write is dropped.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	count   int
	err     error
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// write sends one frame. An empty event name omits the event line.
func (s *sseWriter) write(event string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.start()

	var err error
	if event != "" {
		_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	} else {
		_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	}
	if err != nil {
		s.err = fmt.Errorf("failed to write event: %w", err)
		return s.err
	}
	s.flusher.Flush()
	s.count++
	return nil
}

// Started reports whether any frame was written.
func (s *sseWriter) Started() bool {
	return s.started
}
