package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// sseWriter writes server-sent events. Headers are sent lazily on the
// first event so a request can still fail with a JSON error before
// streaming starts.
type sseWriter struct {
	mu         sync.Mutex
	w          http.ResponseWriter
	flusher    http.Flusher
	retryDelay int64
	started    bool
}

func newSSEWriter(w http.ResponseWriter, retryMillis int64) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher, retryDelay: retryMillis}, true
}

func (s *sseWriter) startLocked() {
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
	if s.retryDelay > 0 {
		_, _ = fmt.Fprintf(s.w, "retry: %d\n\n", s.retryDelay)
	}
	s.flusher.Flush()
}

// Started reports whether any event has been written.
func (s *sseWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Send writes one event with a JSON payload.
func (s *sseWriter) Send(event string, data any) error {
	return s.SendWithID("", event, data)
}

// SendWithID writes one event carrying an id line.
func (s *sseWriter) SendWithID(id, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
	if id != "" {
		err = writeSSEWithID(s.w, id, event, string(payload))
	} else {
		err = writeSSE(s.w, event, string(payload))
	}
	if err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeSSE(w http.ResponseWriter, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w http.ResponseWriter, id, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
