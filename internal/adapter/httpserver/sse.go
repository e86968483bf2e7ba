package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

// sseWriter writes usecase events as server-sent events, one `data: <json>` frame each.
// It implements usecase.Sink.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

// startSSE commits the event-stream headers and lifts the server write deadline,
// since bulk runs outlive HTTP_WRITE_TIMEOUT.
func startSSE(w http.ResponseWriter) *sseWriter {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	return &sseWriter{w: w, rc: rc}
}

// Send writes and flushes one event. An error means the client is gone.
func (s *sseWriter) Send(ev usecase.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=sse.Send: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("op=sse.Send: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("op=sse.Send: flush: %w", err)
	}
	return nil
}
