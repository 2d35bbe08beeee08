package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
)

// sseWriter serializes stream events as server-sent `data:` frames. It is
// safe for a single producer; writes after the first failure keep failing
// so the producer learns the consumer is gone.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	failed  error
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming is not supported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) WriteEvent(ev domain.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return s.failed
	}

	payload, err := json.Marshal(sseFrame(ev))
	if err != nil {
		s.failed = err
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.failed = err
		return err
	}
	s.flusher.Flush()
	return nil
}

// sseFrame keeps done frames carrying an explicit citations array even when
// it is empty, matching what stream consumers expect.
func sseFrame(ev domain.StreamEvent) any {
	if ev.Type == domain.EventDone {
		citations := ev.Citations
		if citations == nil {
			citations = []domain.Citation{}
		}
		return struct {
			Type      string            `json:"type"`
			Content   string            `json:"content"`
			Citations []domain.Citation `json:"citations"`
		}{string(ev.Type), ev.Content, citations}
	}
	return struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{string(ev.Type), ev.Content}
}
