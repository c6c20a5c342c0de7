package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hochfrequenz/linkbot/internal/protocol"
)

// handleSSE streams the same messages as /ws as Server-Sent Events. The
// event name is the message type.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	obs := newObserver()
	detach := s.bus.Attach(obs)
	defer detach()

	keepalive := time.NewTicker(s.pingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-obs.ready:
			for _, env := range obs.drain() {
				data, err := protocol.Marshal(env)
				if err != nil {
					s.logger.Error("encoding live message", "type", env.Type, "error", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}
