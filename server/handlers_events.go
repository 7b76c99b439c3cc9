package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HandleMonitorEvents streams new-moment notifications to the display layer
// using Server-Sent Events. The stream ends when the client disconnects or
// the server shuts down.
func (h *Handlers) HandleMonitorEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.monitor.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial snapshot so a reconnecting client renders without waiting for
	// the next poll.
	snap := h.monitor.Snapshot()
	if b, err := json.Marshal(snap); err == nil {
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", b)
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case n := <-events:
			b, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: moments\ndata: %s\n\n", b)
			flusher.Flush()
		}
	}
}
