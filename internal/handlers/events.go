package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"photonix-core/internal/errs"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/logging"
)

const sseKeepAliveInterval = 15 * time.Second

// Events implements GET /api/events: a server-sent-events stream of
// "connected" (once, on open) and "thumbnail-generated" (one per completed
// thumbnail) frames. There is no teacher precedent for SSE in this corpus;
// this is the idiomatic stdlib http.Flusher pattern net/http itself
// documents, chosen over a third-party SSE library since no example repo in
// the pack carries one for this purpose.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.Internal, "SSE_UNSUPPORTED", "streaming unsupported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	writeSSEEvent(w, "connected", map[string]string{"clientId": clientID})
	flusher.Flush()

	type frame struct {
		event string
		data  any
	}
	frames := make(chan frame, 16)

	unsubscribe := h.bus.Subscribe(eventbus.TopicThumbnailGenerated, func(e eventbus.Event) error {
		select {
		case frames <- frame{event: "thumbnail-generated", data: e.Data}:
		default:
			logging.Warn("handlers: SSE client %s frame buffer full, dropping event", clientID)
		}
		return nil
	})
	defer unsubscribe()

	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client disconnected; nothing left to flush.
			return
		case f := <-frames:
			writeSSEEvent(w, f.event, f.data)
			flusher.Flush()
		case <-ticker.C:
			// Comment-only keep-alive frame, ignored by EventSource parsers.
			if _, err := fmt.Fprintf(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		logging.Error("handlers: failed to marshal SSE payload for event %q: %v", event, err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		logging.Debug("handlers: SSE write failed (client likely disconnected): %v", err)
	}
}
