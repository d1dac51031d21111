package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apperrors "reserva/pkg/errors"
	httputil "reserva/pkg/http"
)

// StreamEvents serves a Server-Sent Events feed of slot state changes for a
// provider. Each event carries a per-provider sequence number; a client that
// observes a gap should re-fetch availability before resuming.
func (h *ReservationHandler) StreamEvents(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		if writeErr := httputil.WriteError(w, apperrors.Internal("streaming unsupported", nil)); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "StreamEvents", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	from, to, err := httputil.ExtractTimeRange(r)
	if err != nil {
		h.writeError(w, err, "StreamEvents")
		return
	}

	providerID := ps.ByName("provider_id")
	sub := h.events.Subscribe(providerID, from, to)
	defer h.events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Info("Event stream opened", "provider_id", providerID)

	for {
		select {
		case <-r.Context().Done():
			h.log.Info("Event stream closed", "provider_id", providerID)
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to encode slot event", "handler", "StreamEvents", "provider_id", providerID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Sequence, event.Type, payload); err != nil {
				h.log.Info("Event stream write failed, closing", "provider_id", providerID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
