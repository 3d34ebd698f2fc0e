package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
)

// handleChannelStream exposes the control bus as a server-sent event stream.
// Renderers hosting creatives attach here and forward each message into their
// execution contexts; the agents filter by bannerId/groupId themselves.
func (api *studioAPI) handleChannelStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.writeError(w, r, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := api.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-sub.C:
			if !open {
				return
			}
			if err := writeSSE(w, "message", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleChannelPost accepts raw wire messages from renderers. Malformed
// payloads and messages without an action are dropped without comment, the
// same way a shared postMessage channel swallows unrelated traffic.
func (api *studioAPI) handleChannelPost(w http.ResponseWriter, r *http.Request) {
	// Screenshot results carry whole base64 data URLs; the cap follows the
	// upload bound so a large capture is never truncated into a timeout.
	raw, err := io.ReadAll(io.LimitReader(r.Body, api.uploadMaxBytes))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "unreadable_body")
		return
	}

	msg, err := control.Decode(raw)
	if err != nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	api.bus.Publish(msg)
	w.WriteHeader(http.StatusAccepted)
}
