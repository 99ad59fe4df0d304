package httpbridge

import (
	"encoding/json"
	"fmt"
	"net/http"

	"socialdesk/internal/docstore"
)

// sseStream pumps projection snapshots to the client as server-sent
// events. subscribe is handed a push function safe to call from the
// store's delivery goroutine; the stream keeps only the latest snapshot
// when the client reads slower than the store emits, since every
// snapshot is the full state.
func sseStream(w http.ResponseWriter, r *http.Request, subscribe func(push func(v any)) (docstore.CancelFunc, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates := make(chan []byte, 1)
	push := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		for {
			select {
			case updates <- data:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	}

	cancel, err := subscribe(push)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-updates:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
