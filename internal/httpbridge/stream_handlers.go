package httpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"socialdesk/internal/notif"
)

const presenceKeepAlive = 30 * time.Second

// handlePresenceStream holds the user online for the lifetime of the
// connection. Dropping the stream is the disconnect that flips them
// offline, so the shell keeps exactly one of these open per session.
func (s *Server) handlePresenceStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	tracker := s.presence.Track(session.UserID)
	if err := tracker.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start presence")
		return
	}
	defer tracker.Stop(context.Background())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(presenceKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// toastObserver forwards a user's notifications to one connected stream.
// Update drops when the client reads slower than dispatch; toasts are best
// effort and the inbox stream is the reliable surface.
type toastObserver struct {
	name   string
	userID string
	events chan notif.Notification
}

func (o *toastObserver) Name() string { return o.name }

func (o *toastObserver) Update(n notif.Notification) error {
	if n.RecipientID != o.userID {
		return nil
	}
	select {
	case o.events <- n:
	default:
	}
	return nil
}

// handleToastStream registers the connection as a notification observer and
// streams each dispatched event individually, unlike the snapshot streams.
func (s *Server) handleToastStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	observer := &toastObserver{
		name:   fmt.Sprintf("toast-%s-%d", session.UserID, s.toastSeq.Add(1)),
		userID: session.UserID,
		events: make(chan notif.Notification, 16),
	}
	s.manager.Register(observer)
	defer s.manager.Deregister(observer)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-observer.events:
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
