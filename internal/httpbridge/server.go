// Package httpbridge exposes the services over a localhost HTTP surface:
// JSON endpoints for actions, server-sent events for the live projections.
// The desktop shell talks to this bridge; it is not a public API.
package httpbridge

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"socialdesk/internal/auth"
	"socialdesk/internal/chat"
	"socialdesk/internal/config"
	"socialdesk/internal/feed"
	"socialdesk/internal/friend"
	"socialdesk/internal/notif"
	"socialdesk/internal/presence"
)

type Server struct {
	router   *mux.Router
	verifier *auth.Verifier
	chats    *chat.Service
	friends  *friend.Service
	posts    *feed.Service
	notifs   *notif.Service
	manager  *notif.Manager
	presence *presence.Service
	toastSeq atomic.Int64

	httpServer *http.Server
}

func NewServer(cfg *config.Config, verifier *auth.Verifier, chats *chat.Service, friends *friend.Service, posts *feed.Service, notifs *notif.Service, manager *notif.Manager, presenceSvc *presence.Service) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		verifier: verifier,
		chats:    chats,
		friends:  friends,
		posts:    posts,
		notifs:   notifs,
		manager:  manager,
		presence: presenceSvc,
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     s.router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout stays at the configured value; the default of zero
		// keeps SSE streams open indefinitely.
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.requireSession)

	// Static chat paths register before the {id} routes so mux does not
	// capture "unread" as a chat id.
	api.HandleFunc("/chats/unread/stream", s.handleUnreadStream).Methods(http.MethodGet)
	api.HandleFunc("/chats/stream", s.handleConversationsStream).Methods(http.MethodGet)
	api.HandleFunc("/chats", s.handleCreateChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/messages/stream", s.handleMessagesStream).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/chats/{id}/messages/{mid}", s.handleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{id}/read", s.handleMarkRead).Methods(http.MethodPost)

	api.HandleFunc("/friends/status/{userId}/stream", s.handleFriendStatusStream).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests", s.handleFriendRequestsList).Methods(http.MethodGet)
	api.HandleFunc("/friends", s.handleFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends", s.handleFriendsList).Methods(http.MethodGet)
	api.HandleFunc("/friends/{id}/accept", s.handleFriendAccept).Methods(http.MethodPost)
	api.HandleFunc("/friends/{id}/reject", s.handleFriendReject).Methods(http.MethodPost)
	api.HandleFunc("/friends/{id}", s.handleFriendRemove).Methods(http.MethodDelete)

	api.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}/like", s.handleLike).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}/like", s.handleUnlike).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id}/comments", s.handleAddComment).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.handleDeletePost).Methods(http.MethodDelete)
	api.HandleFunc("/feed/stream", s.handleFeedStream).Methods(http.MethodGet)

	api.HandleFunc("/presence/stream", s.handlePresenceStream).Methods(http.MethodGet)
	api.HandleFunc("/toasts/stream", s.handleToastStream).Methods(http.MethodGet)

	api.HandleFunc("/notifications/stream", s.handleNotificationsStream).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", s.handleNotificationsReadAll).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", s.handleNotificationRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications", s.handleNotificationsClear).Methods(http.MethodDelete)
}

// Handler exposes the routed mux; used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	log.Printf("bridge: listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("bridge: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
