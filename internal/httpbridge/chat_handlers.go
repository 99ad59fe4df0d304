package httpbridge

import (
	"net/http"

	"github.com/gorilla/mux"

	"socialdesk/internal/chat"
	"socialdesk/internal/docstore"
)

type createChatRequest struct {
	PeerID string `json:"peerId"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var req createChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PeerID == "" {
		writeError(w, http.StatusBadRequest, "peer id must be specified")
		return
	}

	chatID, err := s.chats.CreateOrGetChat(r.Context(), session.UserID, req.PeerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"chatId": chatID})
}

type sendMessageRequest struct {
	Content     string         `json:"content"`
	RecipientID string         `json:"recipientId"`
	ReplyTo     *chat.ReplyRef `json:"replyTo,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	chatID := mux.Vars(r)["id"]

	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "recipient id must be specified")
		return
	}

	err := s.chats.SendMessage(r.Context(), chatID, req.Content, session.UserID, req.RecipientID, req.ReplyTo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.chats.DeleteMessage(r.Context(), vars["id"], vars["mid"]); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	chatID := mux.Vars(r)["id"]

	if err := s.chats.MarkChatAsRead(r.Context(), chatID, session.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark chat as read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "read"})
}

func (s *Server) handleConversationsStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	sseStream(w, r, func(push func(v any)) (docstore.CancelFunc, error) {
		return s.chats.WatchConversations(r.Context(), session.UserID, func(convs []chat.Conversation) {
			push(convs)
		})
	})
}

func (s *Server) handleMessagesStream(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]

	sseStream(w, r, func(push func(v any)) (docstore.CancelFunc, error) {
		return s.chats.WatchMessages(r.Context(), chatID, func(msgs []chat.Message) {
			push(msgs)
		})
	})
}

func (s *Server) handleUnreadStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	sseStream(w, r, func(push func(v any)) (docstore.CancelFunc, error) {
		return s.chats.WatchUnreadTotal(r.Context(), session.UserID, func(total int64) {
			push(map[string]int64{"total": total})
		})
	})
}
