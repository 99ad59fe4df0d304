package httpbridge

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"socialdesk/internal/docstore"
	"socialdesk/internal/feed"
	"socialdesk/internal/friend"
	"socialdesk/internal/notif"
)

type friendRequestBody struct {
	TargetID string `json:"targetId"`
}

func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var req friendRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "target id must be specified")
		return
	}

	friendshipID, err := s.friends.Request(r.Context(), session.UserID, req.TargetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"friendshipId": friendshipID})
}

func (s *Server) handleFriendAccept(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	err := s.friends.Accept(r.Context(), mux.Vars(r)["id"], session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to accept request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "accepted"})
}

func (s *Server) handleFriendReject(w http.ResponseWriter, r *http.Request) {
	if err := s.friends.Reject(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reject request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "rejected"})
}

func (s *Server) handleFriendRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.friends.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove friendship")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "removed"})
}

func (s *Server) handleFriendsList(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	ids, err := s.friends.Friends(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list friends")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"friends": ids})
}

func (s *Server) handleFriendRequestsList(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	requests, err := s.friends.Requests(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list friend requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]friend.Friendship{"requests": requests})
}

func (s *Server) handleFriendStatusStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	targetID := mux.Vars(r)["userId"]

	type statusEvent struct {
		Status       friend.Status `json:"status"`
		FriendshipID string        `json:"friendshipId,omitempty"`
	}
	sseStream(w, r, func(push func(v any)) (docstore.CancelFunc, error) {
		return s.friends.WatchStatus(r.Context(), session.UserID, targetID, func(st friend.Status, friendshipID string) {
			push(statusEvent{Status: st, FriendshipID: friendshipID})
		})
	})
}

type createPostRequest struct {
	Content string `json:"content"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var req createPostRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	author := feed.Author{UID: session.UserID, Name: req.Name, Avatar: req.Avatar}
	postID, err := s.posts.CreatePost(r.Context(), author, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"postId": postID})
}

type addCommentRequest struct {
	Text   string `json:"text"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var req addCommentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	author := feed.Author{UID: session.UserID, Name: req.Name, Avatar: req.Avatar}
	commentID, err := s.posts.AddComment(r.Context(), mux.Vars(r)["id"], author, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add comment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"commentId": commentID})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.posts.DeletePost(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	if err := s.posts.Like(r.Context(), mux.Vars(r)["id"], session.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to like post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "liked"})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	if err := s.posts.Unlike(r.Context(), mux.Vars(r)["id"], session.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unlike post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "unliked"})
}

// handleFeedStream streams the general feed by default; ?author=<uid>
// narrows to one profile and ?friends=1 narrows to the caller's accepted
// friends plus their own posts.
func (s *Server) handleFeedStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	filter := feed.Filter{AuthorID: r.URL.Query().Get("author")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if r.URL.Query().Get("friends") == "1" {
		ids, err := s.friends.Friends(r.Context(), session.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to resolve friends")
			return
		}
		filter.Authors = append(ids, session.UserID)
	}

	sseStream(w, r, func(push func(v any)) (docstore.CancelFunc, error) {
		return s.posts.WatchFeed(r.Context(), filter, func(posts []feed.Post) {
			push(posts)
		})
	})
}

func (s *Server) handleNotificationsStream(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	type notifEvent struct {
		Notifications []notif.Notification `json:"notifications"`
		Unread        int                  `json:"unread"`
	}
	sseStream(w, r, func(push func(v any)) (docstore.CancelFunc, error) {
		return s.notifs.Watch(r.Context(), session.UserID, func(items []notif.Notification, unread int) {
			push(notifEvent{Notifications: items, Unread: unread})
		})
	})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.notifs.MarkRead(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "read"})
}

func (s *Server) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	if err := s.notifs.MarkAllRead(r.Context(), session.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "read"})
}

func (s *Server) handleNotificationsClear(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	if err := s.notifs.ClearAll(r.Context(), session.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cleared"})
}
