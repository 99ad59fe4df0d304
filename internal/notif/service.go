// Package notif is the best-effort notification side channel: a persisted
// per-user inbox in the document store plus in-process observer fan-out.
// Nothing in here may fail a primary action; callers treat every error from
// Create as log-and-continue.
package notif

import (
	"context"
	"sort"
	"time"

	"socialdesk/internal/docstore"
)

const collection = "notifications"

// Notification types mirror what the UI renders.
const (
	TypeMessage        = "message"
	TypeFriendRequest  = "friend_request"
	TypeFriendAccepted = "friend_accepted"
	TypeFriendPost     = "friend_post"
	TypeLike           = "like"
	TypeComment        = "comment"
)

type Notification struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"recipientId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName,omitempty"`
	SenderAvatar string    `json:"senderAvatar,omitempty"`
	Type         string    `json:"type"`
	Content      string    `json:"content,omitempty"`
	PostID       string    `json:"postId,omitempty"`
	CommentID    string    `json:"commentId,omitempty"`
	ChatID       string    `json:"chatId,omitempty"`
	FriendshipID string    `json:"friendshipId,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Service struct {
	store   docstore.Store
	manager *Manager
}

func NewService(store docstore.Store, manager *Manager) *Service {
	return &Service{store: store, manager: manager}
}

// Create persists a notification and fans it out asynchronously.
// Self-notifications (recipient == sender) and incomplete ones are skipped
// silently, matching the UI contract that these are never errors.
func (s *Service) Create(ctx context.Context, n Notification) error {
	if n.RecipientID == "" || n.SenderID == "" || n.RecipientID == n.SenderID {
		return nil
	}
	id, err := s.store.Add(ctx, collection, docstore.Fields{
		"recipientId":  n.RecipientID,
		"senderId":     n.SenderID,
		"senderName":   n.SenderName,
		"senderAvatar": n.SenderAvatar,
		"type":         n.Type,
		"content":      n.Content,
		"postId":       n.PostID,
		"commentId":    n.CommentID,
		"chatId":       n.ChatID,
		"friendshipId": n.FriendshipID,
		"read":         false,
		"createdAt":    docstore.ServerTimestamp{},
	})
	if err != nil {
		return err
	}
	if s.manager != nil {
		n.ID = id
		s.manager.DispatchAsync(n)
	}
	return nil
}

// ChatMessage implements chat.Notifier.
func (s *Service) ChatMessage(ctx context.Context, senderID, recipientID, chatID, preview string) error {
	return s.Create(ctx, Notification{
		RecipientID: recipientID,
		SenderID:    senderID,
		Type:        TypeMessage,
		ChatID:      chatID,
		Content:     preview,
	})
}

func (s *Service) MarkRead(ctx context.Context, notificationID string) error {
	return s.store.Update(ctx, collection, notificationID, docstore.Fields{
		"read": true,
	})
}

// MarkAllRead flips every unread notification of the user. The store
// contract has no batch write, so this iterates; a failure mid-way leaves
// the earlier updates in place, which is acceptable for an inbox.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	docs, err := s.store.GetAll(ctx, docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "recipientId", Op: docstore.OpEqual, Value: userID},
			{Field: "read", Op: docstore.OpEqual, Value: false},
		},
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.MarkRead(ctx, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ClearAll(ctx context.Context, userID string) error {
	docs, err := s.store.GetAll(ctx, docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "recipientId", Op: docstore.OpEqual, Value: userID},
		},
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.store.Delete(ctx, collection, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

// Watch emits the user's notifications newest-first on every change, with
// the unread count precomputed. Sorting happens client-side so the backend
// needs no composite recipientId+createdAt index.
func (s *Service) Watch(ctx context.Context, userID string, fn func([]Notification, int)) (docstore.CancelFunc, error) {
	q := docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "recipientId", Op: docstore.OpEqual, Value: userID},
		},
	}
	return s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		notifications := make([]Notification, 0, len(snap.Docs))
		unread := 0
		for _, doc := range snap.Docs {
			n := docToNotification(doc)
			if !n.Read {
				unread++
			}
			notifications = append(notifications, n)
		}
		sort.Slice(notifications, func(i, j int) bool {
			return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
		})
		fn(notifications, unread)
	})
}

func docToNotification(doc docstore.Document) Notification {
	return Notification{
		ID:           doc.ID,
		RecipientID:  docstore.AsString(doc.Fields["recipientId"]),
		SenderID:     docstore.AsString(doc.Fields["senderId"]),
		SenderName:   docstore.AsString(doc.Fields["senderName"]),
		SenderAvatar: docstore.AsString(doc.Fields["senderAvatar"]),
		Type:         docstore.AsString(doc.Fields["type"]),
		Content:      docstore.AsString(doc.Fields["content"]),
		PostID:       docstore.AsString(doc.Fields["postId"]),
		CommentID:    docstore.AsString(doc.Fields["commentId"]),
		ChatID:       docstore.AsString(doc.Fields["chatId"]),
		FriendshipID: docstore.AsString(doc.Fields["friendshipId"]),
		Read:         docstore.AsBool(doc.Fields["read"]),
		CreatedAt:    docstore.AsTime(doc.Fields["createdAt"]),
	}
}
