package chat

import (
	"context"
	"errors"
	"log"
	"strings"

	"socialdesk/internal/docstore"
)

// Notifier is the best-effort side channel pinged after a successful send.
// Failures are logged and never abort or roll back the send itself.
type Notifier interface {
	ChatMessage(ctx context.Context, senderID, recipientID, chatID, preview string) error
}

// Service is the direct-messaging core: chat record management, the message
// ledger, read-state coordination and the live projections. All operations
// take explicit user ids; there is no ambient session.
type Service struct {
	store    docstore.Store
	notifier Notifier
}

func NewService(store docstore.Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// CreateOrGetChat returns the canonical conversation id for the pair,
// creating the conversation record if it does not exist yet. Safe under
// concurrent invocation by both participants: the initial payload is
// constant, so a double create writes identical state.
func (s *Service) CreateOrGetChat(ctx context.Context, userA, userB string) (string, error) {
	chatID := ChatID(userA, userB)

	_, err := s.store.Get(ctx, chatsCollection, chatID)
	if err == nil {
		return chatID, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return "", err
	}

	err = s.store.Set(ctx, chatsCollection, chatID, docstore.Fields{
		"participants": []any{userA, userB},
		"lastMessage":  "",
		"unreadCounts": docstore.Fields{
			userA: int64(0),
			userB: int64(0),
		},
		"createdAt": docstore.ServerTimestamp{},
		"updatedAt": docstore.ServerTimestamp{},
	})
	if err != nil {
		return "", err
	}
	return chatID, nil
}

// SendMessage appends to the conversation's message log and updates the
// aggregate (lastMessage, updatedAt, recipient unread counter). Empty
// content after trimming is a silent no-op. The two writes are not one
// atomic transaction: under a crash in between, or concurrent sends from
// both sides, the aggregate can diverge from the true latest message.
func (s *Service) SendMessage(ctx context.Context, chatID, content, senderID, recipientID string, replyTo *ReplyRef) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	message := docstore.Fields{
		"senderId":  senderID,
		"content":   content,
		"timestamp": docstore.ServerTimestamp{},
		"read":      false,
	}
	if replyTo != nil {
		message["replyTo"] = docstore.Fields{
			"id":       replyTo.ID,
			"content":  replyTo.Content,
			"senderId": replyTo.SenderID,
		}
	}
	if _, err := s.store.Append(ctx, chatsCollection, chatID, messagesCollection, message); err != nil {
		return err
	}

	// Merge-upsert so partially-initialized legacy chat records self-heal,
	// and so the sender's counter entry survives the nested write.
	err := s.store.Set(ctx, chatsCollection, chatID, docstore.Fields{
		"lastMessage": content,
		"updatedAt":   docstore.ServerTimestamp{},
		"unreadCounts": docstore.Fields{
			recipientID: docstore.Increment{By: 1},
		},
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.ChatMessage(ctx, senderID, recipientID, chatID, content); err != nil {
			log.Printf("chat: message notification failed for %s: %v", chatID, err)
		}
	}
	return nil
}

// DeleteMessage soft-deletes: the message keeps its slot in the log but its
// content is overwritten with DeletedMessageText and flagged. The
// conversation preview is overwritten unconditionally, even when the
// deleted message was not the most recent one, so the preview shows
// "message deleted" until the next send.
func (s *Service) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if chatID == "" || messageID == "" {
		return nil
	}

	err := s.store.UpdateChild(ctx, chatsCollection, chatID, messagesCollection, messageID, docstore.Fields{
		"content":   DeletedMessageText,
		"isDeleted": true,
		"deletedAt": docstore.ServerTimestamp{},
	})
	if err != nil {
		return err
	}

	return s.store.Update(ctx, chatsCollection, chatID, docstore.Fields{
		"lastMessage": DeletedMessageText,
		"updatedAt":   docstore.ServerTimestamp{},
	})
}

// MarkChatAsRead zeroes the caller's unread counter. Idempotent; the other
// participant's counter and the per-message read flags are untouched. The
// UI calls this whenever the open conversation's message list changes, so
// messages arriving while the panel is open are acknowledged immediately.
func (s *Service) MarkChatAsRead(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return nil
	}
	return s.store.Set(ctx, chatsCollection, chatID, docstore.Fields{
		"unreadCounts": docstore.Fields{
			userID: int64(0),
		},
	})
}
