package chat

import (
	"context"
	"sort"

	"socialdesk/internal/docstore"
)

// Live projections. Each Watch* stands up a store subscription for the
// caller's mounted lifetime and maps every snapshot to a view model; the
// returned cancel func is the teardown. Callbacks never block the caller,
// since the store delivers them on its own goroutine, and snapshot order is
// preserved. Until the first callback the caller should treat the view as
// loading.

// WatchConversations emits the user's conversation list, newest activity
// first. Ordering is done client-side on purpose: the query asks only for
// "participants contains user", so no composite index is required of the
// backend.
func (s *Service) WatchConversations(ctx context.Context, userID string, fn func([]Conversation)) (docstore.CancelFunc, error) {
	q := docstore.Query{
		Collection: chatsCollection,
		Where: []docstore.Cond{
			{Field: "participants", Op: docstore.OpArrayContains, Value: userID},
		},
	}
	return s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		conversations := make([]Conversation, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			conversations = append(conversations, docToConversation(doc))
		}
		sort.Slice(conversations, func(i, j int) bool {
			return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
		})
		fn(conversations)
	})
}

// WatchUnreadTotal emits the sum of the user's unread counters across all
// conversations, re-computed on every snapshot.
func (s *Service) WatchUnreadTotal(ctx context.Context, userID string, fn func(int64)) (docstore.CancelFunc, error) {
	q := docstore.Query{
		Collection: chatsCollection,
		Where: []docstore.Cond{
			{Field: "participants", Op: docstore.OpArrayContains, Value: userID},
		},
	}
	return s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		var total int64
		for _, doc := range snap.Docs {
			total += docstore.AsCountMap(doc.Fields["unreadCounts"])[userID]
		}
		fn(total)
	})
}

// WatchMessages emits a conversation's full message log in chronological
// order on every change. Here the order is requested from the store: a
// single-field order on a subcollection needs no composite index.
func (s *Service) WatchMessages(ctx context.Context, chatID string, fn func([]Message)) (docstore.CancelFunc, error) {
	q := docstore.Query{
		Collection: chatsCollection,
		Parent:     chatID,
		Sub:        messagesCollection,
		OrderBy:    "timestamp",
	}
	return s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		messages := make([]Message, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			messages = append(messages, docToMessage(doc))
		}
		fn(messages)
	})
}

func docToConversation(doc docstore.Document) Conversation {
	return Conversation{
		ID:           doc.ID,
		Participants: docstore.AsStringSlice(doc.Fields["participants"]),
		LastMessage:  docstore.AsString(doc.Fields["lastMessage"]),
		UnreadCounts: docstore.AsCountMap(doc.Fields["unreadCounts"]),
		CreatedAt:    docstore.AsTime(doc.Fields["createdAt"]),
		UpdatedAt:    docstore.AsTime(doc.Fields["updatedAt"]),
	}
}

func docToMessage(doc docstore.Document) Message {
	msg := Message{
		ID:        doc.ID,
		SenderID:  docstore.AsString(doc.Fields["senderId"]),
		Content:   docstore.AsString(doc.Fields["content"]),
		Timestamp: docstore.AsTime(doc.Fields["timestamp"]),
		Read:      docstore.AsBool(doc.Fields["read"]),
		IsDeleted: docstore.AsBool(doc.Fields["isDeleted"]),
		DeletedAt: docstore.AsTime(doc.Fields["deletedAt"]),
	}
	if ref := docstore.AsFields(doc.Fields["replyTo"]); ref != nil {
		msg.ReplyTo = &ReplyRef{
			ID:       docstore.AsString(ref["id"]),
			Content:  docstore.AsString(ref["content"]),
			SenderID: docstore.AsString(ref["senderId"]),
		}
	}
	return msg
}
