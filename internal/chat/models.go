package chat

import "time"

// DeletedMessageText replaces a message's content on soft delete. The
// original text is unrecoverable afterwards.
const DeletedMessageText = "message deleted"

// Collection layout: one document per conversation in "chats", with the
// ordered message log in the "messages" subcollection underneath it.
const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

// Conversation is the aggregate record for one unordered participant pair.
// UnreadCounts holds one entry per participant; it is maintained with
// store-native atomic increments, never read-modify-write.
type Conversation struct {
	ID           string           `json:"id"`
	Participants []string         `json:"participants"`
	LastMessage  string           `json:"lastMessage"`
	UnreadCounts map[string]int64 `json:"unreadCounts"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ReplyRef is an immutable snapshot of the message being replied to, taken
// at reply-creation time. It does not track later edits or deletion of the
// original.
type ReplyRef struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	SenderID string `json:"senderId"`
}

// Message is one entry of a conversation's append-only log. Read is
// informational only; unread tracking is authoritative via
// Conversation.UnreadCounts.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
	DeletedAt time.Time `json:"deletedAt,omitempty"`
}
