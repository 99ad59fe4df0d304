package notif

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialdesk/internal/docstore"
	"socialdesk/internal/docstore/memstore"
)

func inboxOf(t *testing.T, store docstore.Store, userID string) []docstore.Document {
	t.Helper()
	docs, err := store.GetAll(context.Background(), docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "recipientId", Op: docstore.OpEqual, Value: userID},
		},
	})
	require.NoError(t, err)
	return docs
}

func TestCreate_SkipsSelfAndIncomplete(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		n    Notification
	}{
		{"self notification", Notification{RecipientID: "u1", SenderID: "u1", Type: TypeLike}},
		{"missing recipient", Notification{SenderID: "u1", Type: TypeLike}},
		{"missing sender", Notification{RecipientID: "u2", Type: TypeLike}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, svc.Create(ctx, tt.n))
		})
	}
	assert.Empty(t, inboxOf(t, store, "u1"))
	assert.Empty(t, inboxOf(t, store, "u2"))
}

func TestCreate_PersistsAndFansOut(t *testing.T) {
	store := memstore.New()
	manager := NewManager(2, 16)
	defer manager.Shutdown()

	received := make(chan Notification, 1)
	manager.Register(observerFunc{name: "test", fn: func(n Notification) error {
		received <- n
		return nil
	}})

	svc := NewService(store, manager)
	err := svc.Create(context.Background(), Notification{
		RecipientID: "u2",
		SenderID:    "u1",
		Type:        TypeFriendRequest,
		Content:     "sent you a friend request",
	})
	require.NoError(t, err)

	docs := inboxOf(t, store, "u2")
	require.Len(t, docs, 1)
	assert.Equal(t, TypeFriendRequest, docstore.AsString(docs[0].Fields["type"]))
	assert.False(t, docstore.AsBool(docs[0].Fields["read"]))

	select {
	case n := <-received:
		assert.Equal(t, docs[0].ID, n.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("observer never received the notification")
	}
}

func TestMarkAllReadAndClearAll(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Create(ctx, Notification{
			RecipientID: "u2", SenderID: "u1", Type: TypeLike,
		}))
	}
	require.NoError(t, svc.Create(ctx, Notification{
		RecipientID: "other", SenderID: "u1", Type: TypeLike,
	}))

	require.NoError(t, svc.MarkAllRead(ctx, "u2"))
	for _, doc := range inboxOf(t, store, "u2") {
		assert.True(t, docstore.AsBool(doc.Fields["read"]))
	}

	require.NoError(t, svc.ClearAll(ctx, "u2"))
	assert.Empty(t, inboxOf(t, store, "u2"))
	assert.Len(t, inboxOf(t, store, "other"), 1, "other inboxes untouched")
}

func TestWatch_NewestFirstWithUnreadCount(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, Notification{RecipientID: "u2", SenderID: "a", Type: TypeLike, Content: "old"}))
	require.NoError(t, svc.Create(ctx, Notification{RecipientID: "u2", SenderID: "b", Type: TypeComment, Content: "new"}))

	type snap struct {
		notifications []Notification
		unread        int
	}
	snaps := make(chan snap, 16)
	cancel, err := svc.Watch(ctx, "u2", func(ns []Notification, unread int) {
		snaps <- snap{ns, unread}
	})
	require.NoError(t, err)
	defer cancel()

	select {
	case got := <-snaps:
		require.Len(t, got.notifications, 2)
		assert.Equal(t, "new", got.notifications[0].Content)
		assert.Equal(t, "old", got.notifications[1].Content)
		assert.Equal(t, 2, got.unread)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestManager_DropsWhenFullWithoutBlocking(t *testing.T) {
	manager := NewManager(1, 1)
	defer manager.Shutdown()

	var mu sync.Mutex
	blocked := make(chan struct{})
	release := make(chan struct{})
	var delivered int
	manager.Register(observerFunc{name: "slow", fn: func(n Notification) error {
		mu.Lock()
		delivered++
		first := delivered == 1
		mu.Unlock()
		if first {
			close(blocked)
			<-release
		}
		return nil
	}})

	manager.DispatchAsync(Notification{Type: TypeLike})
	<-blocked

	// Worker busy, buffer capacity 1: the third enqueue must drop, not block.
	done := make(chan struct{})
	go func() {
		manager.DispatchAsync(Notification{Type: TypeLike})
		manager.DispatchAsync(Notification{Type: TypeLike})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DispatchAsync blocked on a full channel")
	}
	close(release)
}

type observerFunc struct {
	name string
	fn   func(Notification) error
}

func (o observerFunc) Update(n Notification) error { return o.fn(n) }
func (o observerFunc) Name() string                { return o.name }
