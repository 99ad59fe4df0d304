package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialdesk/internal/docstore"
)

func TestSetGetUpdateDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "chats", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{
		"lastMessage": "",
		"createdAt":   docstore.ServerTimestamp{},
	}))

	doc, err := s.Get(ctx, "chats", "c1")
	require.NoError(t, err)
	assert.Equal(t, "", docstore.AsString(doc.Fields["lastMessage"]))
	assert.False(t, docstore.AsTime(doc.Fields["createdAt"]).IsZero())

	require.NoError(t, s.Update(ctx, "chats", "c1", docstore.Fields{"lastMessage": "hi"}))
	doc, _ = s.Get(ctx, "chats", "c1")
	assert.Equal(t, "hi", docstore.AsString(doc.Fields["lastMessage"]))

	assert.ErrorIs(t, s.Update(ctx, "chats", "nope", docstore.Fields{"x": 1}), docstore.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "chats", "c1"))
	_, err = s.Get(ctx, "chats", "c1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "chats", "c1"), docstore.ErrNotFound)
}

func TestServerTimestampsAreMonotonic(t *testing.T) {
	// A frozen clock still yields strictly increasing server timestamps.
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewWithClock(func() time.Time { return frozen })
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 5; i++ {
		id, err := s.Append(ctx, "chats", "c1", "messages", docstore.Fields{
			"timestamp": docstore.ServerTimestamp{},
		})
		require.NoError(t, err)
		doc, err := s.GetChild(ctx, "chats", "c1", "messages", id)
		require.NoError(t, err)
		ts := docstore.AsTime(doc.Fields["timestamp"])
		assert.True(t, ts.After(prev), "timestamps strictly increase")
		prev = ts
	}
}

func TestSubcollectionsAreScopedToParent(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Append(ctx, "chats", "c1", "messages", docstore.Fields{"content": "in c1"})
	require.NoError(t, err)
	_, err = s.Append(ctx, "chats", "c2", "messages", docstore.Fields{"content": "in c2"})
	require.NoError(t, err)

	docs, err := s.GetAll(ctx, docstore.Query{Collection: "chats", Parent: "c1", Sub: "messages"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "in c1", docstore.AsString(docs[0].Fields["content"]))
}

func TestGetAll_FilterOrderLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, item := range []struct {
		id    string
		owner string
	}{{"n1", "u1"}, {"n2", "u2"}, {"n3", "u1"}, {"n4", "u1"}} {
		require.NoError(t, s.Set(ctx, "notifications", item.id, docstore.Fields{
			"recipientId": item.owner,
			"createdAt":   docstore.ServerTimestamp{},
		}))
	}

	docs, err := s.GetAll(ctx, docstore.Query{
		Collection: "notifications",
		Where:      []docstore.Cond{{Field: "recipientId", Op: docstore.OpEqual, Value: "u1"}},
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "n4", docs[0].ID)
	assert.Equal(t, "n3", docs[1].ID)
}

func TestSubscribe_InitialAndChangeSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()

	snaps := make(chan int, 32)
	cancel, err := s.Subscribe(ctx, docstore.Query{Collection: "posts"}, func(snap docstore.Snapshot) {
		snaps <- len(snap.Docs)
	})
	require.NoError(t, err)
	defer cancel()

	expect := func(want int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case n := <-snaps:
				if n == want {
					return
				}
			case <-deadline:
				t.Fatalf("never saw a %d-doc snapshot", want)
			}
		}
	}

	expect(0)
	_, err = s.Add(ctx, "posts", docstore.Fields{"content": "one"})
	require.NoError(t, err)
	expect(1)
	_, err = s.Add(ctx, "posts", docstore.Fields{"content": "two"})
	require.NoError(t, err)
	expect(2)
}

func TestSubscribe_CallbackMayWriteBack(t *testing.T) {
	// A projection callback marking state on the store (the mark-as-read
	// pattern) must not deadlock the writer that triggered it.
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{"unread": int64(0)}))

	done := make(chan struct{})
	var cancel docstore.CancelFunc
	var err error
	cancel, err = s.Subscribe(ctx, docstore.Query{Collection: "chats"}, func(snap docstore.Snapshot) {
		for _, doc := range snap.Docs {
			if docstore.AsInt64(doc.Fields["unread"]) == 1 {
				require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{"unread": int64(0)}))
				select {
				case <-done:
				default:
					close(done)
				}
			}
		}
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{"unread": docstore.Increment{By: 1}}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write-back from callback deadlocked")
	}
}

func TestSnapshotsDoNotAliasStoreState(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{
		"participants": []any{"u1", "u2"},
	}))

	doc, err := s.Get(ctx, "chats", "c1")
	require.NoError(t, err)
	doc.Fields["participants"].([]any)[0] = "tampered"

	fresh, err := s.Get(ctx, "chats", "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", docstore.AsStringSlice(fresh.Fields["participants"])[0])
}

func TestUpdateNeverResurrectsDeletedDocument(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{"lastMessage": "hi"}))

	// Update and Delete race from separate goroutines; whatever the
	// interleaving, a delete that wins must not be undone by a concurrent
	// partial update recreating the document.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "chats", "c1", docstore.Fields{"lastMessage": "racing"})
		}()
		go func() {
			defer wg.Done()
			_ = s.Delete(ctx, "chats", "c1")
		}()
		wg.Wait()

		if _, err := s.Get(ctx, "chats", "c1"); err != nil {
			require.ErrorIs(t, err, docstore.ErrNotFound)
			err = s.Update(ctx, "chats", "c1", docstore.Fields{"lastMessage": "late"})
			require.ErrorIs(t, err, docstore.ErrNotFound)
			_, err = s.Get(ctx, "chats", "c1")
			require.ErrorIs(t, err, docstore.ErrNotFound, "update resurrected a deleted document")
		}
		require.NoError(t, s.Set(ctx, "chats", "c1", docstore.Fields{"lastMessage": "hi"}))
	}
}
