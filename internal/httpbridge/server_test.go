package httpbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialdesk/internal/auth"
	"socialdesk/internal/chat"
	"socialdesk/internal/config"
	"socialdesk/internal/docstore"
	"socialdesk/internal/docstore/memstore"
	"socialdesk/internal/feed"
	"socialdesk/internal/friend"
	"socialdesk/internal/notif"
	"socialdesk/internal/presence"
)

type bridgeFixture struct {
	server   *Server
	store    *memstore.Store
	verifier *auth.Verifier
	manager  *notif.Manager
	kv       *presence.MemoryKV
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	store := memstore.New()
	verifier := auth.NewVerifier([]byte("test-secret"))
	manager := notif.NewManager(1, 16)
	t.Cleanup(manager.Shutdown)

	notifs := notif.NewService(store, manager)
	chats := chat.NewService(store, notifs)
	friends := friend.NewService(store, notifs)
	posts := feed.NewService(store, notifs, friends)
	kv := presence.NewMemoryKV()
	presenceSvc := presence.NewService(kv, store, time.Minute)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0"},
	}
	return &bridgeFixture{
		server:   NewServer(cfg, verifier, chats, friends, posts, notifs, manager, presenceSvc),
		store:    store,
		verifier: verifier,
		manager:  manager,
		kv:       kv,
	}
}

func (f *bridgeFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.verifier.Issue(userID, userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *bridgeFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestBridge_RejectsMissingAndBogusTokens(t *testing.T) {
	f := newBridgeFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/chats", "", map[string]string{"peerId": "bob"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/chats", "not-a-jwt", map[string]string{"peerId": "bob"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := auth.NewVerifier([]byte("other-secret"))
	forged, err := other.Issue("alice", "alice", time.Hour)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/v1/chats", forged, map[string]string{"peerId": "bob"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBridge_HealthNeedsNoToken(t *testing.T) {
	f := newBridgeFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBridge_ChatLifecycle(t *testing.T) {
	f := newBridgeFixture(t)
	ctx := context.Background()
	alice := f.token(t, "alice")

	rec := f.do(t, http.MethodPost, "/v1/chats", alice, map[string]string{"peerId": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "alice_bob", created["chatId"])

	rec = f.do(t, http.MethodPost, "/v1/chats/alice_bob/messages", alice, map[string]string{
		"content":     "hello there",
		"recipientId": "bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := f.store.Get(ctx, "chats", "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "hello there", docstore.AsString(doc.Fields["lastMessage"]))
	counts := docstore.AsCountMap(doc.Fields["unreadCounts"])
	assert.Equal(t, int64(1), counts["bob"])

	msgs, err := f.store.GetAll(ctx, docstore.Query{
		Collection: "chats", Parent: "alice_bob", Sub: "messages",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// Bob reads, then deletes the message.
	bob := f.token(t, "bob")
	rec = f.do(t, http.MethodPost, "/v1/chats/alice_bob/read", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err = f.store.Get(ctx, "chats", "alice_bob")
	require.NoError(t, err)
	counts = docstore.AsCountMap(doc.Fields["unreadCounts"])
	assert.Equal(t, int64(0), counts["bob"])

	rec = f.do(t, http.MethodDelete, "/v1/chats/alice_bob/messages/"+msgs[0].ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err = f.store.Get(ctx, "chats", "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, chat.DeletedMessageText, docstore.AsString(doc.Fields["lastMessage"]))
}

func TestBridge_SendMessageRequiresRecipient(t *testing.T) {
	f := newBridgeFixture(t)
	alice := f.token(t, "alice")

	rec := f.do(t, http.MethodPost, "/v1/chats/alice_bob/messages", alice, map[string]string{
		"content": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBridge_FriendFlow(t *testing.T) {
	f := newBridgeFixture(t)
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	rec := f.do(t, http.MethodPost, "/v1/friends", alice, map[string]string{"targetId": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	friendshipID := created["friendshipId"]
	require.NotEmpty(t, friendshipID)

	rec = f.do(t, http.MethodPost, "/v1/friends/"+friendshipID+"/accept", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/friends", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, []string{"bob"}, listed["friends"])
}

func TestBridge_PostActions(t *testing.T) {
	f := newBridgeFixture(t)
	ctx := context.Background()
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	rec := f.do(t, http.MethodPost, "/v1/posts", alice, map[string]string{
		"content": "first post",
		"name":    "Alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	postID := created["postId"]
	require.NotEmpty(t, postID)

	rec = f.do(t, http.MethodPost, "/v1/posts/"+postID+"/like", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := f.store.Get(ctx, "posts", postID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, docstore.AsStringSlice(doc.Fields["likes"]))

	rec = f.do(t, http.MethodDelete, "/v1/posts/"+postID+"/like", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err = f.store.Get(ctx, "posts", postID)
	require.NoError(t, err)
	assert.Empty(t, docstore.AsStringSlice(doc.Fields["likes"]))

	rec = f.do(t, http.MethodPost, "/v1/posts", alice, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBridge_ConversationsStreamEmitsSnapshots(t *testing.T) {
	f := newBridgeFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()
	alice := f.token(t, "alice")

	rec := f.do(t, http.MethodPost, "/v1/chats", alice, map[string]string{"peerId": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/chats/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(strings.TrimSpace(line), "data: ")
				return
			}
		}
	}()

	select {
	case payload := <-lines:
		var convs []chat.Conversation
		require.NoError(t, json.Unmarshal([]byte(payload), &convs))
		require.Len(t, convs, 1)
		assert.Equal(t, "alice_bob", convs[0].ID)
	case <-deadline:
		t.Fatal("timed out waiting for initial snapshot")
	}
}

func TestBridge_FriendRequestsList(t *testing.T) {
	f := newBridgeFixture(t)
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	rec := f.do(t, http.MethodPost, "/v1/friends", alice, map[string]string{"targetId": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/friends/requests", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed map[string][]friend.Friendship
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed["requests"], 1)
	assert.Equal(t, "alice", listed["requests"][0].RequesterID)
	assert.Equal(t, "pending", listed["requests"][0].Status)

	// The requester's own outgoing edge is not an incoming request.
	rec = f.do(t, http.MethodGet, "/v1/friends/requests", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed["requests"])
}

func TestBridge_AddComment(t *testing.T) {
	f := newBridgeFixture(t)
	ctx := context.Background()
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	rec := f.do(t, http.MethodPost, "/v1/posts", alice, map[string]string{"content": "discuss"})
	require.Equal(t, http.StatusOK, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	postID := created["postId"]

	rec = f.do(t, http.MethodPost, "/v1/posts/"+postID+"/comments", bob, map[string]string{
		"text": "well said",
		"name": "Bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var commented map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commented))
	require.NotEmpty(t, commented["commentId"])

	doc, err := f.store.Get(ctx, "posts", postID)
	require.NoError(t, err)
	comments := docstore.AsSlice(doc.Fields["comments"])
	require.Len(t, comments, 1)
	fields := docstore.AsFields(comments[0])
	assert.Equal(t, "well said", docstore.AsString(fields["content"]))

	// The post author's inbox picked up the comment notification.
	docs, err := f.store.GetAll(ctx, docstore.Query{
		Collection: "notifications",
		Where: []docstore.Cond{
			{Field: "recipientId", Op: docstore.OpEqual, Value: "alice"},
		},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, notif.TypeComment, docstore.AsString(docs[0].Fields["type"]))
}

func TestBridge_PresenceStreamTracksConnection(t *testing.T) {
	f := newBridgeFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()
	ctx := context.Background()
	alice := f.token(t, "alice")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/presence/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		state, ok := f.kv.Get("status/alice")
		if !ok || !state.Online {
			return false
		}
		doc, err := f.store.Get(ctx, "users", "alice")
		return err == nil && docstore.AsBool(doc.Fields["isOnline"])
	}, 2*time.Second, 10*time.Millisecond)

	// Dropping the stream is the disconnect.
	resp.Body.Close()

	require.Eventually(t, func() bool {
		state, _ := f.kv.Get("status/alice")
		if state.Online {
			return false
		}
		doc, err := f.store.Get(ctx, "users", "alice")
		return err == nil && !docstore.AsBool(doc.Fields["isOnline"])
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_ToastStreamDeliversDispatchedEvents(t *testing.T) {
	f := newBridgeFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/toasts/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bob)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Headers are flushed only after the observer is registered, so the
	// dispatch below cannot race past it.
	rec := f.do(t, http.MethodPost, "/v1/friends", alice, map[string]string{"targetId": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	reader := bufio.NewReader(resp.Body)
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(strings.TrimSpace(line), "data: ")
				return
			}
		}
	}()

	select {
	case payload := <-lines:
		var n notif.Notification
		require.NoError(t, json.Unmarshal([]byte(payload), &n))
		assert.Equal(t, notif.TypeFriendRequest, n.Type)
		assert.Equal(t, "bob", n.RecipientID)
		assert.Equal(t, "alice", n.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for toast event")
	}
}
