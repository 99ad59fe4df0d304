// Package presence keeps the "is this user online" flag fresh. The realtime
// state lives in an external key-value service consumed through the KV
// contract; the document store's user record mirrors the flag so the rest of
// the app can read presence with everything else.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"socialdesk/internal/docstore"
)

const usersCollection = "users"

// State is the realtime presence value written under status/<userID>.
type State struct {
	Online      bool      `json:"online"`
	LastChanged time.Time `json:"lastChanged"`
}

// KV is the consumed realtime key-value contract. OnDisconnect arms a
// server-side write that fires if the connection drops without a clean
// shutdown, which is what makes abrupt exits resolve to offline.
type KV interface {
	Set(ctx context.Context, key string, value State) error
	OnDisconnect(ctx context.Context, key string, value State) error
}

// Service hands out per-user trackers over one shared KV and store.
type Service struct {
	kv       KV
	store    docstore.Store
	interval time.Duration
}

func NewService(kv KV, store docstore.Store, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{kv: kv, store: store, interval: interval}
}

func (s *Service) Track(userID string) *Tracker {
	return NewTracker(s.kv, s.store, userID, s.interval)
}

// Tracker flips a user online, heartbeats lastSeen while running, and flips
// them offline on Stop.
type Tracker struct {
	kv       KV
	store    docstore.Store
	userID   string
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewTracker(kv KV, store docstore.Store, userID string, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Tracker{kv: kv, store: store, userID: userID, interval: interval}
}

func (t *Tracker) key() string { return "status/" + t.userID }

func (t *Tracker) Start(ctx context.Context) error {
	offline := State{Online: false, LastChanged: time.Now().UTC()}
	if err := t.kv.OnDisconnect(ctx, t.key(), offline); err != nil {
		return err
	}
	if err := t.kv.Set(ctx, t.key(), State{Online: true, LastChanged: time.Now().UTC()}); err != nil {
		return err
	}
	if err := t.touch(ctx, true); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.stopped = make(chan struct{})
	t.mu.Unlock()

	go t.heartbeat(runCtx)
	return nil
}

func (t *Tracker) heartbeat(ctx context.Context) {
	defer close(t.stopped)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.touch(ctx, true); err != nil {
				log.Printf("presence: heartbeat for %s failed: %v", t.userID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop flips the user offline. The armed OnDisconnect write covers the
// paths that never reach here.
func (t *Tracker) Stop(ctx context.Context) {
	t.mu.Lock()
	cancel, stopped := t.cancel, t.stopped
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped

	if err := t.kv.Set(ctx, t.key(), State{Online: false, LastChanged: time.Now().UTC()}); err != nil {
		log.Printf("presence: offline write for %s failed: %v", t.userID, err)
	}
	if err := t.touch(ctx, false); err != nil {
		log.Printf("presence: offline mirror for %s failed: %v", t.userID, err)
	}
}

func (t *Tracker) touch(ctx context.Context, online bool) error {
	return t.store.Set(ctx, usersCollection, t.userID, docstore.Fields{
		"isOnline": online,
		"lastSeen": docstore.ServerTimestamp{},
	})
}
