package presence

import (
	"context"
	"sync"
)

// MemoryKV is the in-process realtime KV used when no hosted service is
// configured. The daemon owns its connection lifetimes and calls Stop on
// clean teardown, so armed disconnect writes only need to survive locally.
type MemoryKV struct {
	mu     sync.Mutex
	states map[string]State
	armed  map[string]State
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{states: map[string]State{}, armed: map[string]State{}}
}

func (kv *MemoryKV) Set(ctx context.Context, key string, value State) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.states[key] = value
	return nil
}

func (kv *MemoryKV) OnDisconnect(ctx context.Context, key string, value State) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.armed[key] = value
	return nil
}

// Get reads the current state for a key.
func (kv *MemoryKV) Get(key string) (State, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	state, ok := kv.states[key]
	return state, ok
}
