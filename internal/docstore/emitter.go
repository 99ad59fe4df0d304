package docstore

import "sync"

// Emitter delivers snapshots to a single subscriber in enqueue order on a
// dedicated goroutine, so a callback may block or call back into the store
// without deadlocking the writer that produced the change.
type Emitter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Snapshot
	closed  bool
	done    chan struct{}
}

func NewEmitter(fn func(Snapshot)) *Emitter {
	e := &Emitter{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run(fn)
	return e
}

// Emit queues a snapshot for delivery. Calls after Close are dropped.
func (e *Emitter) Emit(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.pending = append(e.pending, s)
	e.cond.Signal()
}

// Close stops delivery and drops anything still queued. It does not wait
// for the delivery goroutine, so it is safe to call from the callback.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.cond.Signal()
}

func (e *Emitter) run(fn func(Snapshot)) {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.pending) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		next := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()
		fn(next)
	}
}
