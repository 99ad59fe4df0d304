package notif

import (
	"context"
	"log"
	"sync"
)

// Observer receives in-process delivery of a notification after it has been
// persisted, e.g. a desktop toast or a badge updater.
type Observer interface {
	Update(n Notification) error
	Name() string
}

// Manager fans persisted notifications out to registered observers through a
// fixed worker pool. Delivery is best effort: a full channel drops the event
// and a failing observer is only logged.
type Manager struct {
	mu        sync.RWMutex
	observers map[string]Observer
	events    chan Notification
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewManager(workers, buffer int) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		observers: make(map[string]Observer),
		events:    make(chan Notification, buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.processEvents()
	}
	return m
}

func (m *Manager) Register(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers[observer.Name()] = observer
	log.Printf("notif: observer %s registered", observer.Name())
}

func (m *Manager) Deregister(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, observer.Name())
}

// Dispatch delivers synchronously to every observer.
func (m *Manager) Dispatch(n Notification) {
	m.mu.RLock()
	observers := make([]Observer, 0, len(m.observers))
	for _, obs := range m.observers {
		observers = append(observers, obs)
	}
	m.mu.RUnlock()

	for _, observer := range observers {
		if err := observer.Update(n); err != nil {
			log.Printf("notif: observer %s update failed: %v", observer.Name(), err)
		}
	}
}

// DispatchAsync enqueues for worker delivery, dropping when the buffer is
// full rather than blocking the caller's action.
func (m *Manager) DispatchAsync(n Notification) {
	select {
	case m.events <- n:
	case <-m.ctx.Done():
	default:
		log.Printf("notif: event channel full, dropping %s notification", n.Type)
	}
}

func (m *Manager) processEvents() {
	defer m.wg.Done()
	for {
		select {
		case n := <-m.events:
			m.Dispatch(n)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
	log.Println("notif: manager shutdown complete")
}
