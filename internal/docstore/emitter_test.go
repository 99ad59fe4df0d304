package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitter_DeliversInOrder(t *testing.T) {
	got := make(chan int, 100)
	e := NewEmitter(func(s Snapshot) { got <- len(s.Docs) })
	defer e.Close()

	for i := 0; i < 50; i++ {
		docs := make([]Document, i)
		e.Emit(Snapshot{Docs: docs})
	}

	for i := 0; i < 50; i++ {
		select {
		case n := <-got:
			require.Equal(t, i, n, "snapshots must arrive in enqueue order")
		case <-time.After(2 * time.Second):
			t.Fatal("delivery stalled")
		}
	}
}

func TestEmitter_CloseStopsDelivery(t *testing.T) {
	got := make(chan struct{}, 10)
	e := NewEmitter(func(Snapshot) { got <- struct{}{} })

	e.Close()
	e.Emit(Snapshot{})

	select {
	case <-got:
		t.Fatal("emitted after close")
	case <-time.After(50 * time.Millisecond):
	}

	// Double close is fine.
	e.Close()
}

func TestEmitter_CallbackMayBlockWithoutBlockingEmit(t *testing.T) {
	release := make(chan struct{})
	e := NewEmitter(func(Snapshot) { <-release })
	defer e.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			e.Emit(Snapshot{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow callback")
	}
	close(release)
}
