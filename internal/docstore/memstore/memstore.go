// Package memstore is an in-process docstore.Store. It backs unit tests and
// the daemon's local mode; the hosted backends live in mongostore and
// gormstore.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"socialdesk/internal/docstore"
)

type subscriber struct {
	id      int
	query   docstore.Query
	emitter *docstore.Emitter
}

// Store keeps every collection in memory. Server timestamps are strictly
// monotonic per store so message ordering is total even when the wall clock
// stalls between writes.
type Store struct {
	mu      sync.Mutex
	cols    map[string]map[string]docstore.Fields
	subs    map[int]*subscriber
	nextSub int
	nextID  int64
	clock   func() time.Time
	lastTS  time.Time
}

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock injects the clock used for server timestamps.
func NewWithClock(clock func() time.Time) *Store {
	return &Store{
		cols:  make(map[string]map[string]docstore.Fields),
		subs:  make(map[int]*subscriber),
		clock: clock,
	}
}

func topPath(collection string) string { return collection }

func subPath(collection, parentID, sub string) string {
	return collection + "/" + parentID + "/" + sub
}

func queryPath(q docstore.Query) string {
	if q.Sub != "" {
		return subPath(q.Collection, q.Parent, q.Sub)
	}
	return topPath(q.Collection)
}

func (s *Store) serverTimeLocked() time.Time {
	now := s.clock().UTC()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = now
	return now
}

func (s *Store) generateIDLocked() string {
	s.nextID++
	return fmt.Sprintf("doc%08d", s.nextID)
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return s.get(topPath(collection), id)
}

func (s *Store) GetChild(ctx context.Context, collection, parentID, sub, childID string) (docstore.Document, error) {
	return s.get(subPath(collection, parentID, sub), childID)
}

func (s *Store) get(path, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.cols[path][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Fields: docstore.Clone(fields)}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	s.write(topPath(collection), id, fields, true, false)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.update(topPath(collection), id, fields)
}

func (s *Store) UpdateChild(ctx context.Context, collection, parentID, sub, childID string, fields docstore.Fields) error {
	return s.update(subPath(collection, parentID, sub), childID, fields)
}

func (s *Store) update(path, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cols[path][id]; !ok {
		return docstore.ErrNotFound
	}
	s.writeLocked(path, id, fields, false, false)
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	return s.write(topPath(collection), "", fields, true, true), nil
}

func (s *Store) Append(ctx context.Context, collection, parentID, sub string, fields docstore.Fields) (string, error) {
	return s.write(subPath(collection, parentID, sub), "", fields, true, true), nil
}

// write applies one mutation and fans the resulting snapshots out to every
// matching subscription while still ordered with respect to other writers.
func (s *Store) write(path, id string, fields docstore.Fields, merge, generate bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(path, id, fields, merge, generate)
}

func (s *Store) writeLocked(path, id string, fields docstore.Fields, merge, generate bool) string {
	if generate {
		id = s.generateIDLocked()
	}
	col := s.cols[path]
	if col == nil {
		col = make(map[string]docstore.Fields)
		s.cols[path] = col
	}
	now := s.serverTimeLocked()
	col[id] = docstore.Apply(col[id], fields, merge, now)
	s.notifyLocked(path)
	return id
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.delete(topPath(collection), id)
}

func (s *Store) DeleteChild(ctx context.Context, collection, parentID, sub, childID string) error {
	return s.delete(subPath(collection, parentID, sub), childID)
}

func (s *Store) delete(path, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cols[path][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.cols[path], id)
	s.notifyLocked(path)
	return nil
}

func (s *Store) GetAll(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateLocked(q), nil
}

func (s *Store) evaluateLocked(q docstore.Query) []docstore.Document {
	var docs []docstore.Document
	for id, fields := range s.cols[queryPath(q)] {
		if docstore.Match(fields, q.Where) {
			docs = append(docs, docstore.Document{ID: id, Fields: docstore.Clone(fields)})
		}
	}
	docstore.SortDocs(docs, q.OrderBy, q.Desc)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func(docstore.Snapshot)) (docstore.CancelFunc, error) {
	s.mu.Lock()
	s.nextSub++
	sub := &subscriber{id: s.nextSub, query: q, emitter: docstore.NewEmitter(fn)}
	s.subs[sub.id] = sub
	sub.emitter.Emit(docstore.Snapshot{Docs: s.evaluateLocked(q)})
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
			sub.emitter.Close()
		})
	}
	return cancel, nil
}

func (s *Store) notifyLocked(path string) {
	for _, sub := range s.subs {
		if queryPath(sub.query) != path {
			continue
		}
		sub.emitter.Emit(docstore.Snapshot{Docs: s.evaluateLocked(sub.query)})
	}
}
