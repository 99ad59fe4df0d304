// Package gormstore implements docstore.Store on MySQL for self-hosted
// deployments. Every document is one row holding the field map as JSON.
// Merge-upserts and increments run inside a transaction under a row lock,
// which gives the contract's atomic-increment guarantee. MySQL pushes no
// change events, so subscriptions are fed by an in-process hub notified
// after each commit: live queries see writes made through this process,
// which is exactly the desktop single-client case.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"socialdesk/internal/config"
	"socialdesk/internal/docstore"
)

type documentRow struct {
	Collection string `gorm:"primaryKey;size:191"`
	DocID      string `gorm:"primaryKey;size:191;column:doc_id"`
	Data       []byte `gorm:"type:json"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type counterRow struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64
}

func (counterRow) TableName() string { return "document_ids" }

type subscriber struct {
	id      int
	query   docstore.Query
	emitter *docstore.Emitter
}

type Store struct {
	db *gorm.DB

	mu      sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

// New connects to MySQL, applies the configured pool settings and
// migrates the document tables.
func New(cfg *config.Config) (*Store, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: cannot connect to MySQL: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore: sql.DB error: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&documentRow{}, &counterRow{}); err != nil {
		return nil, fmt.Errorf("gormstore: migration failed: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing gorm handle; used by tests running against
// sqlite-compatible fixtures or a scratch schema.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db, subs: make(map[int]*subscriber)}
}

// Close stops all subscriptions and releases the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, sub := range s.subs {
		sub.emitter.Close()
		delete(s.subs, id)
	}
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
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

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return s.get(ctx, topPath(collection), id)
}

func (s *Store) GetChild(ctx context.Context, collection, parentID, sub, childID string) (docstore.Document, error) {
	return s.get(ctx, subPath(collection, parentID, sub), childID)
}

func (s *Store) get(ctx context.Context, path, id string) (docstore.Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", path, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return rowToDocument(row)
}

func rowToDocument(row documentRow) (docstore.Document, error) {
	fields := docstore.Fields{}
	if err := json.Unmarshal(row.Data, &fields); err != nil {
		return docstore.Document{}, fmt.Errorf("gormstore: corrupt document %s/%s: %w", row.Collection, row.DocID, err)
	}
	return docstore.Document{ID: row.DocID, Fields: fields}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := s.write(ctx, topPath(collection), id, fields, true, false); err != nil {
		return err
	}
	s.notify(ctx, topPath(collection))
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := s.write(ctx, topPath(collection), id, fields, false, true); err != nil {
		return err
	}
	s.notify(ctx, topPath(collection))
	return nil
}

func (s *Store) UpdateChild(ctx context.Context, collection, parentID, sub, childID string, fields docstore.Fields) error {
	path := subPath(collection, parentID, sub)
	if err := s.write(ctx, path, childID, fields, false, true); err != nil {
		return err
	}
	s.notify(ctx, path)
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id, err := s.insert(ctx, topPath(collection), fields)
	if err != nil {
		return "", err
	}
	s.notify(ctx, topPath(collection))
	return id, nil
}

func (s *Store) Append(ctx context.Context, collection, parentID, sub string, fields docstore.Fields) (string, error) {
	path := subPath(collection, parentID, sub)
	id, err := s.insert(ctx, path, fields)
	if err != nil {
		return "", err
	}
	s.notify(ctx, path)
	return id, nil
}

// write merges or overwrites one document inside a transaction. The row is
// locked for the duration so concurrent increments serialize instead of
// losing updates.
func (s *Store) write(ctx context.Context, path, id string, fields docstore.Fields, merge, mustExist bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND doc_id = ?", path, id).
			First(&row).Error
		missing := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !missing {
			return err
		}
		if missing && mustExist {
			return docstore.ErrNotFound
		}

		existing := docstore.Fields{}
		if !missing {
			if err := json.Unmarshal(row.Data, &existing); err != nil {
				return fmt.Errorf("gormstore: corrupt document %s/%s: %w", path, id, err)
			}
		}
		now := time.Now().UTC()
		updated := docstore.Apply(existing, fields, merge, now)
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("gormstore: marshal failed: %w", err)
		}

		row.Collection = path
		row.DocID = id
		row.Data = data
		row.UpdatedAt = now
		return tx.Save(&row).Error
	})
}

func (s *Store) insert(ctx context.Context, path string, fields docstore.Fields) (string, error) {
	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter counterRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", "documents").
			First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = counterRow{Name: "documents"}
		} else if err != nil {
			return err
		}
		counter.Value++
		if err := tx.Save(&counter).Error; err != nil {
			return err
		}
		id = fmt.Sprintf("doc%012d", counter.Value)

		now := time.Now().UTC()
		data, err := json.Marshal(docstore.Apply(docstore.Fields{}, fields, true, now))
		if err != nil {
			return fmt.Errorf("gormstore: marshal failed: %w", err)
		}
		return tx.Create(&documentRow{
			Collection: path,
			DocID:      id,
			Data:       data,
			UpdatedAt:  now,
		}).Error
	})
	return id, err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.delete(ctx, topPath(collection), id)
}

func (s *Store) DeleteChild(ctx context.Context, collection, parentID, sub, childID string) error {
	return s.delete(ctx, subPath(collection, parentID, sub), childID)
}

func (s *Store) delete(ctx context.Context, path, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", path, id).
		Delete(&documentRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return docstore.ErrNotFound
	}
	s.notify(ctx, path)
	return nil
}

// GetAll loads the collection's rows and evaluates the query in Go. Filters
// and single-field ordering never need a MySQL index on JSON paths this way;
// collections here are per-user working sets, not analytics tables.
func (s *Store) GetAll(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", queryPath(q)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	var docs []docstore.Document
	for _, row := range rows {
		doc, err := rowToDocument(row)
		if err != nil {
			return nil, err
		}
		if docstore.Match(doc.Fields, q.Where) {
			docs = append(docs, doc)
		}
	}
	docstore.SortDocs(docs, q.OrderBy, q.Desc)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func(docstore.Snapshot)) (docstore.CancelFunc, error) {
	initial, err := s.GetAll(ctx, q)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextSub++
	sub := &subscriber{id: s.nextSub, query: q, emitter: docstore.NewEmitter(fn)}
	s.subs[sub.id] = sub
	s.mu.Unlock()
	sub.emitter.Emit(docstore.Snapshot{Docs: initial})

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

// notify re-runs every live query over the touched path and emits. Failures
// here are logged by callers of the projections; a missed refresh corrects
// itself on the next write.
func (s *Store) notify(ctx context.Context, path string) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if queryPath(sub.query) == path {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		docs, err := s.GetAll(ctx, sub.query)
		if err != nil {
			continue
		}
		sub.emitter.Emit(docstore.Snapshot{Docs: docs})
	}
}
