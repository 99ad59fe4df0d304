// Package docstore defines the document-store contract the rest of the
// application is written against. A store is a set of named collections of
// schemaless documents addressable by id, with field-level merge upserts,
// atomic numeric increments, array union/remove, server-assigned timestamps
// and live snapshot queries. Backends live in the subpackages memstore,
// mongostore and gormstore.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get/GetChild when no document exists under the
// requested id, and by Update/Delete when the target is absent.
var ErrNotFound = errors.New("docstore: document not found")

// Fields is a partial document: field name to value. Values may be plain Go
// values, nested Fields, or one of the write directives below.
type Fields map[string]any

// ServerTimestamp is a write-time placeholder resolved by the store to its
// own clock at commit time.
type ServerTimestamp struct{}

// Increment atomically adds By to a numeric field. Missing fields are
// treated as zero. This is the only concurrency-safe read-modify-write
// primitive the contract offers.
type Increment struct {
	By int64
}

// ArrayUnion appends each value to an array field unless already present.
type ArrayUnion struct {
	Values []any
}

// ArrayRemove removes every occurrence of each value from an array field.
type ArrayRemove struct {
	Values []any
}

// Document is a stored record: the store-assigned or caller-chosen id plus
// the full field map at snapshot time.
type Document struct {
	ID     string
	Fields Fields
}

// Op is a query comparison operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
	OpIn            Op = "in"
)

// Cond is a single query filter.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Query addresses either a top-level collection (Parent and Sub empty) or a
// document's subcollection. OrderBy is optional; callers that need an order
// the backend cannot serve cheaply sort the snapshot client-side instead.
type Query struct {
	Collection string
	Parent     string
	Sub        string
	Where      []Cond
	OrderBy    string
	Desc       bool
	Limit      int
}

// Snapshot carries the full result set of a subscribed query at one point
// in time. Subscriptions re-emit the complete set on every change; there is
// no incremental diffing.
type Snapshot struct {
	Docs []Document
}

// CancelFunc tears down a subscription. It is idempotent and is the only
// cancellation primitive: in-flight writes always run to completion.
type CancelFunc func()

// Store is the consumed persistence contract. All methods are safe for
// concurrent use. Per-document ordering is last-write-wins on the store's
// clock; there is deliberately no multi-document transaction primitive.
type Store interface {
	// Get fetches a top-level document by id.
	Get(ctx context.Context, collection, id string) (Document, error)

	// GetChild fetches a document from a subcollection.
	GetChild(ctx context.Context, collection, parentID, sub, childID string) (Document, error)

	// Set upserts with field-level merge: nested Fields values merge
	// recursively into existing maps, so sibling keys survive. Directives
	// are resolved at commit time.
	Set(ctx context.Context, collection, id string, fields Fields) error

	// Update partially overwrites an existing document. Nested maps are
	// replaced wholesale, not merged. Fails with ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// UpdateChild is Update against a subcollection document.
	UpdateChild(ctx context.Context, collection, parentID, sub, childID string, fields Fields) error

	// Add inserts a new document with a store-generated id.
	Add(ctx context.Context, collection string, fields Fields) (string, error)

	// Append inserts a new document with a store-generated id into a
	// document's subcollection.
	Append(ctx context.Context, collection, parentID, sub string, fields Fields) (string, error)

	// Delete removes a top-level document.
	Delete(ctx context.Context, collection, id string) error

	// DeleteChild removes a subcollection document.
	DeleteChild(ctx context.Context, collection, parentID, sub, childID string) error

	// GetAll runs a query once.
	GetAll(ctx context.Context, q Query) ([]Document, error)

	// Subscribe registers a live query. The callback receives an initial
	// snapshot followed by one snapshot per change, in mutation order, on a
	// goroutine owned by the store. The callback may call back into the
	// store.
	Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (CancelFunc, error)
}
