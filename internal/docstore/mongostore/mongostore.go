// Package mongostore implements docstore.Store on MongoDB. Logical
// collections map 1:1 onto Mongo collections; a document's subcollection
// lives in "<collection>.<sub>" with a parentId field. Write directives
// translate onto Mongo's native update operators, so increments and array
// union/remove are atomic server-side. Subscriptions ride change streams,
// re-running the query per event and emitting the full snapshot; the
// deployment must therefore be a replica set, which is also what Atlas
// provisions by default.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"socialdesk/internal/config"
	"socialdesk/internal/docstore"
)

const parentField = "parentId"

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI()))
	if err != nil {
		return nil, fmt.Errorf("mongostore: failed to connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: failed to ping: %w", err)
	}
	return &Store{client: client, db: client.Database(cfg.MongoDB.Database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(q docstore.Query) (*mongo.Collection, bson.M) {
	filter := translateWhere(q.Where)
	if q.Sub != "" {
		filter[parentField] = q.Parent
		return s.db.Collection(q.Collection + "." + q.Sub), filter
	}
	return s.db.Collection(q.Collection), filter
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return s.get(ctx, s.db.Collection(collection), id)
}

func (s *Store) GetChild(ctx context.Context, collection, parentID, sub, childID string) (docstore.Document, error) {
	return s.get(ctx, s.db.Collection(collection+"."+sub), childID)
}

func (s *Store) get(ctx context.Context, col *mongo.Collection, id string) (docstore.Document, error) {
	var raw bson.M
	err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return rawToDocument(raw), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	update := translateUpdate(fields, true)
	_, err := s.db.Collection(collection).
		UpdateByID(ctx, id, update, options.Update().SetUpsert(true))
	return err
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.update(ctx, s.db.Collection(collection), id, fields)
}

func (s *Store) UpdateChild(ctx context.Context, collection, parentID, sub, childID string, fields docstore.Fields) error {
	return s.update(ctx, s.db.Collection(collection+"."+sub), childID, fields)
}

func (s *Store) update(ctx context.Context, col *mongo.Collection, id string, fields docstore.Fields) error {
	update := translateUpdate(fields, false)
	res, err := col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	return s.insert(ctx, s.db.Collection(collection), fields, nil)
}

func (s *Store) Append(ctx context.Context, collection, parentID, sub string, fields docstore.Fields) (string, error) {
	return s.insert(ctx, s.db.Collection(collection+"."+sub), fields, bson.M{parentField: parentID})
}

func (s *Store) insert(ctx context.Context, col *mongo.Collection, fields docstore.Fields, extra bson.M) (string, error) {
	id := primitive.NewObjectID().Hex()
	update := translateUpdate(fields, true)
	if len(extra) > 0 {
		set, _ := update["$set"].(bson.M)
		if set == nil {
			set = bson.M{}
		}
		for k, v := range extra {
			set[k] = v
		}
		update["$set"] = set
	}
	_, err := col.UpdateByID(ctx, id, update, options.Update().SetUpsert(true))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.remove(ctx, s.db.Collection(collection), id)
}

func (s *Store) DeleteChild(ctx context.Context, collection, parentID, sub, childID string) error {
	return s.remove(ctx, s.db.Collection(collection+"."+sub), childID)
}

func (s *Store) remove(ctx context.Context, col *mongo.Collection, id string) error {
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	col, filter := s.collection(q)

	opts := options.Find()
	if q.OrderBy != "" {
		order := 1
		if q.Desc {
			order = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: order}, {Key: "_id", Value: order}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []docstore.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		docs = append(docs, rawToDocument(raw))
	}
	return docs, cursor.Err()
}

// Subscribe emits the current result set, then re-runs the query on every
// change-stream event for the collection. Full snapshots per event keep the
// projection contract identical across backends.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func(docstore.Snapshot)) (docstore.CancelFunc, error) {
	col, _ := s.collection(q)

	streamCtx, cancelStream := context.WithCancel(context.Background())
	stream, err := col.Watch(streamCtx, mongo.Pipeline{})
	if err != nil {
		cancelStream()
		return nil, fmt.Errorf("mongostore: change stream failed: %w", err)
	}

	emitter := docstore.NewEmitter(fn)
	initial, err := s.GetAll(ctx, q)
	if err != nil {
		cancelStream()
		stream.Close(context.Background())
		emitter.Close()
		return nil, err
	}
	emitter.Emit(docstore.Snapshot{Docs: initial})

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			docs, err := s.GetAll(streamCtx, q)
			if err != nil {
				if streamCtx.Err() == nil {
					log.Printf("mongostore: live query refresh failed: %v", err)
				}
				continue
			}
			emitter.Emit(docstore.Snapshot{Docs: docs})
		}
	}()

	cancel := func() {
		cancelStream()
		emitter.Close()
	}
	return cancel, nil
}
