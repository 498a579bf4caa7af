// Package mongostore stores each document as one MongoDB document keyed by _id.
//
// MongoDB transactions need a replica set, so Update uses optimistic
// concurrency instead: the write only succeeds if the version read at the
// start of the cycle is still current, otherwise the cycle is retried.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledger/internal/document"
)

const (
	DefaultDatabase   = "ledger"
	collectionName    = "documents"
	defaultMaxRetries = 8
)

// ErrConflict is returned when Update keeps losing the version race.
var ErrConflict = errors.New("document changed concurrently")

type Store struct {
	client     *mongo.Client
	coll       *mongo.Collection
	maxRetries int
}

type storedDocument struct {
	Key       string    `bson:"_id"`
	Body      string    `bson:"body"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New connects to uri and uses the documents collection of database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{
		client:     client,
		coll:       client.Database(database).Collection(collectionName),
		maxRetries: defaultMaxRetries,
	}, nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	doc, found, err := s.find(ctx, key)
	if err != nil || !found {
		return nil, err
	}
	return []byte(doc.Body), nil
}

func (s *Store) Save(ctx context.Context, key string, doc []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return doc, nil
	})
}

// Update may invoke fn more than once when another writer wins the race.
func (s *Store) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		cur, found, err := s.find(ctx, key)
		if err != nil {
			return err
		}

		var current []byte
		if found {
			current = []byte(cur.Body)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}

		ok, err := s.write(ctx, key, cur, found, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		slog.DebugContext(ctx, "Document version conflict, retrying", "key", key, "attempt", attempt+1)
	}
	return fmt.Errorf("update document %s: %w", key, ErrConflict)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) find(ctx context.Context, key string) (storedDocument, bool, error) {
	var doc storedDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, fmt.Errorf("load document %s: %w", key, err)
	}
	return doc, true, nil
}

// write reports false when the stored version moved since cur was read.
func (s *Store) write(ctx context.Context, key string, cur storedDocument, found bool, next []byte) (bool, error) {
	now := time.Now().UTC()
	if !found {
		_, err := s.coll.InsertOne(ctx, storedDocument{Key: key, Body: string(next), Version: 1, UpdatedAt: now})
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("insert document %s: %w", key, err)
		}
		return true, nil
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key, "version": cur.Version},
		bson.M{
			"$set": bson.M{"body": string(next), "updated_at": now},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return false, fmt.Errorf("update document %s: %w", key, err)
	}
	return res.MatchedCount == 1, nil
}

var _ document.Store = (*Store)(nil)
