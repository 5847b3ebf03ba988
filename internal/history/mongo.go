// ABOUTME: MongoDB history store selected by data.mongodb_url
// ABOUTME: Documents expire through a TTL index on fetched_at

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	// DefaultDatabase is used when the connection URL names no database.
	DefaultDatabase = "convo_gateway"
	collectionName  = "conversation_history"
	ttlIndexName    = "fetched_at_ttl"
)

// mongoRecord wraps a document as JSON so free-form message payloads
// round-trip without BSON type changes.
type mongoRecord struct {
	ID        string    `bson:"_id"`
	FetchedAt time.Time `bson:"fetched_at"`
	Body      string    `bson:"body"`
}

// MongoStore persists history documents in a MongoDB collection
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ttl        time.Duration
	logger     *slog.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to url, verifies the connection, and ensures the
// TTL index exists. A zero ttl keeps documents until they are deleted.
func NewMongoStore(ctx context.Context, url, database string, ttl time.Duration, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if database == "" {
		database = DefaultDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		ttl:        ttl,
		logger:     logger.With("component", "history", "backend", "mongodb"),
	}

	if err := s.ensureTTLIndex(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s.logger.Info("MongoDB history store initialized", "database", database, "ttl", ttl)
	return s, nil
}

// ensureTTLIndex reconciles the fetched_at TTL index with the configured ttl.
// An index left by a different ttl is dropped and rebuilt, and a zero ttl
// removes it.
func (s *MongoStore) ensureTTLIndex(ctx context.Context) error {
	specs, err := s.collection.Indexes().ListSpecifications(ctx)
	if err != nil {
		return fmt.Errorf("listing indexes: %w", err)
	}

	drop, create := ttlIndexChanges(specs, s.ttl)
	if drop {
		if err := s.collection.Indexes().DropOne(ctx, ttlIndexName); err != nil {
			return fmt.Errorf("dropping TTL index: %w", err)
		}
		s.logger.Info("dropped outdated TTL index", "ttl", s.ttl)
	}
	if !create {
		return nil
	}

	index := mongo.IndexModel{
		Keys: bson.D{{Key: "fetched_at", Value: 1}},
		Options: options.Index().
			SetName(ttlIndexName).
			SetExpireAfterSeconds(ttlSeconds(s.ttl)),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("creating TTL index: %w", err)
	}
	return nil
}

// ttlIndexChanges reports whether the existing TTL index must be dropped and
// whether one must be created for ttl.
func ttlIndexChanges(specs []mongo.IndexSpecification, ttl time.Duration) (drop, create bool) {
	var existing *mongo.IndexSpecification
	for i := range specs {
		if specs[i].Name == ttlIndexName {
			existing = &specs[i]
			break
		}
	}

	if ttl <= 0 {
		return existing != nil, false
	}
	if existing == nil {
		return false, true
	}
	if existing.ExpireAfterSeconds != nil && *existing.ExpireAfterSeconds == ttlSeconds(ttl) {
		return false, false
	}
	return true, true
}

func ttlSeconds(ttl time.Duration) int32 {
	return int32(ttl / time.Second)
}

// Get loads the document for id. Documents past the TTL are treated as
// missing even before MongoDB's background expiry removes them.
func (s *MongoStore) Get(ctx context.Context, id string) (*Document, error) {
	var rec mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding history document: %w", err)
	}
	if s.ttl > 0 && time.Since(rec.FetchedAt) >= s.ttl {
		return nil, ErrNotFound
	}

	var doc Document
	if err := json.Unmarshal([]byte(rec.Body), &doc); err != nil {
		return nil, fmt.Errorf("decoding history document: %w", err)
	}
	return &doc, nil
}

// Put upserts doc by id.
func (s *MongoStore) Put(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding history document: %w", err)
	}
	rec := mongoRecord{ID: doc.ID, FetchedAt: doc.FetchedAt, Body: string(body)}

	_, err = s.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		rec,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("storing history document: %w", err)
	}
	return nil
}

// Delete removes the document for id, if any.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting history document: %w", err)
	}
	return nil
}

// Clear removes every document.
func (s *MongoStore) Clear(ctx context.Context) error {
	result, err := s.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("clearing history documents: %w", err)
	}
	s.logger.Info("cleared history documents", "count", result.DeletedCount)
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
