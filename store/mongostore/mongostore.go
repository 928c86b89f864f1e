// Package mongostore provides an httpcache.Backend backed by MongoDB via
// go.mongodb.org/mongo-driver.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the configuration for creating a MongoDB-backed Backend.
type Config struct {
	// URI is the MongoDB connection URI. Required.
	URI string
	// Database is the database to use for caching. Required.
	Database string
	// Collection is the collection to use. Optional, defaults to
	// "httpcache".
	Collection string
	// KeyPrefix is prepended to every document id. Optional, defaults to
	// "cache:".
	KeyPrefix string
	// Timeout bounds every database operation. Optional, defaults to 5s.
	Timeout time.Duration
	// TTL, if set, creates a TTL index so entries expire automatically.
	TTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Collection == "" {
		c.Collection = "httpcache"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "cache:"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

type document struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Backend is an httpcache.Backend backed by a MongoDB collection.
type Backend struct {
	client     *mongo.Client // nil when the Backend doesn't own the connection
	collection *mongo.Collection
	keyPrefix  string
	timeout    time.Duration
}

func (b *Backend) docID(key string) string { return b.keyPrefix + key }

// New connects to MongoDB per config and returns a Backend. The caller
// should call Close when done.
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("mongostore: URI is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("mongostore: database name is required")
	}
	config = config.withDefaults()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("mongostore: failed to connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: failed to ping: %w", err)
	}

	b := &Backend{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}

	if config.TTL > 0 {
		if err := b.ensureTTLIndex(ctx, config.TTL); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongostore: failed to create TTL index: %w", err)
		}
	}

	return b, nil
}

// NewWithClient returns a Backend using an already-connected client. The
// caller remains responsible for disconnecting it.
func NewWithClient(client *mongo.Client, database, collection string, config Config) *Backend {
	config = config.withDefaults()
	if collection == "" {
		collection = config.Collection
	}
	return &Backend{
		collection: client.Database(database).Collection(collection),
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var doc document
	err := b.collection.FindOne(ctx, bson.M{"_id": b.docID(key)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("mongostore: get failed for key %q: %w", key, err)
	}
	return doc.Data, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	doc := document{Key: b.docID(key), Data: data, CreatedAt: time.Now()}
	opts := options.Replace().SetUpsert(true)
	if _, err := b.collection.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, opts); err != nil {
		return fmt.Errorf("mongostore: set failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.collection.DeleteOne(ctx, bson.M{"_id": b.docID(key)}); err != nil {
		return fmt.Errorf("mongostore: delete failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) ensureTTLIndex(ctx context.Context, ttl time.Duration) error {
	model := mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().
			SetExpireAfterSeconds(int32(ttl.Seconds())).
			SetName("httpcache_ttl"),
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	_, err := b.collection.Indexes().CreateOne(ctx, model)
	return err
}

// Close disconnects from MongoDB, if this Backend owns the connection.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.client.Disconnect(ctx)
}
