// Package rediststore provides an httpcache.Backend backed by Redis via
// github.com/redis/go-redis/v9.
package rediststore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the configuration for creating a Redis-backed Backend.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// PoolSize is the maximum number of socket connections.
	// Optional - defaults to 10.
	PoolSize int

	// DialTimeout is the timeout for establishing new connections.
	// Optional - defaults to 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	// Optional - defaults to 3 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	// Optional - defaults to 3 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Backend is an httpcache.Backend backed by a Redis server.
type Backend struct {
	client *redis.Client
	owns   bool // true if Backend opened the client and should close it
}

// keyPrefix avoids collisions with other data stored in the same Redis
// keyspace.
const keyPrefix = "httpcache:"

func redisKey(key string) string { return keyPrefix + key }

// New connects to Redis per config and returns a Backend.
func New(config Config) (*Backend, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("rediststore: address is required")
	}
	def := DefaultConfig()
	if config.PoolSize == 0 {
		config.PoolSize = def.PoolSize
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediststore: failed to connect to redis: %w", err)
	}

	return &Backend{client: client, owns: true}, nil
}

// NewWithClient returns a Backend using an already-configured client. The
// caller remains responsible for closing it.
func NewWithClient(client *redis.Client) *Backend {
	return &Backend{client: client, owns: false}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rediststore: get failed for key %q: %w", key, err)
	}
	return data, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("rediststore: set failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("rediststore: delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client if this Backend opened it.
func (b *Backend) Close() error {
	if b.owns {
		return b.client.Close()
	}
	return nil
}
