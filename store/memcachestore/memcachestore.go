// Package memcachestore provides an httpcache.Backend backed by
// github.com/bradfitz/gomemcache.
package memcachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
)

// keyPrefix avoids collision with other data stored in the same memcache
// keyspace.
const keyPrefix = "httpcache:"

func memcacheKey(key string) string { return keyPrefix + key }

// Backend is an httpcache.Backend backed by one or more memcached servers.
type Backend struct {
	client *memcache.Client
}

// New returns a Backend using the given memcache server(s) with equal
// weight. If a server is listed multiple times, it gets a proportional
// amount of weight.
func New(servers ...string) *Backend {
	return NewWithClient(memcache.New(servers...))
}

// NewWithClient returns a Backend using an already-configured client.
func NewWithClient(client *memcache.Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := b.client.Get(memcacheKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("memcachestore: get failed for key %q: %w", key, err)
	}
	return item.Value, true, nil
}

func (b *Backend) Set(_ context.Context, key string, data []byte) error {
	item := &memcache.Item{Key: memcacheKey(key), Value: data}
	if err := b.client.Set(item); err != nil {
		return fmt.Errorf("memcachestore: set failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	if err := b.client.Delete(memcacheKey(key)); err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		return fmt.Errorf("memcachestore: delete failed for key %q: %w", key, err)
	}
	return nil
}
