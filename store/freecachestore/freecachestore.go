// Package freecachestore provides a zero-GC-overhead httpcache.Backend
// backed by github.com/coocood/freecache, suitable for caching millions of
// entries with automatic LRU eviction and bounded memory use.
package freecachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/coocood/freecache"
)

// Backend is an httpcache.Backend backed by an in-process freecache.Cache.
type Backend struct {
	cache *freecache.Cache
}

// New returns a Backend with the given size in bytes (512KB minimum,
// enforced by freecache itself). Entries have no expiration and are only
// evicted under memory pressure.
func New(size int) *Backend {
	return &Backend{cache: freecache.NewCache(size)}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := b.cache.Get([]byte(key))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("freecachestore: get failed for key %q: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Set(_ context.Context, key string, data []byte) error {
	if err := b.cache.Set([]byte(key), data, 0); err != nil {
		return fmt.Errorf("freecachestore: set failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.cache.Del([]byte(key))
	return nil
}

// EntryCount returns the number of entries currently in the cache.
func (b *Backend) EntryCount() int64 { return b.cache.EntryCount() }

// HitRate returns the ratio of cache hits to total lookups.
func (b *Backend) HitRate() float64 { return b.cache.HitRate() }
