package httpcache

import "context"

// Backend is the byte-oriented storage contract that every concrete cache
// backend (store/memstore, store/diskstore, store/rediststore, ...)
// implements. A Store is built on top of a Backend by adding request
// fingerprinting and CacheEntry (de)serialization; the Backend itself
// knows nothing about HTTP.
type Backend interface {
	// Get returns the bytes stored under key. ok is false on a miss; err
	// is reserved for backend failures (connection errors, corruption),
	// never for an ordinary miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
