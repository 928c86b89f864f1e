package httpcache

import (
	"context"
	"crypto/cipher"
	"net/http"
	"time"

	"github.com/arborcache/httpcache/metrics"
)

// Store-operation result labels, matching the convention the teacher's
// prometheus wrapper uses for its InstrumentedCache.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultSuccess = "success"
	resultError   = "error"
)

// Store is the entry-level cache contract the middleware talks to. It
// knows about *http.Request/*CacheEntry; a BackendStore is the standard
// way to get one from a byte-oriented Backend.
type Store interface {
	// Fetch looks up the entry for req. ok is false on a miss or on any
	// backend error (logged, then treated as a miss — a broken cache
	// must never fail a request that would otherwise succeed).
	Fetch(ctx context.Context, req *http.Request) (*CacheEntry, bool)

	// Cache persists entry as a newly fetched response for req's key,
	// replacing any entry already stored under that key.
	Cache(ctx context.Context, req *http.Request, entry *CacheEntry)

	// Update replaces the entry for req's key, typically after a 304
	// revalidation merges new headers onto the stored body.
	Update(ctx context.Context, req *http.Request, entry *CacheEntry)
}

// BackendStore adapts a Backend into a Store by deriving the request key
// via KeyOf and (de)serializing CacheEntry values through MarshalBinary/
// UnmarshalEntry, with an optional transparent encryption layer.
type BackendStore struct {
	backend     Backend
	gcm         cipher.AEAD
	collector   metrics.Collector
	backendName string
}

// StoreOption configures a BackendStore.
type StoreOption func(*BackendStore)

// WithEncryption derives an AES-256-GCM key from passphrase via scrypt and
// encrypts every entry before it reaches the backend, decrypting on the
// way back out. The backend sees only opaque ciphertext.
func WithEncryption(passphrase string) StoreOption {
	return func(s *BackendStore) {
		gcm, err := initEncryption(passphrase)
		if err != nil {
			GetLogger().Error("httpcache: encryption setup failed, storing entries in clear text", "error", err)
			return
		}
		s.gcm = gcm
	}
}

// WithStoreMetrics records latency and outcome for every backend Get/Set
// call through collector, labeling them with backendName (e.g. "memory",
// "redis", "leveldb") — the BackendStore-level counterpart of the
// teacher's InstrumentedCache wrapper.
func WithStoreMetrics(collector metrics.Collector, backendName string) StoreOption {
	return func(s *BackendStore) {
		s.collector = collector
		s.backendName = backendName
	}
}

// NewStore wraps backend as a Store.
func NewStore(backend Backend, opts ...StoreOption) *BackendStore {
	s := &BackendStore{backend: backend, collector: metrics.DefaultCollector}
	for _, opt := range opts {
		opt(s)
	}
	if s.collector == nil {
		s.collector = metrics.DefaultCollector
	}
	return s
}

// EncryptionEnabled reports whether entries are encrypted at rest.
func (s *BackendStore) EncryptionEnabled() bool {
	return s.gcm != nil
}

func (s *BackendStore) Fetch(ctx context.Context, req *http.Request) (*CacheEntry, bool) {
	key := KeyOf(req)
	start := time.Now()
	data, ok, err := s.backend.Get(ctx, key)
	duration := time.Since(start)
	result := resultMiss
	if err != nil {
		result = resultError
	} else if ok {
		result = resultHit
	}
	s.collector.RecordCacheOperation("get", s.backendName, result, duration)
	if err != nil {
		GetLogger().Warn("httpcache: backend get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if s.gcm != nil {
		data, err = decrypt(s.gcm, data)
		if err != nil {
			GetLogger().Warn("httpcache: entry decrypt failed, treating as miss", "key", key, "error", err)
			return nil, false
		}
	}
	entry, err := UnmarshalEntry(data)
	if err != nil {
		GetLogger().Warn("httpcache: entry decode failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return entry, true
}

func (s *BackendStore) Cache(ctx context.Context, req *http.Request, entry *CacheEntry) {
	s.put(ctx, req, entry, "cache")
}

func (s *BackendStore) Update(ctx context.Context, req *http.Request, entry *CacheEntry) {
	s.put(ctx, req, entry, "update")
}

func (s *BackendStore) put(ctx context.Context, req *http.Request, entry *CacheEntry, op string) {
	key := KeyOf(req)
	data, err := entry.MarshalBinary()
	if err != nil {
		GetLogger().Warn("httpcache: entry encode failed", "key", key, "op", op, "error", err)
		return
	}
	if s.gcm != nil {
		data, err = encrypt(s.gcm, data)
		if err != nil {
			GetLogger().Warn("httpcache: entry encrypt failed", "key", key, "op", op, "error", err)
			return
		}
	}
	start := time.Now()
	err = s.backend.Set(ctx, key, data)
	duration := time.Since(start)
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	s.collector.RecordCacheOperation("set", s.backendName, result, duration)
	if err != nil {
		GetLogger().Warn("httpcache: backend set failed", "key", key, "op", op, "error", err)
	}
}
