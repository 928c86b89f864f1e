// Package diskstore provides an httpcache.Backend backed by diskv, which
// supplements an in-memory index with persistent on-disk storage.
package diskstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/peterbourgon/diskv"
)

// Backend is an httpcache.Backend that stores entries as files under a
// base directory.
type Backend struct {
	d *diskv.Diskv
}

// New returns a Backend rooted at basePath, with an in-memory cache of up
// to 100MB of recently-used entries.
func New(basePath string) *Backend {
	return &Backend{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 100 * 1024 * 1024,
	})}
}

// NewWithDiskv returns a Backend using an already-configured diskv.Diskv.
func NewWithDiskv(d *diskv.Diskv) *Backend {
	return &Backend{d: d}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := b.d.Read(keyToFilename(key))
	if err != nil {
		return nil, false, nil
	}
	return data, true, nil
}

func (b *Backend) Set(_ context.Context, key string, data []byte) error {
	if err := b.d.WriteStream(keyToFilename(key), bytes.NewReader(data), true); err != nil {
		return fmt.Errorf("diskstore: set failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	// diskv.Erase errors on a missing key; deleting an absent entry is not
	// a failure for a Backend.
	_ = b.d.Erase(keyToFilename(key))
	return nil
}

// keyToFilename maps an arbitrary cache key to a filesystem-safe name.
func keyToFilename(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
