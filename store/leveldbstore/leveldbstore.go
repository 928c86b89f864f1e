// Package leveldbstore provides an httpcache.Backend backed by an
// embedded github.com/syndtr/goleveldb database.
package leveldbstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Backend is an httpcache.Backend backed by a LevelDB database.
type Backend struct {
	db *leveldb.DB
}

// New opens (creating if necessary) a LevelDB database at path.
func New(path string) (*Backend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldbstore: open failed: %w", err)
	}
	return &Backend{db: db}, nil
}

// NewWithDB returns a Backend using an already-open database.
func NewWithDB(db *leveldb.DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := b.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("leveldbstore: get failed for key %q: %w", key, err)
	}
	return data, true, nil
}

func (b *Backend) Set(_ context.Context, key string, data []byte) error {
	if err := b.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("leveldbstore: set failed for key %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	if err := b.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldbstore: delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (b *Backend) Close() error {
	return b.db.Close()
}
