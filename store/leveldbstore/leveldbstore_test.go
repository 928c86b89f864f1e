package leveldbstore

import (
	"path/filepath"
	"testing"

	"github.com/arborcache/httpcache/internal/storetest"
)

func TestBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	storetest.Exercise(t, b)
}
