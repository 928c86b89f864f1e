package memstore

import (
	"testing"

	"github.com/arborcache/httpcache/internal/storetest"
)

func TestBackend(t *testing.T) {
	storetest.Exercise(t, New())
}
