//go:build integration

package mongostore

import (
	"context"
	"testing"

	"github.com/arborcache/httpcache/internal/storetest"
)

// TestBackendIntegration exercises Backend against a live MongoDB
// instance. Run with: go test -tags=integration ./store/mongostore/...
func TestBackendIntegration(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, Config{URI: "mongodb://localhost:27017", Database: "httpcache_test"})
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	defer b.Close()
	storetest.Exercise(t, b)
}
