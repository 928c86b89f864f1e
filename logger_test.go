// Package httpcache provides a http.RoundTripper implementation that works as a
// mostly RFC 9111 compliant cache for HTTP responses.
package httpcache

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arborcache/httpcache/store/memstore"
)

func TestGetLoggerDefault(t *testing.T) {
	SetLogger(nil)
	if GetLogger() == nil {
		t.Fatal("GetLogger should never return nil")
	}
}

func TestSetLogger(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(nil, nil))
	SetLogger(custom)
	defer SetLogger(nil)

	if GetLogger() != custom {
		t.Error("GetLogger should return the logger set via SetLogger")
	}
}

// TestMiddlewareRequestsWithDefaultLogger runs two requests through the
// middleware after the custom logger has been reset, and checks that
// neither request fails.
func TestMiddlewareRequestsWithDefaultLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	}))
	defer server.Close()

	store := NewStore(memstore.New())
	mw := New(nil, store)
	client := &http.Client{Transport: mw}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	resp2, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error on second request: %v", err)
	}
	defer resp2.Body.Close()
}
