package httpcache

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arborcache/httpcache/store/memstore"
)

func newTestClient(server *httptest.Server, opts ...Option) (*http.Client, *Middleware) {
	mw := New(nil, NewStore(memstore.New()), opts...)
	return &http.Client{Transport: mw}, mw
}

func readAndClose(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return string(body)
}

// TestFreshHit covers the common case: a cacheable response is served from
// the cache on a subsequent request without hitting the origin again.
func TestFreshHit(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fresh body")) //nolint:errcheck
	}))
	defer server.Close()

	client, _ := newTestClient(server, WithDebug(""))

	resp1, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if got := readAndClose(t, resp1); got != "fresh body" {
		t.Fatalf("unexpected body: %q", got)
	}
	if tag := resp1.Header.Get("X-Cache-Status"); tag != tagMiss {
		t.Fatalf("expected MISS on first request, got %q", tag)
	}

	resp2, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if got := readAndClose(t, resp2); got != "fresh body" {
		t.Fatalf("unexpected body on hit: %q", got)
	}
	if tag := resp2.Header.Get("X-Cache-Status"); tag != tagHit {
		t.Fatalf("expected HIT on second request, got %q", tag)
	}

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly 1 origin request, got %d", hits)
	}
}

// TestMissThenPopulate covers an uncacheable-then-cacheable sequence across
// two distinct URLs sharing one middleware, confirming a miss does not
// poison the store and a later cacheable response does get stored.
func TestMissThenPopulate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nocache" {
			w.Header().Set("Cache-Control", "no-store")
		} else {
			w.Header().Set("Cache-Control", "max-age=60")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("body:" + r.URL.Path)) //nolint:errcheck
	}))
	defer server.Close()

	client, _ := newTestClient(server, WithDebug(""))

	r1, _ := client.Get(server.URL + "/nocache")
	readAndClose(t, r1)
	r2, _ := client.Get(server.URL + "/nocache")
	if tag := r2.Header.Get("X-Cache-Status"); tag != tagMiss {
		t.Fatalf("no-store response must never be served as a hit, got %q", tag)
	}
	readAndClose(t, r2)

	r3, _ := client.Get(server.URL + "/cacheable")
	readAndClose(t, r3)
	r4, _ := client.Get(server.URL + "/cacheable")
	if tag := r4.Header.Get("X-Cache-Status"); tag != tagHit {
		t.Fatalf("expected HIT for cacheable path, got %q", tag)
	}
	readAndClose(t, r4)
}

// TestConditionalRevalidation covers a 304-driven merge: the stored body is
// reused and fresh headers from the 304 are layered on top.
func TestConditionalRevalidation(t *testing.T) {
	etag := `"v1"`
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if inm := r.Header.Get("If-None-Match"); inm == etag {
			w.Header().Set("ETag", etag)
			w.Header().Set("X-Revalidated", "yes")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "max-age=0")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("original body")) //nolint:errcheck
	}))
	defer server.Close()

	client, _ := newTestClient(server, WithDebug(""))

	resp1, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	readAndClose(t, resp1)

	resp2, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	body2 := readAndClose(t, resp2)
	if body2 != "original body" {
		t.Fatalf("expected stored body reused on 304 merge, got %q", body2)
	}
	if resp2.Header.Get("X-Revalidated") != "yes" {
		t.Fatal("expected fresh headers from the 304 to be merged in")
	}
	if tag := resp2.Header.Get("X-Cache-Status"); tag != tagHit {
		t.Fatalf("expected HIT for a 304 merge, got %q", tag)
	}

	if atomic.LoadInt32(&requests) != 2 {
		t.Fatalf("expected 2 origin requests (initial + conditional), got %d", requests)
	}
}

// TestStaleWhileRevalidate covers serving a stale entry immediately while a
// background revalidation updates the store, without blocking the caller.
func TestStaleWhileRevalidate(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "max-age=0, stale-while-revalidate=60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(fmt.Sprintf("body-%d", n))) //nolint:errcheck
	}))
	defer server.Close()

	client, mw := newTestClient(server, WithDebug(""))

	resp1, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	body1 := readAndClose(t, resp1)
	if body1 != "body-1" {
		t.Fatalf("unexpected first body: %q", body1)
	}

	time.Sleep(5 * time.Millisecond)

	resp2, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	body2 := readAndClose(t, resp2)
	if body2 != "body-1" {
		t.Fatalf("expected the stale body to be served immediately, got %q", body2)
	}
	if tag := resp2.Header.Get("X-Cache-Status"); tag != tagStale {
		t.Fatalf("expected STALE tag while revalidating, got %q", tag)
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if atomic.LoadInt32(&requests) < 2 {
		t.Fatalf("expected the background revalidation to reach the origin, got %d requests", requests)
	}
}

// TestOnlyIfCachedMiss covers the only-if-cached contract: a miss must
// become a synthesized 504, never an outbound request.
func TestOnlyIfCachedMiss(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newTestClient(server)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Cache-Control", "only-if-cached")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&requests) != 0 {
		t.Fatal("only-if-cached must never reach the origin on a miss")
	}
}

// TestStaleOnError covers serving a stale entry when the origin starts
// failing, as long as stale-if-error allows it.
func TestStaleOnError(t *testing.T) {
	var failing int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&failing) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "max-age=0, stale-if-error=3600")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("good body")) //nolint:errcheck
	}))
	defer server.Close()

	client, _ := newTestClient(server, WithDebug(""))

	resp1, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	readAndClose(t, resp1)

	atomic.StoreInt32(&failing, 1)

	resp2, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	body2 := readAndClose(t, resp2)
	if body2 != "good body" {
		t.Fatalf("expected the stale entry to mask the 500, got %q", body2)
	}
	if tag := resp2.Header.Get("X-Cache-Status"); tag != tagStale {
		t.Fatalf("expected STALE tag for stale-if-error fallback, got %q", tag)
	}
}

// TestMiddlewareDisabled confirms WithEnabled(false) is a transparent
// passthrough with no observable caching behavior.
func TestMiddlewareDisabled(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("body")) //nolint:errcheck
	}))
	defer server.Close()

	client, _ := newTestClient(server, WithEnabled(false))

	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		readAndClose(t, resp)
	}

	if atomic.LoadInt32(&requests) != 3 {
		t.Fatalf("expected every request to reach the origin when disabled, got %d", requests)
	}
}
