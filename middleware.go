package httpcache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RevalidationMarker is set on requests the middleware issues for its own
// background stale-while-revalidate fetches. If RoundTrip sees it on an
// incoming request it strips it and completes the revalidation directly,
// rather than treating the request as ordinary cacheable traffic — this is
// what keeps a shared http.Client safe to reuse for background fetches
// without an infinite recursion back into the decision algorithm.
const RevalidationMarker = "X-Cache-Revalidation"

const (
	tagHit   = "HIT"
	tagMiss  = "MISS"
	tagStale = "STALE"
)

// cacheableStatuses are the response statuses this cache will store.
// Anything else — including all 5xx — is served through but never
// persisted; a 5xx can still be masked by stale-if-error, but it is never
// itself the thing that ends up in the store.
var cacheableStatuses = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusNoContent:            true,
	http.StatusPartialContent:       true,
	http.StatusMultipleChoices:      true,
	http.StatusMovedPermanently:     true,
	http.StatusNotFound:             true,
	http.StatusMethodNotAllowed:     true,
	http.StatusGone:                 true,
}

func cacheableStatus(code int) bool { return cacheableStatuses[code] }

// Middleware is an http.RoundTripper that interposes a cache between a
// client and next. Construct with New.
type Middleware struct {
	next  http.RoundTripper
	store Store
	opts  Options

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a Middleware wrapping next with store. A nil next defaults to
// http.DefaultTransport.
func New(next http.RoundTripper, store Store, opts ...Option) *Middleware {
	if next == nil {
		next = http.DefaultTransport
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Middleware{next: next, store: store, opts: o}
}

// Close waits for any in-flight background revalidations to finish and
// refuses to start new ones afterward. It does not close next.
func (m *Middleware) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

// RoundTrip implements http.RoundTripper.
func (m *Middleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if !m.opts.Enabled {
		return m.next.RoundTrip(req)
	}

	start := time.Now()
	resp, tag, err := m.decide(req)
	if resp != nil {
		resp.Request = req
	}
	if m.opts.Collector != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		m.opts.Collector.RecordHTTPRequest(req.Method, strings.ToLower(tag), status, time.Since(start))
		if tag == tagStale {
			m.opts.Collector.RecordStaleResponse("stale-serve")
		}
	}
	if err == nil && resp != nil && m.opts.Debug && tag != "" {
		resp.Header.Set(m.opts.DebugHeader, tag)
	}
	return resp, err
}

// decide runs the cache decision algorithm for a single request. tag is
// "" for requests that bypass tagging entirely (background revalidation
// completions, only-if-cached misses); requests whose method is not
// eligible are tagged MISS.
func (m *Middleware) decide(req *http.Request) (*http.Response, string, error) {
	if !m.opts.Methods[strings.ToUpper(req.Method)] {
		resp, err := m.next.RoundTrip(req)
		if err != nil {
			return nil, "", err
		}
		return resp, tagMiss, nil
	}

	if req.Header.Get(RevalidationMarker) != "" {
		resp := m.completeBackgroundRevalidation(req)
		return resp, "", nil
	}

	now := time.Now().UTC()
	rd := parseRequestDirectives(req.Header)
	ctx := req.Context()

	entry, hasEntry := m.store.Fetch(ctx, req)

	if hasEntry {
		if m.servableFresh(entry, rd, now) {
			return entry.Response(), tagHit, nil
		}
		if rd.acceptStale && (!rd.maxStaleSet || entry.StaleAge(now) <= rd.maxStale) {
			return entry.Response(), tagHit, nil
		}
		if !rd.onlyIfCached && entry.HasValidators() && entry.StaleWhileRevalidateOK(now) {
			m.revalidateAsync(conditionalRequest(req, entry))
			return entry.Response(), tagStale, nil
		}
		if !rd.onlyIfCached && entry.HasValidators() {
			req = conditionalRequest(req, entry)
		}
	}

	if !hasEntry && rd.onlyIfCached {
		return gatewayTimeoutResponse(req), "", nil
	}

	requestTime := time.Now().UTC()
	resp, err := m.next.RoundTrip(req)
	if err != nil {
		if hasEntry && entry.ServeStaleIfError(now) {
			return entry.Response(), tagStale, nil
		}
		return nil, "", err
	}

	out, tag := m.handleResponse(ctx, req, resp, entry, hasEntry, now, requestTime)
	return out, tag, nil
}

// servableFresh reports whether a fresh entry satisfies both its own
// freshness and the request's min-fresh requirement, if any.
func (m *Middleware) servableFresh(entry *CacheEntry, rd requestDirectives, now time.Time) bool {
	if !entry.IsFresh(now) {
		return false
	}
	if !rd.minFreshSet {
		return true
	}
	return entry.FreshnessLifetime-entry.Age(now) >= rd.minFresh
}

// handleResponse processes a genuine upstream response against an
// optional prior entry: stale-if-error on 5xx, 304 merge, or a plain
// fresh fetch to persist.
func (m *Middleware) handleResponse(ctx context.Context, req *http.Request, resp *http.Response, entry *CacheEntry, hasEntry bool, now, requestTime time.Time) (*http.Response, string) {
	if resp.StatusCode >= 500 && hasEntry && entry.ServeStaleIfError(now) {
		drainAndClose(resp.Body)
		return entry.Response(), tagStale
	}

	if resp.StatusCode == http.StatusNotModified && hasEntry {
		drainAndClose(resp.Body)
		merged := mergeNotModified(entry, resp, m.opts.DebugHeader)
		m.storeRevalidated(ctx, req, entry, merged, requestTime, now)
		return merged, tagHit
	}

	responseTime := time.Now().UTC()
	return m.cacheNewResponse(ctx, req, resp, requestTime, responseTime), tagMiss
}

// storeRevalidated builds a CacheEntry from a 304-merged response (reusing
// the stored body) and persists it via Store.Update. requestTime is the
// round-trip time of the revalidation request itself, not the original
// entry's — reusing the old timestamp would permanently inflate Age by
// however long the prior entry had already been cached.
func (m *Middleware) storeRevalidated(ctx context.Context, req *http.Request, entry *CacheEntry, merged *http.Response, requestTime, now time.Time) {
	copyResp := &http.Response{
		StatusCode: merged.StatusCode,
		Header:     merged.Header.Clone(),
		Body:       entry.bodyClone(),
	}
	newEntry, err := NewEntry(copyResp, requestTime, now)
	if err != nil {
		if !errors.Is(err, ErrNoStore) {
			GetLogger().Warn("httpcache: failed to rebuild entry after revalidation", "error", err)
		}
		return
	}
	m.store.Update(ctx, req, newEntry)
}

// cacheNewResponse persists resp as a new entry if its status is
// cacheable, returning resp (with its body replaced by a rewindable one)
// either way.
func (m *Middleware) cacheNewResponse(ctx context.Context, req *http.Request, resp *http.Response, requestTime, responseTime time.Time) *http.Response {
	if !cacheableStatus(resp.StatusCode) {
		return resp
	}
	newEntry, err := NewEntry(resp, requestTime, responseTime)
	if err != nil {
		if !errors.Is(err, ErrNoStore) {
			GetLogger().Warn("httpcache: failed to materialize response for caching", "error", err)
		}
		return resp
	}
	m.store.Cache(ctx, req, newEntry)
	return resp
}

// revalidateAsync issues condReq (already carrying validators) in the
// background, tagged with RevalidationMarker so a re-entrant RoundTrip
// completes it rather than re-applying the decision algorithm.
func (m *Middleware) revalidateAsync(condReq *http.Request) {
	condReq.Header.Set(RevalidationMarker, "1")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		resp, err := m.RoundTrip(condReq)
		if err != nil {
			GetLogger().Debug("httpcache: background revalidation failed", "url", condReq.URL.String(), "error", err)
			return
		}
		if resp != nil {
			drainAndClose(resp.Body)
		}
	}()
}

// completeBackgroundRevalidation performs the upstream fetch and store for
// a marker-tagged request, swallowing any failure per the background
// revalidation contract: a failed revalidation simply leaves the existing
// stale entry in place for next time.
func (m *Middleware) completeBackgroundRevalidation(req *http.Request) *http.Response {
	stripped := req.Clone(req.Context())
	stripped.Header.Del(RevalidationMarker)
	ctx := stripped.Context()

	entry, hasEntry := m.store.Fetch(ctx, stripped)
	requestTime := time.Now().UTC()
	resp, err := m.next.RoundTrip(stripped)
	if err != nil {
		GetLogger().Debug("httpcache: background revalidation upstream call failed", "error", err)
		return nil
	}
	now := time.Now().UTC()

	if resp.StatusCode == http.StatusNotModified && hasEntry {
		drainAndClose(resp.Body)
		merged := mergeNotModified(entry, resp, m.opts.DebugHeader)
		m.storeRevalidated(ctx, stripped, entry, merged, requestTime, now)
		return merged
	}

	return m.cacheNewResponse(ctx, stripped, resp, requestTime, now)
}

var _ http.RoundTripper = (*Middleware)(nil)
