package httpcache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/arborcache/httpcache/internal/rewind"
)

// ErrNoStore is returned by NewEntry when the response forbids storage
// (Cache-Control: no-store). Callers should treat it as "do not cache",
// never as a hard failure.
var ErrNoStore = errors.New("httpcache: response is not cacheable (no-store)")

// internal headers used to round-trip entry metadata that doesn't live in
// the wire-visible response (request/response timestamps). They are
// stripped before a CacheEntry's Response() is handed back to a caller.
const (
	headerRequestTime  = "X-Httpcache-Request-Time"
	headerResponseTime = "X-Httpcache-Response-Time"
)

// CacheEntry wraps a stored response with the freshness metadata the
// decision algorithm needs, so that isn't recomputed from headers on every
// access.
type CacheEntry struct {
	Status int
	Header http.Header
	body   *rewind.Body

	RequestTime  time.Time
	ResponseTime time.Time

	FreshnessLifetime time.Duration

	ETag         string
	LastModified string

	StaleWhileRevalidate    time.Duration
	staleWhileRevalidateSet bool

	StaleIfError    time.Duration
	staleIfErrorSet bool

	MustRevalidate bool
	NoCache        bool
}

// NewEntry builds a CacheEntry from a response and the timestamps
// surrounding the request that produced it. It materializes resp.Body into
// a rewindable buffer and reassigns resp.Body to it, so the caller's
// response remains fully readable after the entry is built.
//
// NewEntry returns ErrNoStore (never persisted, never a hard error) when
// the response carries Cache-Control: no-store.
func NewEntry(resp *http.Response, requestTime, responseTime time.Time) (*CacheEntry, error) {
	if responseTime.Before(requestTime) {
		responseTime = requestTime
	}
	body, err := rewind.EnsureSeekable(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpcache: materialize response body: %w", err)
	}
	resp.Body = body

	dirs := parseResponseDirectives(resp.Header)
	if dirs.noStore {
		return nil, ErrNoStore
	}

	e := &CacheEntry{
		Status:       resp.StatusCode,
		Header:       resp.Header.Clone(),
		body:         body,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
	}
	e.applyDirectives(dirs)
	return e, nil
}

func (e *CacheEntry) applyDirectives(dirs responseDirectives) {
	e.ETag = e.Header.Get("ETag")
	e.LastModified = e.Header.Get("Last-Modified")
	e.MustRevalidate = dirs.mustRevalidate
	e.NoCache = dirs.noCache

	switch {
	case dirs.maxAgeSet:
		e.FreshnessLifetime = dirs.maxAge
	case e.Header.Get("Expires") != "":
		if exp, err := http.ParseTime(e.Header.Get("Expires")); err == nil {
			date := e.ResponseTime
			if d := e.Header.Get("Date"); d != "" {
				if parsed, err := http.ParseTime(d); err == nil {
					date = parsed
				}
			}
			if lifetime := exp.Sub(date); lifetime > 0 {
				e.FreshnessLifetime = lifetime
			}
		}
	}

	if dirs.staleWhileRevalidateSet {
		e.StaleWhileRevalidate = dirs.staleWhileRevalidate
		e.staleWhileRevalidateSet = true
	}
	if dirs.staleIfErrorSet {
		e.StaleIfError = dirs.staleIfError
		e.staleIfErrorSet = true
	}
}

// Age returns the entry's current age per RFC 7234 §4.2.3, simplified to
// the two terms that matter for a private client-side cache: the time
// spent travelling to us plus the time since we received it.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	transit := e.ResponseTime.Sub(e.RequestTime)
	if transit < 0 {
		transit = 0
	}
	resident := now.Sub(e.ResponseTime)
	if resident < 0 {
		resident = 0
	}
	return transit + resident
}

// IsFresh reports whether the entry can be served without revalidation.
func (e *CacheEntry) IsFresh(now time.Time) bool {
	return e.Age(now) < e.FreshnessLifetime
}

// StaleAge returns how far past its freshness lifetime the entry is. It is
// negative while the entry is still fresh.
func (e *CacheEntry) StaleAge(now time.Time) time.Duration {
	return e.Age(now) - e.FreshnessLifetime
}

// HasValidators reports whether the entry carries an ETag or Last-Modified
// that a conditional request can use.
func (e *CacheEntry) HasValidators() bool {
	return e.ETag != "" || e.LastModified != ""
}

// StaleWhileRevalidateOK reports whether a stale entry may be served
// immediately while a background revalidation runs.
func (e *CacheEntry) StaleWhileRevalidateOK(now time.Time) bool {
	if !e.staleWhileRevalidateSet {
		return false
	}
	return e.StaleAge(now) <= e.StaleWhileRevalidate
}

// ServeStaleIfError reports whether a stale entry may be served in place
// of a transport failure or 5xx response.
func (e *CacheEntry) ServeStaleIfError(now time.Time) bool {
	if !e.staleIfErrorSet {
		return false
	}
	return e.StaleAge(now) <= e.StaleIfError
}

// Response returns a *http.Response reconstructed from the entry, with a
// fresh, independently-readable body. The Request field is left nil; the
// decision algorithm fills it in before handing the response to a caller.
func (e *CacheEntry) Response() *http.Response {
	header := e.Header.Clone()
	body := e.body.Clone()
	return &http.Response{
		Status:        http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          body,
		ContentLength: int64(len(body.ReadAll())),
	}
}

// bodyClone returns an independent reader over the entry's stored body,
// for callers within the package that need to build a new CacheEntry from
// the same bytes without disturbing this one.
func (e *CacheEntry) bodyClone() *rewind.Body {
	return e.body.Clone()
}

// MarshalBinary serializes the entry to a raw HTTP/1.1 response, the way
// httputil.DumpResponse renders one, with the request/response timestamps
// stashed as extra headers. This keeps the wire format a plain HTTP
// message rather than a bespoke encoding, and any backend that round-trips
// bytes opaquely (disk, redis, memcache, ...) needs nothing more.
func (e *CacheEntry) MarshalBinary() ([]byte, error) {
	header := e.Header.Clone()
	header.Set(headerRequestTime, e.RequestTime.UTC().Format(time.RFC3339Nano))
	header.Set(headerResponseTime, e.ResponseTime.UTC().Format(time.RFC3339Nano))
	resp := &http.Response{
		Status:     http.StatusText(e.Status),
		StatusCode: e.Status,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       e.body.Clone(),
	}
	return httputil.DumpResponse(resp, true)
}

// UnmarshalEntry rebuilds a CacheEntry from bytes produced by
// MarshalBinary.
func UnmarshalEntry(data []byte) (*CacheEntry, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("httpcache: decode stored entry: %w", err)
	}
	body, err := rewind.EnsureSeekable(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpcache: decode stored entry body: %w", err)
	}

	requestTime, _ := time.Parse(time.RFC3339Nano, resp.Header.Get(headerRequestTime))
	responseTime, _ := time.Parse(time.RFC3339Nano, resp.Header.Get(headerResponseTime))
	header := resp.Header.Clone()
	header.Del(headerRequestTime)
	header.Del(headerResponseTime)

	e := &CacheEntry{
		Status:       resp.StatusCode,
		Header:       header,
		body:         body,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
	}
	e.applyDirectives(parseResponseDirectives(header))
	return e, nil
}
