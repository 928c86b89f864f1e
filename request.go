package httpcache

import (
	"bytes"
	"io"
	"net/http"
)

// conditionalRequest returns req, or a clone of it carrying If-None-Match/
// If-Modified-Since validators from entry, if entry has any the request
// doesn't already carry.
func conditionalRequest(req *http.Request, entry *CacheEntry) *http.Request {
	if entry == nil || (entry.ETag == "" && entry.LastModified == "") {
		return req
	}
	if req.Header.Get("If-None-Match") != "" || req.Header.Get("If-Modified-Since") != "" {
		return req
	}
	clone := req.Clone(req.Context())
	if entry.ETag != "" {
		clone.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		clone.Header.Set("If-Modified-Since", entry.LastModified)
	}
	return clone
}

// mergeNotModified builds the response returned to the caller for a 304:
// the stored entry's status and body, the fresh response's headers, with
// any header present on the stored entry but absent from the fresh
// response (and not the debug header) copied across, per RFC 7234 §4.3.4.
func mergeNotModified(entry *CacheEntry, fresh *http.Response, debugHeader string) *http.Response {
	header := fresh.Header.Clone()
	for name, values := range entry.Header {
		if header.Get(name) != "" {
			continue
		}
		if debugHeader != "" && http.CanonicalHeaderKey(name) == http.CanonicalHeaderKey(debugHeader) {
			continue
		}
		header[name] = append([]string(nil), values...)
	}
	body := entry.bodyClone()
	return &http.Response{
		Status:        http.StatusText(entry.Status),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          body,
		ContentLength: int64(len(body.ReadAll())),
	}
}

// gatewayTimeoutResponse synthesizes the response for an only-if-cached
// request that missed: a 504, never forwarded upstream.
func gatewayTimeoutResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        "504 Gateway Timeout",
		StatusCode:    http.StatusGatewayTimeout,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(nil)),
		ContentLength: 0,
		Request:       req,
	}
}

// drainAndClose discards and closes a response body that will never reach
// a caller, so the underlying connection can be reused.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
