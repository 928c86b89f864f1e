package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// KeyOf returns the cache key for req: the lowercase hex SHA-256 digest of
// the request URL, prefixed with the method for anything other than GET or
// HEAD. GET and HEAD share cache space, matching the convention that a HEAD
// response's headers are a subset of the corresponding GET's.
//
// KeyOf is pure, total, and never errors; it is the natural extension
// point for callers who want a different fingerprint (varying on a header,
// say) — wrap a Store and recompute the key before delegating.
func KeyOf(req *http.Request) string {
	h := sha256.New()
	method := req.Method
	if method != "" && method != http.MethodGet && method != http.MethodHead {
		h.Write([]byte(method))
		h.Write([]byte(" "))
	}
	h.Write([]byte(req.URL.String()))
	return hex.EncodeToString(h.Sum(nil))
}
