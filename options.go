package httpcache

import (
	"net/http"
	"strings"

	"github.com/arborcache/httpcache/metrics"
)

// Options configures a Middleware. Use the With... functions with New
// rather than constructing Options directly.
type Options struct {
	Enabled     bool
	Methods     map[string]bool
	Debug       bool
	DebugHeader string
	Collector   metrics.Collector
}

func defaultOptions() Options {
	return Options{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		DebugHeader: "X-Cache-Status",
	}
}

// Option configures a Middleware at construction time.
type Option func(*Options)

// WithEnabled turns caching on or off. When disabled, RoundTrip delegates
// straight to the next handler with no observable change to the request
// or response.
func WithEnabled(enabled bool) Option {
	return func(o *Options) { o.Enabled = enabled }
}

// WithMethods sets the HTTP methods the middleware will attempt to serve
// from or populate the cache for. Methods outside this set are always
// forwarded to the next handler untouched (tagged MISS when debug headers
// are on).
func WithMethods(methods ...string) Option {
	return func(o *Options) {
		set := make(map[string]bool, len(methods))
		for _, m := range methods {
			set[strings.ToUpper(m)] = true
		}
		o.Methods = set
	}
}

// WithDebug turns on the debug header, optionally overriding its name.
// An empty header leaves the default ("X-Cache-Status").
func WithDebug(header string) Option {
	return func(o *Options) {
		o.Debug = true
		if header != "" {
			o.DebugHeader = header
		}
	}
}

// WithCollector wires a metrics.Collector to receive cache decision and
// HTTP request observations.
func WithCollector(c metrics.Collector) Option {
	return func(o *Options) { o.Collector = c }
}
