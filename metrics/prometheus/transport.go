package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arborcache/httpcache"
	"github.com/arborcache/httpcache/metrics"
)

// InstrumentedTransport wraps an httpcache.Middleware with Prometheus
// metrics, recording request outcomes. The cache status label is read from
// the middleware's debug header when one is configured.
type InstrumentedTransport struct {
	underlying  *httpcache.Middleware
	collector   metrics.Collector
	debugHeader string
}

// NewInstrumentedTransport creates a new instrumented transport that
// records metrics for all HTTP requests.
//
// Parameters:
//   - middleware: the underlying httpcache.Middleware to wrap
//   - debugHeader: the debug header name middleware was configured with
//     (pass "" if debug headers are off; cache status then falls back to
//     reading the response status code only)
//   - collector: the metrics collector (if nil, uses metrics.DefaultCollector)
func NewInstrumentedTransport(middleware *httpcache.Middleware, debugHeader string, collector metrics.Collector) *InstrumentedTransport {
	if collector == nil {
		collector = metrics.DefaultCollector
	}
	return &InstrumentedTransport{underlying: middleware, collector: collector, debugHeader: debugHeader}
}

// RoundTrip executes an HTTP request with metrics recording.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.underlying.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		return resp, err
	}

	cacheStatus := "miss"
	if t.debugHeader != "" {
		if v := resp.Header.Get(t.debugHeader); v != "" {
			cacheStatus = strings.ToLower(v)
		}
	} else if resp.StatusCode == http.StatusNotModified {
		cacheStatus = "revalidated"
	}

	t.collector.RecordHTTPRequest(req.Method, cacheStatus, resp.StatusCode, duration)

	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
			t.collector.RecordHTTPResponseSize(cacheStatus, size)
		}
	}

	return resp, nil
}

// Client returns an HTTP client with instrumented transport.
func (t *InstrumentedTransport) Client() *http.Client {
	return &http.Client{Transport: t}
}

var _ http.RoundTripper = (*InstrumentedTransport)(nil)
