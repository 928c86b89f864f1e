// Package compresscache wraps an httpcache.Backend with transparent entry
// compression, trading CPU for storage and network bandwidth. Gzip,
// Brotli, and Snappy are supported; whichever algorithm wrote an entry is
// recorded in a one-byte marker, so a Backend can always decompress an
// entry even after its configured algorithm changes.
package compresscache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/arborcache/httpcache"
)

// Algorithm selects a compression codec.
type Algorithm int

const (
	// Gzip offers a good balance of ratio and speed.
	Gzip Algorithm = iota
	// Brotli gives the best ratio, at the cost of speed.
	Brotli
	// Snappy is the fastest, with the lowest ratio.
	Snappy
)

func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Stats holds running compression statistics for a Backend.
type Stats struct {
	CompressedBytes   int64
	UncompressedBytes int64
	CompressedCount   int64
	UncompressedCount int64
	CompressionRatio  float64
	SavingsPercent    float64
}

type compressFunc func([]byte) ([]byte, error)
type decompressFunc func([]byte) ([]byte, error)

// Backend wraps next, compressing every value written through Set and
// transparently decompressing on Get regardless of which supported
// algorithm produced it.
type Backend struct {
	next       httpcache.Backend
	algorithm  Algorithm
	compress   compressFunc
	decompress map[Algorithm]decompressFunc

	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

func newBackend(next httpcache.Backend, algorithm Algorithm, compress compressFunc) *Backend {
	b := &Backend{next: next, algorithm: algorithm, compress: compress}
	b.decompress = map[Algorithm]decompressFunc{
		Gzip:   gzipDecompress,
		Brotli: brotliDecompress,
		Snappy: snappyDecompress,
	}
	return b
}

// NewGzip wraps next with Gzip compression at level (use
// gzip.DefaultCompression for the package default). A level of 0 also
// selects the default, so gzip.NoCompression is not available.
func NewGzip(next httpcache.Backend, level int) (*Backend, error) {
	if level == 0 {
		level = gzipDefaultLevel
	}
	if level < gzipMinLevel || level > gzipMaxLevel {
		return nil, fmt.Errorf("compresscache: invalid gzip level %d", level)
	}
	return newBackend(next, Gzip, gzipCompressor(level)), nil
}

// NewBrotli wraps next with Brotli compression at level (1-11). A level of
// 0 selects the default level 6.
func NewBrotli(next httpcache.Backend, level int) (*Backend, error) {
	if level == 0 {
		level = 6
	}
	if level < 0 || level > 11 {
		return nil, fmt.Errorf("compresscache: invalid brotli level %d", level)
	}
	return newBackend(next, Brotli, brotliCompressor(level)), nil
}

// NewSnappy wraps next with Snappy compression.
func NewSnappy(next httpcache.Backend) *Backend {
	return newBackend(next, Snappy, snappyCompress)
}

// marker byte: 0 means stored uncompressed (compression failed), otherwise
// Algorithm+1.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := b.next.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(data) == 0 {
		return data, true, nil
	}
	marker := data[0]
	if marker == 0 {
		return data[1:], true, nil
	}
	algo := Algorithm(marker - 1)
	decompressFn, ok := b.decompress[algo]
	if !ok {
		return nil, false, fmt.Errorf("compresscache: unknown algorithm marker %d for key %q", marker, key)
	}
	out, err := decompressFn(data[1:])
	if err != nil {
		return nil, false, fmt.Errorf("compresscache: decompress failed for key %q: %w", key, err)
	}
	return out, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	compressed, err := b.compress(value)
	if err != nil {
		httpcache.GetLogger().Warn("compresscache: compression failed, storing uncompressed", "key", key, "algorithm", b.algorithm, "error", err)
		data := make([]byte, len(value)+1)
		data[0] = 0
		copy(data[1:], value)
		b.uncompressedCount.Add(1)
		b.uncompressedBytes.Add(int64(len(value)))
		return b.next.Set(ctx, key, data)
	}

	data := make([]byte, len(compressed)+1)
	data[0] = byte(b.algorithm + 1)
	copy(data[1:], compressed)

	b.compressedCount.Add(1)
	b.compressedBytes.Add(int64(len(compressed)))
	b.uncompressedBytes.Add(int64(len(value)))
	return b.next.Set(ctx, key, data)
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.next.Delete(ctx, key)
}

// Stats returns a snapshot of the running compression statistics.
func (b *Backend) Stats() Stats {
	compressed := b.compressedBytes.Load()
	uncompressed := b.uncompressedBytes.Load()

	var ratio, savings float64
	if uncompressed > 0 {
		ratio = float64(compressed) / float64(uncompressed)
		savings = (1.0 - ratio) * 100
	}

	return Stats{
		CompressedBytes:   compressed,
		UncompressedBytes: uncompressed,
		CompressedCount:   b.compressedCount.Load(),
		UncompressedCount: b.uncompressedCount.Load(),
		CompressionRatio:  ratio,
		SavingsPercent:    savings,
	}
}

var _ httpcache.Backend = (*Backend)(nil)
