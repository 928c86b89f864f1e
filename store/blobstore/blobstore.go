// Package blobstore provides a cloud-agnostic httpcache.Backend on top of
// Go Cloud Development Kit blob storage, supporting Amazon S3, Google
// Cloud Storage, Azure Blob Storage, local filesystem and in-memory
// buckets through the same API — the provider is selected by the bucket
// URL's scheme and a blank import of the matching driver package, e.g.:
//
//	import _ "gocloud.dev/blob/s3blob"
//
//	b, err := blobstore.New(ctx, blobstore.Config{BucketURL: "s3://my-bucket?region=us-west-2"})
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Config holds the configuration for a blob-backed Backend.
type Config struct {
	// BucketURL is the Go Cloud blob URL, e.g. "s3://bucket?region=us-west-2".
	BucketURL string
	// KeyPrefix is prepended to every blob key. Optional, defaults to
	// "cache/".
	KeyPrefix string
	// Timeout bounds every blob operation when ctx carries no deadline.
	// Optional, defaults to 30s.
	Timeout time.Duration
	// Bucket is an optional pre-opened bucket; when set, BucketURL is
	// ignored and the Backend does not own (and will not close) it.
	Bucket *blob.Bucket
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "cache/"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Backend is an httpcache.Backend backed by a gocloud.dev/blob bucket.
type Backend struct {
	bucket    *blob.Bucket
	keyPrefix string
	timeout   time.Duration
	owns      bool
}

// New opens the bucket named by config.BucketURL (or uses config.Bucket if
// set) and returns a Backend.
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.BucketURL == "" && config.Bucket == nil {
		return nil, fmt.Errorf("blobstore: either BucketURL or Bucket must be provided")
	}
	config = config.withDefaults()

	if config.Bucket != nil {
		return &Backend{bucket: config.Bucket, keyPrefix: config.KeyPrefix, timeout: config.Timeout}, nil
	}

	bucket, err := blob.OpenBucket(ctx, config.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to open bucket: %w", err)
	}
	return &Backend{bucket: bucket, keyPrefix: config.KeyPrefix, timeout: config.Timeout, owns: true}, nil
}

// NewWithBucket returns a Backend using an already-opened bucket, which
// the caller remains responsible for closing.
func NewWithBucket(bucket *blob.Bucket, keyPrefix string, timeout time.Duration) *Backend {
	cfg := Config{KeyPrefix: keyPrefix, Timeout: timeout}.withDefaults()
	return &Backend{bucket: bucket, keyPrefix: cfg.KeyPrefix, timeout: cfg.Timeout}
}

// blobKey hashes key so arbitrary characters in a request fingerprint
// never collide with the target store's naming restrictions.
func (b *Backend) blobKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return b.keyPrefix + hex.EncodeToString(h[:])
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	reader, err := b.bucket.NewReader(ctx, b.blobKey(key), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blobstore: get failed for key %q: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("blobstore: read failed for key %q: %w", key, err)
	}
	return data, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, data []byte) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	writer, err := b.bucket.NewWriter(ctx, b.blobKey(key), nil)
	if err != nil {
		return fmt.Errorf("blobstore: set failed to open writer for key %q: %w", key, err)
	}
	_, writeErr := writer.Write(data)
	closeErr := writer.Close()
	if writeErr != nil {
		return fmt.Errorf("blobstore: set failed to write key %q: %w", key, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("blobstore: set failed to close writer for key %q: %w", key, closeErr)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	err := b.bucket.Delete(ctx, b.blobKey(key))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("blobstore: delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close closes the bucket, if this Backend opened it.
func (b *Backend) Close() error {
	if b.owns {
		return b.bucket.Close()
	}
	return nil
}
