package blobstore

import (
	"testing"

	"github.com/arborcache/httpcache/internal/storetest"
	"gocloud.dev/blob/memblob"
)

func TestBackend(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	b := NewWithBucket(bucket, "", 0)
	storetest.Exercise(t, b)
}
