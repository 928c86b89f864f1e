// Package storetest provides a shared acceptance suite exercised by every
// concrete httpcache.Backend implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arborcache/httpcache"
)

// Exercise runs the round-trip/overwrite/delete contract every Backend
// must satisfy against backend.
func Exercise(t *testing.T, backend httpcache.Backend) {
	t.Helper()
	ctx := context.Background()
	key := "test-key"

	_, ok, err := backend.Get(ctx, key)
	require.NoError(t, err, "get before set")
	require.False(t, ok, "get returned ok before any Set")

	val := []byte("some bytes")
	require.NoError(t, backend.Set(ctx, key, val))

	got, ok, err := backend.Get(ctx, key)
	require.NoError(t, err, "get after set")
	require.True(t, ok, "get did not find a value we just set")
	require.Equal(t, val, got)

	overwrite := []byte("different bytes")
	require.NoError(t, backend.Set(ctx, key, overwrite))
	got, ok, err = backend.Get(ctx, key)
	require.NoError(t, err, "get after overwrite")
	require.True(t, ok)
	require.Equal(t, overwrite, got)

	require.NoError(t, backend.Delete(ctx, key))
	_, ok, err = backend.Get(ctx, key)
	require.NoError(t, err, "get after delete")
	require.False(t, ok, "key still present after delete")

	// Deleting an absent key is not an error.
	require.NoError(t, backend.Delete(ctx, "never-set"), "delete of absent key")
}
