package fsstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/memory"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "run:abc", "iteration:0:plan", `{"goals":["x"]}`))

	value, ok, err := store.Read(ctx, "run:abc", "iteration:0:plan")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"goals":["x"]}`, value)
}

func TestReadMissingKeyReturnsFalseNotError(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Read(context.Background(), "run:abc", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchFiltersByNeedleAndSortsByKey(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "run:abc", "iteration:1:plan", "a"))
	require.NoError(t, store.Write(ctx, "run:abc", "iteration:0:plan", "b"))
	require.NoError(t, store.Write(ctx, "run:abc", "status", "running"))

	entries, err := store.Search(ctx, "run:abc", "iteration")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "iteration:0:plan", entries[0].Key)
	assert.Equal(t, "iteration:1:plan", entries[1].Key)
}

func TestResetClearsScope(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "run:abc", "k", "v"))
	require.NoError(t, store.Reset(ctx, "run:abc"))

	_, ok, err := store.Read(ctx, "run:abc", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScopesAreIsolated(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "run:one", "k", "one-value"))
	require.NoError(t, store.Write(ctx, "run:two", "k", "two-value"))

	v1, _, err := store.Read(ctx, "run:one", "k")
	require.NoError(t, err)
	v2, _, err := store.Read(ctx, "run:two", "k")
	require.NoError(t, err)

	assert.Equal(t, "one-value", v1)
	assert.Equal(t, "two-value", v2)
}

var _ memory.Store = (*Store)(nil)
