package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	data map[string]map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]string)}
}

func (f *fakeStore) Write(_ context.Context, scope, key, value string) error {
	if f.data[scope] == nil {
		f.data[scope] = make(map[string]string)
	}
	f.data[scope][key] = value
	return nil
}

func (f *fakeStore) Read(_ context.Context, scope, key string) (string, bool, error) {
	v, ok := f.data[scope][key]
	return v, ok, nil
}

func (f *fakeStore) Search(_ context.Context, scope, needle string) ([]Entry, error) {
	var out []Entry
	for k, v := range f.data[scope] {
		out = append(out, Entry{Key: k, Value: v})
	}
	_ = needle
	return out, nil
}

func (f *fakeStore) Reset(_ context.Context, scope string) error {
	delete(f.data, scope)
	return nil
}

type plan struct {
	Goals []string `json:"goals"`
}

func TestServiceWriteReadJSONRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "run-1")

	require.NoError(t, svc.Write(context.Background(), "iteration:0:plan", plan{Goals: []string{"a", "b"}}))

	var out plan
	ok, err := svc.Read(context.Background(), "iteration:0:plan", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, out.Goals)
}

func TestServiceScopesKeysByRunID(t *testing.T) {
	store := newFakeStore()
	svcA := NewService(store, "run-a")
	svcB := NewService(store, "run-b")

	require.NoError(t, svcA.Write(context.Background(), "k", "from-a"))

	var out string
	ok, err := svcB.Read(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "run:run-a", svcA.Scope())
}

func TestServiceReadMissingKeyReturnsFalse(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "run-1")

	var out string
	ok, err := svc.Read(context.Background(), "nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceWriteReadDigestYAMLRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "run-1")

	require.NoError(t, svc.WriteDigest(context.Background(), "run_digest", plan{Goals: []string{"a", "b"}}))

	var out plan
	ok, err := svc.ReadDigest(context.Background(), "run_digest", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, out.Goals)
}

func TestReadDigestMissingKeyReturnsFalse(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "run-1")

	var out plan
	ok, err := svc.ReadDigest(context.Background(), "nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteDigestIsStoredAsYAMLNotJSON(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, "run-1")

	require.NoError(t, svc.WriteDigest(context.Background(), "run_digest", plan{Goals: []string{"a"}}))

	raw, ok, err := store.Read(context.Background(), "run:run-1", "run_digest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "goals:")
	assert.NotContains(t, raw, "{")
}
