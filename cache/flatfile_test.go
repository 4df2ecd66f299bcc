package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatFileCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFlatFileCache(filepath.Join(dir, "md"))
	require.NoError(t, err)

	require.NoError(t, c.SetMeta("root.json", json.RawMessage(`{"a":1}`)))
	require.NoError(t, c.SetMeta("timestamp.json", json.RawMessage(`{"b":2}`)))

	meta, err := c.GetMeta()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(meta["root.json"]))
	assert.JSONEq(t, `{"b":2}`, string(meta["timestamp.json"]))
	assert.Len(t, meta, 2)

	require.NoError(t, c.DeleteMeta("timestamp.json"))
	meta, err = c.GetMeta()
	require.NoError(t, err)
	assert.Len(t, meta, 1)
}

func TestFlatFileCacheRejectsNonJSON(t *testing.T) {
	c, err := NewFlatFileCache(t.TempDir())
	require.NoError(t, err)
	err = c.SetMeta("root.txt", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestFlatFileCacheDeleteMissingIsNoop(t *testing.T) {
	c, err := NewFlatFileCache(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, c.DeleteMeta("nonexistent.json"))
}

func TestLockedCacheSerializesWrites(t *testing.T) {
	store, err := NewFlatFileCache(t.TempDir())
	require.NoError(t, err)
	locked := NewLockedCache(store)

	err = locked.WithLockedCache(func(store MetadataCache) error {
		return store.SetMeta("root.json", json.RawMessage(`{"v":1}`))
	})
	require.NoError(t, err)

	meta, err := locked.GetMeta()
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(meta["root.json"]))
}
