package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTagCacheRoundtrip(t *testing.T) {
	store := newTestStore(t)

	entry := &TagCacheEntry{
		Tags: []CachedTag{
			{Label: "a golden retriever sitting in a park", Confidence: 0.87},
			{Label: "dog outdoors on grass", Confidence: 0.82},
		},
		Model:  "Salesforce/blip-image-captioning-base",
		Width:  640,
		Height: 480,
	}
	require.NoError(t, store.SetTagCache("hash-1", entry))

	got, err := store.GetTagCache("hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Tags, got.Tags)
	assert.Equal(t, entry.Model, got.Model)
	assert.Equal(t, 640, got.Width)
	assert.Equal(t, 480, got.Height)
}

func TestTagCacheMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetTagCache("no such hash")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTagCacheOverwrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetTagCache("h", &TagCacheEntry{Model: "old"}))
	require.NoError(t, store.SetTagCache("h", &TagCacheEntry{Model: "new"}))

	got, err := store.GetTagCache("h")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Model)
}

func TestCredentialRoundtrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetCredential("api_key", "secret-value"))

	got, err := store.GetCredential("api_key")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", got)
}

func TestCredentialMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetCredential("nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCredentialOverwrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetCredential("api_key", "first"))
	require.NoError(t, store.SetCredential("api_key", "second"))

	got, err := store.GetCredential("api_key")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestCredentialStoredEncrypted(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetCredential("api_key", "secret-value"))

	var raw string
	err := store.db.QueryRow("SELECT encrypted_value FROM credentials WHERE name = ?", "api_key").Scan(&raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret-value")
}
