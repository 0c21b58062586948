package analyzer

import (
	"context"
	"testing"

	"github.com/raine/visual-tagger/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory storage.Store for cache tests.
type memStore struct {
	entries     map[string]*storage.TagCacheEntry
	credentials map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		entries:     make(map[string]*storage.TagCacheEntry),
		credentials: make(map[string]string),
	}
}

func (m *memStore) GetTagCache(hash string) (*storage.TagCacheEntry, error) {
	return m.entries[hash], nil
}

func (m *memStore) SetTagCache(hash string, entry *storage.TagCacheEntry) error {
	m.entries[hash] = entry
	return nil
}

func (m *memStore) GetCredential(name string) (string, error) {
	return m.credentials[name], nil
}

func (m *memStore) SetCredential(name, value string) error {
	m.credentials[name] = value
	return nil
}

func (m *memStore) Close() error { return nil }

// countingAnalyzer records calls and returns a fixed result.
type countingAnalyzer struct {
	calls  int
	result *Analysis
}

func (c *countingAnalyzer) AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error) {
	c.calls++
	return c.result, nil
}

func TestCachedAnalyzerMissThenHit(t *testing.T) {
	inner := &countingAnalyzer{result: &Analysis{
		Filename: "cat.jpg",
		Tags:     []Tag{{Label: "a cat", Confidence: 0.9}},
		Width:    640,
		Height:   480,
		Model:    "blip-base",
	}}
	store := newMemStore()
	cached := NewCachedAnalyzer(inner, store)

	first, err := cached.AnalyzeImage(context.Background(), "cat.jpg", []byte("image bytes"))
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, store.entries, 1)

	second, err := cached.AnalyzeImage(context.Background(), "cat.jpg", []byte("image bytes"))
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "identical payload must not hit the remote analyzer again")
	assert.Equal(t, first.Tags, second.Tags)
	assert.Equal(t, "blip-base", second.Model)
	assert.Equal(t, 640, second.Width)
	assert.Zero(t, second.ProcessingTime, "cache hits ran no inference")
}

func TestCachedAnalyzerDistinctPayloads(t *testing.T) {
	inner := &countingAnalyzer{result: &Analysis{Tags: []Tag{{Label: "a cat", Confidence: 0.9}}}}
	cached := NewCachedAnalyzer(inner, newMemStore())

	_, err := cached.AnalyzeImage(context.Background(), "a.jpg", []byte("one"))
	require.NoError(t, err)
	_, err = cached.AnalyzeImage(context.Background(), "b.jpg", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedAnalyzerNilStore(t *testing.T) {
	inner := &countingAnalyzer{result: &Analysis{Tags: []Tag{{Label: "a cat", Confidence: 0.9}}}}
	cached := NewCachedAnalyzer(inner, nil)

	_, err := cached.AnalyzeImage(context.Background(), "a.jpg", []byte("one"))
	require.NoError(t, err)
	_, err = cached.AnalyzeImage(context.Background(), "a.jpg", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
