package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/raine/visual-tagger/internal/storage"
	"github.com/rs/zerolog/log"
)

// CachedAnalyzer wraps an Analyzer with a content-addressed SQLite cache.
// Identical payloads skip the remote call; cache hits report zero processing
// time since no inference ran.
type CachedAnalyzer struct {
	inner Analyzer
	store storage.Store
}

// NewCachedAnalyzer creates a cached analyzer. A nil store disables caching.
func NewCachedAnalyzer(inner Analyzer, store storage.Store) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, store: store}
}

// hashImage creates a SHA-256 content hash for cache keying.
func hashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AnalyzeImage implements the Analyzer interface with caching.
func (c *CachedAnalyzer) AnalyzeImage(ctx context.Context, name string, data []byte) (*Analysis, error) {
	hash := hashImage(data)

	if c.store != nil {
		cached, err := c.store.GetTagCache(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check tag cache")
		} else if cached != nil {
			log.Debug().Str("hash", hash[:16]).Msg("tag cache hit")
			tags := make([]Tag, len(cached.Tags))
			for i, t := range cached.Tags {
				tags[i] = Tag{Label: t.Label, Confidence: t.Confidence}
			}
			return &Analysis{
				Filename:       name,
				Tags:           tags,
				ProcessingTime: 0,
				Width:          cached.Width,
				Height:         cached.Height,
				Model:          cached.Model,
				CompletedAt:    time.Now(),
			}, nil
		}
	}

	result, err := c.inner.AnalyzeImage(ctx, name, data)
	if err != nil {
		return nil, err
	}

	if c.store != nil && len(result.Tags) > 0 {
		entry := &storage.TagCacheEntry{
			Model:  result.Model,
			Width:  result.Width,
			Height: result.Height,
		}
		for _, t := range result.Tags {
			entry.Tags = append(entry.Tags, storage.CachedTag{Label: t.Label, Confidence: t.Confidence})
		}
		if err := c.store.SetTagCache(hash, entry); err != nil {
			log.Warn().Err(err).Msg("failed to cache tag result")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached tag result")
		}
	}

	return result, nil
}
