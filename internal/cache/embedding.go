package cache

import (
	"context"
	"time"

	"github.com/MrWong99/semem/pkg/provider/embeddings"
)

// EmbeddingProvider wraps an [embeddings.Provider], caching single-text
// Embed results by content hash (spec §5). EmbedBatch, Dimensions, and
// ModelID pass straight through to the wrapped provider — batch requests are
// assumed caller-deduplicated already, so only the hot Embed path is cached.
type EmbeddingProvider struct {
	embeddings.Provider
	cache *Cache[string, []float32]
}

// NewEmbeddingProvider wraps provider with an LRU+TTL cache of the given
// capacity and entry lifetime.
func NewEmbeddingProvider(provider embeddings.Provider, capacity int, ttl time.Duration) *EmbeddingProvider {
	return &EmbeddingProvider{
		Provider: provider,
		cache:    New[string, []float32](capacity, ttl),
	}
}

// Embed returns the cached vector for text's content hash, computing and
// caching it via the wrapped provider on a miss.
func (e *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(text)
	if v, ok := e.cache.Get(key); ok {
		return v, nil
	}
	v, err := e.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, v)
	return v, nil
}
