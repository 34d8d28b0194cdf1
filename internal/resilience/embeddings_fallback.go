package resilience

import (
	"context"

	"github.com/MrWong99/semem/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with automatic failover
// across multiple embedding backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type EmbeddingsFallback struct {
	group *FallbackGroup[embeddings.Provider]
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional embeddings provider as a fallback.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) {
	f.group.AddFallback(name, provider)
}

// Embed sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch sends the batch request to the first healthy provider. A batch
// is never split across providers: on failure the whole batch fails over to
// the next fallback.
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the first entry's (the primary's) vector dimensionality.
// This does not participate in failover; callers must ensure every
// registered fallback shares the same dimensionality as the primary.
func (f *EmbeddingsFallback) Dimensions() int {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Dimensions()
	}
	return 0
}

// ModelID returns the first entry's (the primary's) model identifier.
func (f *EmbeddingsFallback) ModelID() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.ModelID()
	}
	return ""
}
