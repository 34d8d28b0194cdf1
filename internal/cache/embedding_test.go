package cache

import (
	"context"
	"testing"
	"time"

	embeddingsmock "github.com/MrWong99/semem/pkg/provider/embeddings/mock"
)

func TestEmbeddingProvider_CachesByContentHash(t *testing.T) {
	inner := &embeddingsmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}
	p := NewEmbeddingProvider(inner, 10, time.Minute)

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(inner.EmbedCalls) != 1 {
		t.Errorf("expected the wrapped provider called once for a repeated text, got %d calls", len(inner.EmbedCalls))
	}
}

func TestEmbeddingProvider_DistinctTextsAreNotConflated(t *testing.T) {
	inner := &embeddingsmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}
	p := NewEmbeddingProvider(inner, 10, time.Minute)

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := p.Embed(context.Background(), "world"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(inner.EmbedCalls) != 2 {
		t.Errorf("expected the wrapped provider called once per distinct text, got %d calls", len(inner.EmbedCalls))
	}
}

func TestEmbeddingProvider_ErrorIsNotCached(t *testing.T) {
	inner := &embeddingsmock.Provider{EmbedErr: context.DeadlineExceeded}
	p := NewEmbeddingProvider(inner, 10, time.Minute)

	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error from the wrapped provider")
	}
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected the second call to retry rather than return a cached error")
	}
	if len(inner.EmbedCalls) != 2 {
		t.Errorf("expected the wrapped provider called again after an error, got %d calls", len(inner.EmbedCalls))
	}
}

func TestEmbeddingProvider_PassesThroughDimensionsAndModelID(t *testing.T) {
	inner := &embeddingsmock.Provider{DimensionsValue: 3, ModelIDValue: "test-embed-v1"}
	p := NewEmbeddingProvider(inner, 10, time.Minute)

	if p.Dimensions() != 3 {
		t.Errorf("expected Dimensions() passed through, got %d", p.Dimensions())
	}
	if p.ModelID() != "test-embed-v1" {
		t.Errorf("expected ModelID() passed through, got %q", p.ModelID())
	}
}
