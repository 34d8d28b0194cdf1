package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/semem/pkg/provider/embeddings"
	"github.com/MrWong99/semem/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each of
// the two provider kinds this engine needs (chat, embedding). Safe for
// concurrent use — kept from the teacher's `internal/config/registry.go`
// shape, trimmed from seven provider kinds (llm/stt/tts/s2s/embeddings/vad/
// audio) down to the two this domain has (chat, embedding).
type Registry struct {
	mu        sync.RWMutex
	llm       map[string]func(ModelProvider) (llm.Provider, error)
	embedding map[string]func(ModelProvider) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:       make(map[string]func(ModelProvider) (llm.Provider, error)),
		embedding: make(map[string]func(ModelProvider) (embeddings.Provider, error)),
	}
}

// RegisterLLM registers a chat/LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ModelProvider) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbedding registers an embedding provider factory under name.
func (r *Registry) RegisterEmbedding(name string, factory func(ModelProvider) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding[name] = factory
}

// CreateLLM instantiates a chat provider using the factory registered under
// entry.Provider.
func (r *Registry) CreateLLM(entry ModelProvider) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat/%q", ErrProviderNotRegistered, entry.Provider)
	}
	return factory(entry)
}

// CreateEmbedding instantiates an embedding provider using the factory
// registered under entry.Provider.
func (r *Registry) CreateEmbedding(entry ModelProvider) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embedding[entry.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embedding/%q", ErrProviderNotRegistered, entry.Provider)
	}
	return factory(entry)
}
