package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
models:
  chat:
    provider: openai
    model: gpt-4o-mini
  embedding:
    provider: openai
    model: text-embedding-3-small
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Storage.Type != StorageMemory {
		t.Errorf("storage.type default = %q, want %q", cfg.Storage.Type, StorageMemory)
	}
	if cfg.Memory.ShortTermCap != 200 {
		t.Errorf("memory.shortTermCap default = %d, want 200", cfg.Memory.ShortTermCap)
	}
	if cfg.Memory.SimilarityThreshold != 40 {
		t.Errorf("memory.similarityThreshold default = %v, want 40", cfg.Memory.SimilarityThreshold)
	}
	if cfg.Enhancements.MaxCombinedContextLength != 8000 {
		t.Errorf("enhancements.maxCombinedContextLength default = %d, want 8000", cfg.Enhancements.MaxCombinedContextLength)
	}
	if cfg.Cache.MaxSize != 1000 {
		t.Errorf("cache.maxSize default = %d, want 1000", cfg.Cache.MaxSize)
	}
	if cfg.Cache.TTL != 3600*time.Second {
		t.Errorf("cache.ttl default = %v, want 3600s", cfg.Cache.TTL)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`unknownField: true`))
	if err == nil {
		t.Fatal("expected decode error for unknown field, got nil")
	}
}

func TestValidateStorageJSONRequiresPath(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: StorageJSON}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error when storage.type=json has no path")
	}
}

func TestValidateStorageSparqlRequiresEndpoint(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: StorageSparql}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error when storage.type=sparql has no endpoints")
	}
}

func TestValidateRejectsInvalidStorageType(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: "postgres"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid storage.type")
	}
}
