package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind, used by
// [Validate] to warn about unrecognised provider names — same
// warn-don't-fail style as the teacher's config validation.
var ValidProviderNames = map[string][]string{
	"chat":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp"},
	"embedding": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	// Boolean defaults are set before decoding so an explicit false in the
	// YAML still wins.
	cfg := &Config{Enhancements: EnhancementsConfig{Concurrent: true, FallbackOnError: true}}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the named defaults from spec §4.C3/C4/C8/§6.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageMemory
	}
	if cfg.Memory.SimilarityThreshold == 0 {
		cfg.Memory.SimilarityThreshold = 40
	}
	if cfg.Memory.ContextWindow == 0 {
		cfg.Memory.ContextWindow = 4000
	}
	if cfg.Memory.DecayRate == 0 {
		cfg.Memory.DecayRate = 1e-4
	}
	if cfg.Memory.ShortTermCap == 0 {
		cfg.Memory.ShortTermCap = 200
	}
	if cfg.Memory.PromotionThreshold == 0 {
		cfg.Memory.PromotionThreshold = 5
	}
	if cfg.Memory.PromotionAge == 0 {
		cfg.Memory.PromotionAge = 24 * time.Hour
	}
	if cfg.Memory.ConceptWeight == 0 {
		cfg.Memory.ConceptWeight = 10
	}
	if cfg.Enhancements.MaxCombinedContextLength == 0 {
		cfg.Enhancements.MaxCombinedContextLength = 8000
	}
	if cfg.Enhancements.Weights == nil {
		cfg.Enhancements.Weights = map[string]float64{"hyde": 0.3, "wikipedia": 0.4, "wikidata": 0.3}
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 1000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 3600 * time.Second
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Storage.Type.IsValid() {
		errs = append(errs, fmt.Errorf("storage.type %q is invalid; valid values: memory, json, sparql", cfg.Storage.Type))
	}
	if cfg.Storage.Type == StorageJSON && cfg.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required when storage.type is %q", StorageJSON))
	}
	if cfg.Storage.Type == StorageSparql && len(cfg.SparqlEndpoints) == 0 {
		errs = append(errs, fmt.Errorf("sparqlEndpoints must list at least one endpoint when storage.type is %q", StorageSparql))
	}

	validateProviderName("chat", cfg.Models.Chat.Provider)
	validateProviderName("embedding", cfg.Models.Embedding.Provider)

	if cfg.Models.Embedding.Provider == "" {
		slog.Warn("models.embedding is not configured; retrieval (ask/recall) will be unavailable")
	}

	if cfg.Memory.Dimension <= 0 {
		slog.Warn("memory.dimension is not set; embedding-length validation will be skipped")
	}

	for i, ep := range cfg.SparqlEndpoints {
		prefix := fmt.Sprintf("sparqlEndpoints[%d]", i)
		if ep.Label == "" {
			errs = append(errs, fmt.Errorf("%s.label is required", prefix))
		}
		if ep.URLBase == "" && ep.Query == "" {
			errs = append(errs, fmt.Errorf("%s: one of urlBase or query is required", prefix))
		}
	}

	for name := range cfg.Enhancements.Weights {
		if name != "hyde" && name != "wikipedia" && name != "wikidata" {
			errs = append(errs, fmt.Errorf("enhancements.weights: unknown pipeline %q", name))
		}
	}

	return errors.Join(errs...)
}

func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind, "name", name, "known", known)
}
