// Package config provides the configuration schema, loader, and provider
// registry for the semantic-memory engine (spec §6 "Configuration").
package config

import "time"

// Config is the root configuration object spec §6 names.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Models        ModelsConfig        `yaml:"models"`
	Memory        MemoryConfig        `yaml:"memory"`
	SparqlEndpoints []SparqlEndpoint  `yaml:"sparqlEndpoints"`
	Enhancements  EnhancementsConfig  `yaml:"enhancements"`
	Cache         CacheConfig         `yaml:"cache"`
}

// ServerConfig holds network and logging settings — carried unchanged from
// the teacher as the ambient stack this module keeps regardless of the
// spec's feature-level Non-goals.
type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr"`
	LogLevel   LogLevel  `yaml:"log_level"`
}

// LogLevel mirrors the teacher's enum-over-string validation style.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// StorageType selects the persistence backend (spec §6 "storage.type").
type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageJSON   StorageType = "json"
	StorageSparql StorageType = "sparql"
)

func (t StorageType) IsValid() bool {
	switch t {
	case StorageMemory, StorageJSON, StorageSparql:
		return true
	}
	return false
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Type StorageType `yaml:"type"` // default "memory"
	Path string      `yaml:"path"` // required when Type == "json"
}

// ModelProvider names one provider+model pair.
type ModelProvider struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// ModelsConfig selects the chat (LLM) and embedding backends, plus an
// optional ordered list of fallback backends for each (spec §7
// ProviderUnavailable: failover to the next configured backend after the
// retry budget is exhausted).
type ModelsConfig struct {
	Chat               ModelProvider   `yaml:"chat"`
	Embedding          ModelProvider   `yaml:"embedding"`
	ChatFallbacks      []ModelProvider `yaml:"chatFallbacks"`
	EmbeddingFallbacks []ModelProvider `yaml:"embeddingFallbacks"`
}

// MemoryConfig holds the tunables spec §6 groups under "memory.*", mirroring
// [memory.Policy] and [retrieval.Options] defaults.
type MemoryConfig struct {
	Dimension           int           `yaml:"dimension"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"` // default 40
	ContextWindow       int           `yaml:"contextWindow"`       // default 4000 chars
	DecayRate           float64       `yaml:"decayRate"`           // default 1e-4
	ShortTermCap        int           `yaml:"shortTermCap"`        // default 200
	PromotionThreshold  int           `yaml:"promotionThreshold"`  // default 5
	PromotionAge        time.Duration `yaml:"promotionAge"`        // default 24h; YAML value is a Go duration string such as "24h"
	ConceptWeight       float64       `yaml:"conceptWeight"`       // default 10
}

// SparqlEndpoint describes one configured SPARQL 1.1 Query+Update endpoint
// (spec §6 "sparqlEndpoints").
type SparqlEndpoint struct {
	Label    string        `yaml:"label"`
	URLBase  string        `yaml:"urlBase"`
	Query    string        `yaml:"query"`
	Update   string        `yaml:"update"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	GraphIRI string        `yaml:"graph"`
}

// CacheConfig configures the optional content-hash-keyed LRU caches sitting
// in front of the embedding and concept-extraction providers (spec §5). A
// negative MaxSize disables caching entirely.
type CacheConfig struct {
	MaxSize int           `yaml:"maxSize"` // default 1000; negative disables caching
	TTL     time.Duration `yaml:"ttl"`     // default 3600s
}

// EnhancementsConfig configures C8 (spec §6 "enhancements.*").
type EnhancementsConfig struct {
	MaxCombinedContextLength int             `yaml:"maxCombinedContextLength"` // default 8000
	Concurrent               bool            `yaml:"concurrent"`               // default true
	Weights                  map[string]float64 `yaml:"weights"`
	FallbackOnError          bool            `yaml:"fallbackOnError"` // default true
	Enabled                  []string        `yaml:"enabled"`         // subset of {hyde, wikipedia, wikidata}
}
