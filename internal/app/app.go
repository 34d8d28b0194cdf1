// Package app wires all semem subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run blocks until its context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithRdfSink, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/semem/internal/cache"
	"github.com/MrWong99/semem/internal/concepts"
	"github.com/MrWong99/semem/internal/config"
	"github.com/MrWong99/semem/internal/enhance"
	"github.com/MrWong99/semem/internal/health"
	"github.com/MrWong99/semem/internal/jsonstore"
	"github.com/MrWong99/semem/internal/memory"
	"github.com/MrWong99/semem/internal/rdf"
	"github.com/MrWong99/semem/internal/resilience"
	"github.com/MrWong99/semem/internal/retrieval"
	"github.com/MrWong99/semem/internal/verbs"
	"github.com/MrWong99/semem/internal/zpt"
	"github.com/MrWong99/semem/pkg/provider/embeddings"
	"github.com/MrWong99/semem/pkg/provider/llm"
)

// Providers holds one interface value per model slot. Populated by main.go
// via the config registry.
type Providers struct {
	Chat      llm.Provider
	Embedding embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the memory engine.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store      memory.Store
	rdfSink    memory.RdfSink
	sparqlSink *rdf.Sink // non-nil only when storage.type == sparql; used for readiness checks
	extractor  *concepts.Extractor
	manager   *memory.Manager
	zptMgr    *zpt.Manager
	enhancer  *enhance.Coordinator
	Verbs     *verbs.Service

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an interaction store instead of creating one from config.
func WithStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRdfSink injects an RDF sink instead of creating one from config.
func WithRdfSink(s memory.RdfSink) Option {
	return func(a *App) { a.rdfSink = s }
}

// WithZptManager injects a ZPT manager instead of creating one.
func WithZptManager(m *zpt.Manager) Option {
	return func(a *App) { a.zptMgr = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: storage backend selection,
// interaction store construction, concept extractor, C5 memory manager, C6
// ZPT manager, C8 enhancement coordinator, and the C7 verb service.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Storage backend ───────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Concept extractor ─────────────────────────────────────────────
	if providers.Chat != nil {
		var extractorOpts []concepts.Option
		if cfg.Cache.MaxSize >= 0 {
			extractorOpts = append(extractorOpts, concepts.WithCache(cfg.Cache.MaxSize, cfg.Cache.TTL))
		}
		a.extractor = concepts.NewExtractor(providers.Chat, extractorOpts...)
	}

	// Cache embeddings by content hash the same way (spec §5) — re-asking the
	// same question or re-telling the same prompt shouldn't re-hit the model.
	embedder := providers.Embedding
	if embedder != nil && cfg.Cache.MaxSize >= 0 {
		embedder = cache.NewEmbeddingProvider(embedder, cfg.Cache.MaxSize, cfg.Cache.TTL)
	}

	// ── 3. C5 memory manager ─────────────────────────────────────────────
	retrievalOpts := retrieval.DefaultOptions()
	if cfg.Memory.SimilarityThreshold != 0 {
		retrievalOpts.SimilarityThreshold = cfg.Memory.SimilarityThreshold
	}
	if cfg.Memory.ConceptWeight != 0 {
		retrievalOpts.ConceptWeight = cfg.Memory.ConceptWeight
	}
	retrievalOpts.Dimension = cfg.Memory.Dimension

	a.manager = memory.NewManager(a.store, embedder, a.extractor, providers.Chat, retrievalOpts)

	// ── 4. C6 ZPT manager ─────────────────────────────────────────────────
	// Only the SPARQL sink implements provenance logging (spec §4.C2); the
	// json and memory backends navigate without a persisted audit trail.
	if a.zptMgr == nil {
		var navSink zpt.Sink
		if s, ok := a.rdfSink.(zpt.Sink); ok {
			navSink = s
		}
		a.zptMgr = zpt.NewManager(navSink)
	}

	// ── 5. C8 enhancement coordinator ────────────────────────────────────
	a.initEnhancements()

	// ── 6. C7 verb service ────────────────────────────────────────────────
	// Only the SPARQL sink persists `augment{operation:"relationships"}`
	// findings as ragno:Relationship triples; json/memory backends still
	// compute and return the analysis, just without persistence.
	var relSink verbs.RelationshipSink
	if s, ok := a.rdfSink.(verbs.RelationshipSink); ok {
		relSink = s
	}
	a.Verbs = verbs.New(a.manager, a.store, a.extractor, embedder, a.zptMgr, a.enhancer, relSink)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage builds the interaction store and, for sparql/json backends,
// the RDF sink the store persists through.
func (a *App) initStorage(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	policy := memory.Policy{
		ShortTermCap:       a.cfg.Memory.ShortTermCap,
		DecayRate:          a.cfg.Memory.DecayRate,
		PromotionThreshold: a.cfg.Memory.PromotionThreshold,
		PromotionAge:       a.cfg.Memory.PromotionAge,
	}

	switch {
	case a.rdfSink != nil:
		// injected via WithRdfSink
	case a.cfg.Storage.Type == config.StorageJSON:
		js := jsonstore.New(a.cfg.Storage.Path)
		a.rdfSink = js
	case a.cfg.Storage.Type == config.StorageSparql:
		if len(a.cfg.SparqlEndpoints) == 0 {
			return fmt.Errorf("storage.type=sparql requires at least one sparqlEndpoints entry")
		}
		ep := a.cfg.SparqlEndpoints[0]
		gw := rdf.New(rdf.Endpoint{
			Label:     ep.Label,
			QueryURL:  ep.Query,
			UpdateURL: ep.Update,
			User:      ep.User,
			Password:  ep.Password,
			Timeout:   ep.Timeout,
			GraphIRI:  ep.GraphIRI,
		}, rdf.DefaultTemplates())
		sink := rdf.NewSink(gw, ep.GraphIRI)
		a.rdfSink = sink
		a.sparqlSink = sink
	default:
		a.rdfSink = nil // storage.type=memory: no persistence
	}

	a.store = memory.NewInMemoryStore(policy, a.rdfSink)
	if a.rdfSink != nil {
		if err := a.store.LoadHistory(ctx); err != nil {
			slog.Warn("failed to load interaction history at startup", "err", err)
		}
	}
	return nil
}

// initEnhancements builds the C8 coordinator from the configured pipeline
// set. Leaves a.enhancer nil (disabling `ask{useHyDE: true, ...}` etc.) when
// no enhancement pipelines are enabled or no chat provider is configured.
func (a *App) initEnhancements() {
	if len(a.cfg.Enhancements.Enabled) == 0 {
		return
	}

	var pipelines []enhance.Pipeline
	for _, name := range a.cfg.Enhancements.Enabled {
		switch name {
		case "hyde":
			if a.providers.Chat != nil {
				pipelines = append(pipelines, enhance.NewHyDEPipeline(a.providers.Chat))
			}
		case "wikipedia":
			pipelines = append(pipelines, enhance.NewWikipediaPipeline())
		case "wikidata":
			pipelines = append(pipelines, enhance.NewWikidataPipeline())
		default:
			slog.Warn("unknown enhancement pipeline configured, skipping", "name", name)
		}
	}
	if len(pipelines) == 0 {
		return
	}

	enhOpts := enhance.DefaultOptions()
	if a.cfg.Enhancements.MaxCombinedContextLength != 0 {
		enhOpts.MaxCombinedChars = a.cfg.Enhancements.MaxCombinedContextLength
	}
	enhOpts.Concurrent = a.cfg.Enhancements.Concurrent
	enhOpts.FallbackOnError = a.cfg.Enhancements.FallbackOnError
	if len(a.cfg.Enhancements.Weights) > 0 {
		enhOpts.Weights = a.cfg.Enhancements.Weights
	}

	a.enhancer = enhance.NewCoordinator(pipelines, enhOpts)
}

// ─── Resilience helpers ──────────────────────────────────────────────────────

// WrapChatFallback wraps a primary chat provider with circuit-breaker
// failover across the given named fallbacks. Intended for use by main.go
// before constructing Providers, when more than one chat backend is
// configured.
func WrapChatFallback(primary llm.Provider, primaryName string, cfg resilience.FallbackConfig, fallbacks map[string]llm.Provider) llm.Provider {
	fb := resilience.NewLLMFallback(primary, primaryName, cfg)
	for name, p := range fallbacks {
		fb.AddFallback(name, p)
	}
	return fb
}

// WrapEmbeddingFallback is the embeddings analogue of [WrapChatFallback].
func WrapEmbeddingFallback(primary embeddings.Provider, primaryName string, cfg resilience.FallbackConfig, fallbacks map[string]embeddings.Provider) embeddings.Provider {
	fb := resilience.NewEmbeddingsFallback(primary, primaryName, cfg)
	for name, p := range fallbacks {
		fb.AddFallback(name, p)
	}
	return fb
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Store returns the interaction store. Exposed for httpfront/cmd wiring.
func (a *App) Store() memory.Store { return a.store }

// ZptManager returns the ZPT state manager, satisfying httpfront.StateProvider.
func (a *App) ZptManager() *zpt.Manager { return a.zptMgr }

// Manager returns the C5 memory manager, exposed so a config hot reload can
// push updated retrieval tunables into the live instance.
func (a *App) Manager() *memory.Manager { return a.manager }

// Enhancer returns the C8 enhancement coordinator, or nil when no
// enhancement pipeline is configured. Exposed so a config hot reload can
// push updated weights/budget into the live instance.
func (a *App) Enhancer() *enhance.Coordinator { return a.enhancer }

// HealthCheckers returns the readiness checks cmd/semem should register
// against internal/health. Empty unless a SPARQL backend is configured —
// the json and memory backends have nothing external to probe.
func (a *App) HealthCheckers() []health.Checker {
	if a.sparqlSink == nil {
		return nil
	}
	return []health.Checker{
		{Name: "sparql", Check: a.sparqlSink.Ping},
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled and returns ctx.Err(). It persists
// nothing; the interaction history is saved by Shutdown.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "storage", a.cfg.Storage.Type)
	<-ctx.Done()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown saves the interaction history (when a persistent backend is
// configured), then runs the closers in slice order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.store != nil && a.rdfSink != nil {
			if err := a.store.SaveHistory(ctx); err != nil {
				slog.Warn("failed to persist interaction history at shutdown", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
