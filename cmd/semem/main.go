// Command semem is the main entry point for the semantic memory engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/semem/internal/app"
	"github.com/MrWong99/semem/internal/config"
	"github.com/MrWong99/semem/internal/enhance"
	"github.com/MrWong99/semem/internal/health"
	"github.com/MrWong99/semem/internal/httpfront"
	"github.com/MrWong99/semem/internal/mcpserver"
	"github.com/MrWong99/semem/internal/observe"
	"github.com/MrWong99/semem/internal/resilience"
	"github.com/MrWong99/semem/internal/retrieval"
	"github.com/MrWong99/semem/pkg/provider/embeddings"
	embeddingsollama "github.com/MrWong99/semem/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/MrWong99/semem/pkg/provider/embeddings/openai"
	"github.com/MrWong99/semem/pkg/provider/llm"
	"github.com/MrWong99/semem/pkg/provider/llm/anyllm"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve the MCP tool surface over stdio instead of starting the HTTP server")
	mcpAddr := flag.String("mcp-addr", "", "also serve the MCP tool surface as Streamable HTTP on this address (e.g. :9090)")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "semem: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("semem starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"storage", cfg.Storage.Type,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "semem",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Application wiring ────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigDiff(application, config.Diff(old, new), new, logLevel)
	})
	if err != nil {
		slog.Warn("config hot reload disabled: failed to start file watcher", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Front doors ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpfront.New(application.Verbs, application.ZptManager()).Register(mux)
	health.New(application.HealthCheckers()...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: observe.Middleware(observe.DefaultMetrics())(mux)}

	var mcpListener net.Listener
	if *mcpAddr != "" {
		mcpListener, err = net.Listen("tcp", *mcpAddr)
		if err != nil {
			slog.Error("failed to listen for MCP HTTP", "addr", *mcpAddr, "err", err)
			return 1
		}
	}
	mcpSrv := mcpserver.New(application.Verbs, version)

	runErrCh := make(chan error, 3)

	if *mcpStdio {
		slog.Info("serving MCP tool surface over stdio")
		go func() { runErrCh <- mcpserver.Serve(ctx, mcpSrv) }()
	} else {
		go func() {
			slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				runErrCh <- fmt.Errorf("http server: %w", err)
				return
			}
			runErrCh <- nil
		}()
	}

	if mcpListener != nil {
		go func() {
			slog.Info("mcp http server listening", "addr", *mcpAddr)
			runErrCh <- mcpserver.ServeHTTP(ctx, mcpSrv, mcpListener)
		}()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-runErrCh:
		if err != nil {
			slog.Error("server error", "err", err)
		}
		stop()
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if !*mcpStdio {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders lists the provider names anyllm.New accepts, each
// registered as a chat factory under its own name so config.yaml's
// models.chat.provider can name any of them directly.
var anyllmProviders = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders registers every chat and embedding factory this
// build ships with. Trimmed from the teacher's seven provider kinds down to
// the two this engine needs (chat, embedding).
func registerBuiltinProviders(reg *config.Registry) {
	for _, name := range anyllmProviders {
		providerName := name
		reg.RegisterLLM(providerName, func(entry config.ModelProvider) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterEmbedding("openai", func(entry config.ModelProvider) (embeddings.Provider, error) {
		var opts []embeddingsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(entry.BaseURL))
		}
		return embeddingsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbedding("ollama", func(entry config.ModelProvider) (embeddings.Provider, error) {
		return embeddingsollama.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates the chat and embedding providers named in
// cfg.Models, using the registry. Either may be left nil when its
// config.ModelProvider.Provider is empty — app.New tolerates a nil chat
// provider (concept extraction and answer synthesis are then unavailable)
// and a nil embedding provider (ingest/retrieve then return an explicit
// error, per spec §4.C5).
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if cfg.Models.Chat.Provider != "" {
		p, err := reg.CreateLLM(cfg.Models.Chat)
		if err != nil {
			return nil, fmt.Errorf("create chat provider %q: %w", cfg.Models.Chat.Provider, err)
		}
		slog.Info("provider created", "kind", "chat", "name", cfg.Models.Chat.Provider, "model", cfg.Models.Chat.Model)

		if len(cfg.Models.ChatFallbacks) > 0 {
			fallbacks := make(map[string]llm.Provider, len(cfg.Models.ChatFallbacks))
			for _, entry := range cfg.Models.ChatFallbacks {
				fp, err := reg.CreateLLM(entry)
				if err != nil {
					return nil, fmt.Errorf("create chat fallback provider %q: %w", entry.Provider, err)
				}
				fallbacks[entry.Provider] = fp
				slog.Info("fallback provider created", "kind", "chat", "name", entry.Provider, "model", entry.Model)
			}
			p = app.WrapChatFallback(p, cfg.Models.Chat.Provider, resilience.FallbackConfig{}, fallbacks)
		}
		ps.Chat = p
	}

	if cfg.Models.Embedding.Provider != "" {
		p, err := reg.CreateEmbedding(cfg.Models.Embedding)
		if err != nil {
			return nil, fmt.Errorf("create embedding provider %q: %w", cfg.Models.Embedding.Provider, err)
		}
		slog.Info("provider created", "kind", "embedding", "name", cfg.Models.Embedding.Provider, "model", cfg.Models.Embedding.Model)

		if len(cfg.Models.EmbeddingFallbacks) > 0 {
			fallbacks := make(map[string]embeddings.Provider, len(cfg.Models.EmbeddingFallbacks))
			for _, entry := range cfg.Models.EmbeddingFallbacks {
				fp, err := reg.CreateEmbedding(entry)
				if err != nil {
					return nil, fmt.Errorf("create embedding fallback provider %q: %w", entry.Provider, err)
				}
				fallbacks[entry.Provider] = fp
				slog.Info("fallback provider created", "kind", "embedding", "name", entry.Provider, "model", entry.Model)
			}
			p = app.WrapEmbeddingFallback(p, cfg.Models.Embedding.Provider, resilience.FallbackConfig{}, fallbacks)
		}
		ps.Embedding = p
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          semem — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Chat", providerLabel(cfg.Models.Chat.Provider, cfg.Models.Chat.Model))
	printField("Embedding", providerLabel(cfg.Models.Embedding.Provider, cfg.Models.Embedding.Model))
	printField("Storage", string(cfg.Storage.Type))
	printField("Listen addr", cfg.Server.ListenAddr)
	fmt.Printf("║  Enhancements    : %-19d ║\n", len(cfg.Enhancements.Enabled))
	fmt.Printf("║  SPARQL endpoints: %-19d ║\n", len(cfg.SparqlEndpoints))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printField(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}

// newLogger builds the root logger around a [slog.LevelVar] so a config hot
// reload can change the active log level without replacing the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	var levelVar slog.LevelVar
	levelVar.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar})), &levelVar
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyConfigDiff pushes a reloaded config's changed, hot-reloadable fields
// into the already-running application (spec §6): log level, retrieval
// tunables, and enhancement weights/budget. storage.type and models.* are
// excluded by [config.Diff] itself — those require a process restart.
func applyConfigDiff(application *app.App, diff config.ConfigDiff, newCfg *config.Config, logLevel *slog.LevelVar) {
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("config reload: log level updated", "level", diff.NewLogLevel)
	}

	if diff.MemoryChanged {
		opts := retrieval.DefaultOptions()
		if newCfg.Memory.SimilarityThreshold != 0 {
			opts.SimilarityThreshold = newCfg.Memory.SimilarityThreshold
		}
		if newCfg.Memory.ConceptWeight != 0 {
			opts.ConceptWeight = newCfg.Memory.ConceptWeight
		}
		opts.Dimension = newCfg.Memory.Dimension
		application.Manager().UpdateRetrievalOptions(opts)
		slog.Info("config reload: retrieval tunables updated")
	}

	if diff.EnhancementsChanged {
		if enhancer := application.Enhancer(); enhancer != nil {
			opts := enhance.DefaultOptions()
			if newCfg.Enhancements.MaxCombinedContextLength != 0 {
				opts.MaxCombinedChars = newCfg.Enhancements.MaxCombinedContextLength
			}
			opts.Concurrent = newCfg.Enhancements.Concurrent
			opts.FallbackOnError = newCfg.Enhancements.FallbackOnError
			if len(newCfg.Enhancements.Weights) > 0 {
				opts.Weights = newCfg.Enhancements.Weights
			}
			enhancer.UpdateOptions(opts)
			slog.Info("config reload: enhancement weights updated")
		} else {
			slog.Warn("config reload: enhancements changed but no coordinator is running — enabling/disabling pipelines requires a restart")
		}
	}

	if diff.SparqlEndpointsChanged {
		slog.Warn("config reload: sparqlEndpoints changed — reconnecting to a new endpoint set requires a restart")
	}
}
