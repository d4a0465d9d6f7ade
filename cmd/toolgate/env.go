package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ChamsBouzaiene/toolgate/internal/config"
	"github.com/ChamsBouzaiene/toolgate/internal/engine"
	"github.com/ChamsBouzaiene/toolgate/internal/mcpclient"
	"github.com/ChamsBouzaiene/toolgate/internal/providers"
	"github.com/ChamsBouzaiene/toolgate/internal/registry"
	"github.com/ChamsBouzaiene/toolgate/internal/retrieval"
	"github.com/ChamsBouzaiene/toolgate/internal/session"
	"github.com/ChamsBouzaiene/toolgate/internal/tools"
)

type runtimeOptions struct {
	Watch   bool
	Verbose bool
}

// runtimeEnv holds everything a session needs, built once per process.
type runtimeEnv struct {
	Settings   config.Settings
	Gateway    engine.InferenceGateway
	Registry   *registry.Registry
	Executor   engine.ToolExecutor
	Index      *retrieval.Index
	Sessions   *session.Store
	Summarizer *session.Summarizer

	hooks   engine.Hooks
	watcher *registry.CatalogWatcher
	closers []func() error
}

func (r *runtimeEnv) Close() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Printf("⚠️  Shutdown: %v", err)
		}
	}
}

func prepareRuntimeEnv(ctx context.Context, settings config.Settings, opts runtimeOptions) (*runtimeEnv, error) {
	gateway, model, err := providers.NewGateway(settings.Provider, os.Getenv)
	if err != nil {
		return nil, err
	}
	if settings.Model == "" {
		settings.Model = model
	}
	log.Printf("Using %s model %s", settings.Provider, settings.Model)

	env := &runtimeEnv{
		Settings:   settings,
		Gateway:    gateway,
		Sessions:   session.NewStore(settings.SessionDir()),
		Summarizer: session.NewSummarizer(gateway, settings.Model),
	}
	if opts.Verbose {
		env.hooks = append(env.hooks, engine.LoggerHook{L: log.Default()})
	}

	source, err := setupToolBackend(settings, env)
	if err != nil {
		return nil, err
	}
	if settings.CatalogFile != "" {
		source = registry.FileSource{Path: settings.CatalogFile}
	}
	env.Registry = registry.New(source)

	if settings.RetrievalEnabled {
		idx, err := retrieval.NewIndex(ctx, retrieval.IndexConfig{
			Dir:      settings.IndexDir(),
			Embedder: setupEmbedder(ctx, settings, env),
		})
		if err != nil {
			// the orchestrator offers the full catalog without a retriever
			log.Printf("⚠️  Failed to open tool index: %v (retrieval disabled)", err)
		} else {
			env.Index = idx
			env.closers = append(env.closers, idx.Close)
			env.Registry.OnSync(idx.Ingest)
		}
	}

	if _, err := env.Registry.Sync(ctx); err != nil {
		log.Printf("⚠️  %v (continuing with an empty catalog, use 'sync' to retry)", err)
	}

	if opts.Watch && settings.CatalogFile != "" {
		w, err := registry.NewCatalogWatcher(env.Registry, settings.CatalogFile, 0)
		if err != nil {
			env.Close()
			return nil, err
		}
		if err := w.Start(); err != nil {
			env.Close()
			return nil, err
		}
		env.watcher = w
		log.Printf("👀 Watching %s for catalog changes", settings.CatalogFile)
	}

	return env, nil
}

// setupToolBackend sets env.Executor and returns the matching catalog source.
func setupToolBackend(settings config.Settings, env *runtimeEnv) (registry.Source, error) {
	if settings.ToolBackend == "local" {
		ws, err := tools.NewWorkspace(settings.WorkspaceRoot)
		if err != nil {
			return nil, err
		}
		log.Printf("🧰 Serving built-in tools over %s", ws.Root())
		env.Executor = ws
		return ws, nil
	}

	client := mcpclient.New(mcpclient.TransportSpec{
		Command: settings.MCPCommand,
		Args:    settings.MCPArgs,
		URL:     settings.MCPURL,
	})
	env.Executor = client
	env.closers = append(env.closers, client.Close)
	return client, nil
}

// setupEmbedder returns nil when semantic search is off, which leaves the
// index ranking by keywords only.
func setupEmbedder(ctx context.Context, settings config.Settings, env *runtimeEnv) retrieval.Embedder {
	if settings.EmbeddingProvider != "openai" {
		log.Println("📊 Using keyword-only tool retrieval (set EMBEDDING_PROVIDER=openai for semantic search)")
		return nil
	}
	if settings.EmbeddingKey == "" {
		log.Println("⚠️  EMBEDDING_PROVIDER=openai but no API key is set, using keyword-only retrieval")
		return nil
	}

	var embedder retrieval.Embedder = retrieval.NewOpenAIEmbedder(settings.EmbeddingKey, settings.EmbeddingModel, os.Getenv("EMBEDDING_BASE_URL"))
	log.Printf("📊 Using OpenAI embeddings (%s) for tool retrieval", embedder.Model())

	if settings.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		cache, err := retrieval.NewRedisCache(pingCtx, settings.RedisAddr)
		if err != nil {
			log.Printf("⚠️  %v (embedding cache disabled)", err)
			return embedder
		}
		env.closers = append(env.closers, cache.Close)
		embedder = retrieval.NewCachedEmbedder(embedder, cache, 0)
		log.Printf("✅ Embedding cache at %s", settings.RedisAddr)
	}
	return embedder
}

// NewOrchestrator builds an orchestrator over the shared runtime, resuming
// state when given.
func (r *runtimeEnv) NewOrchestrator(state *engine.ConversationState) (*engine.Orchestrator, error) {
	return r.newOrchestrator(state)
}

func (r *runtimeEnv) newOrchestrator(state *engine.ConversationState, extra ...engine.Hook) (*engine.Orchestrator, error) {
	opts := []engine.Option{
		engine.WithHooks(r.hooks...),
		engine.WithHooks(extra...),
		engine.WithSystemPrompt(r.Settings.SystemPrompt),
	}
	if r.Index != nil {
		opts = append(opts, engine.WithRetriever(r.Index))
	}
	if state != nil {
		opts = append(opts, engine.WithState(state))
	}
	o, err := engine.New(r.Gateway, r.Registry, r.Executor, r.Settings.EngineConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return o, nil
}
