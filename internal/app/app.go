package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"f2b/internal/acquire"
	"f2b/internal/collection"
	"f2b/internal/config"
	"f2b/internal/discover"
	"f2b/internal/errorsink"
	"f2b/internal/llm"
	llmclient "f2b/internal/llm/client"
	"f2b/internal/llm/pricing"
	"f2b/internal/metrics"
	"f2b/internal/mockdata"
	"f2b/internal/packager"
	"f2b/internal/pipeline"
	"f2b/internal/priority"
	"f2b/internal/scan"
	"f2b/internal/schema"
	"f2b/internal/server"
	"f2b/internal/store/artifact"
	"f2b/internal/store/docstore"
	"f2b/internal/synth"
)

// App owns every long-lived dependency of a pipeline process.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics

	Discoverer   *discover.Discoverer
	Synthesizer  *synth.Synthesizer
	Orchestrator *pipeline.Orchestrator

	stores     *stores
	providers  []llm.CompletionProvider
	httpServer *http.Server
	closeOnce  sync.Once
	closeErr   error
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	st, err := initStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New(), stores: st}
	if c, ok := st.artifacts.(interface{ Metrics() artifact.MetricsSnapshot }); ok {
		a.Metrics.WatchArtifactCache(c.Metrics)
	}

	sink := errorsink.Multi{
		errorsink.Log{Logger: log},
		errorsink.NewDoc(st.docs, cfg.Storage.MongoDBName, cfg.Storage.ErrorCollection, log),
	}
	usage := llm.MultiSink{
		llm.NewUsageLedger(cfg.LLM.UsageLedger),
		llm.NewTraceFile(cfg.TraceDir),
		docstore.NewUsageSink(st.docs, cfg.Storage.MongoDBName, cfg.Storage.LLMUsageCollection, log),
		a.Metrics,
	}

	providers := map[string]llm.CompletionProvider{}
	for _, stage := range []string{"discovery", "schema", "priority", "codegen", "collection"} {
		p, err := a.provider(ctx, stage, usage)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		providers[stage] = p
	}

	templates, err := synth.NewFileTemplates(cfg.TemplateDir)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("app: templates: %w", err)
	}

	var coll collection.Generator = collection.Converter{}
	if cfg.CollectionMode == "llm" {
		coll = collection.NewLLMGenerator(providers["collection"], log)
	}

	a.Discoverer = discover.New(providers["discovery"], sink, scan.OptionsFromModes(cfg.Discovery.Modes, cfg.Discovery.MaxFiles), log)
	a.Synthesizer = synth.New(providers["codegen"], templates, log)
	a.Orchestrator = pipeline.New(pipeline.Stages{
		Acquirer:   acquire.New(cfg.ProjectsRoot, acquire.GitCloner{Depth: cfg.CloneDepth}, log),
		Discoverer: a.Discoverer,
		Annotator: schema.New(providers["schema"],
			mockdata.New(cfg.Schema.MockDataAPIURL, cfg.Schema.MockTimeout),
			st.docs, sink, log, schema.WithConcurrency(cfg.Schema.Concurrency)),
		Orderer:     priority.New(providers["priority"], log),
		Synthesizer: a.Synthesizer,
		Collection:  coll,
		Packager:    packager.New(st.artifacts, log),
	}, sink, a.Metrics, log)
	a.httpServer = &http.Server{
		Addr:    cfg.Port,
		Handler: h2c.NewHandler(a.Handler(), &http2.Server{}),
	}

	log.Info().
		Str("collection_mode", cfg.CollectionMode).
		Int("schema_concurrency", cfg.Schema.Concurrency).
		Msg("pipeline ready")
	return a, nil
}

// provider builds the backend for stage and wraps it with the shared middleware.
func (a *App) provider(ctx context.Context, stage string, usage llm.UsageSink) (llm.CompletionProvider, error) {
	name := a.Config.LLM.ProviderFor(stage)
	inner, err := llmclient.New(ctx, name, a.Config.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: %s provider: %w", stage, err)
	}
	a.providers = append(a.providers, inner)
	return llm.Wrap(inner,
		llm.WithLogging(a.Log.With().Str("llm_stage", stage).Logger()),
		llm.WithTracing(usage, pricing.Default()),
		llm.Retry(a.Config.LLM.RetryAttempts, a.Config.LLM.RetryDelay),
		llm.RateLimit(a.Config.LLM.RPS, a.Config.LLM.Burst),
	), nil
}

// Handler returns the HTTP API backed by the orchestrator.
func (a *App) Handler() http.Handler {
	return server.New(a.Orchestrator, a.Metrics.Handler(), a.Log,
		server.WithProjectsRoot(a.Config.ProjectsRoot),
		server.WithArtifacts(a.stores.artifacts),
	).Handler()
}

// Start serves the HTTP API with h2c until Shutdown.
func (a *App) Start() error {
	a.Log.Info().Str("addr", a.Config.Port).Msg("starting API server")
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and releases every dependency.
func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.httpServer.Shutdown(ctx), a.Close(ctx))
}

// Close releases providers and stores without touching the HTTP server.
// Calls after the first return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		for _, p := range a.providers {
			errs = append(errs, p.Close())
		}
		errs = append(errs, a.stores.close(ctx))
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
