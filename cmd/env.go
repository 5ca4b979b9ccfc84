package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/cache"
	"github.com/sells-group/visibility-cli/internal/discovery"
	"github.com/sells-group/visibility-cli/internal/insight"
	"github.com/sells-group/visibility-cli/internal/orchestrator"
	"github.com/sells-group/visibility-cli/internal/pipeline"
	"github.com/sells-group/visibility-cli/internal/scoring"
	"github.com/sells-group/visibility-cli/internal/store"
	anthropicpkg "github.com/sells-group/visibility-cli/pkg/anthropic"
	"github.com/sells-group/visibility-cli/pkg/openaichat"
)

// appEnv holds the initialized store, clients, and services shared by the
// serve and analyze commands.
type appEnv struct {
	Store     store.Store
	Machine   *pipeline.Machine
	Artifacts *cache.Manager
	Discovery *discovery.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, model clients, orchestrator, and pipeline.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	registry := orchestrator.DefaultRegistry()
	if cfg.Analysis.RegistryPath != "" {
		registry, err = orchestrator.LoadRegistry(cfg.Analysis.RegistryPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	providers := map[string]orchestrator.ProviderClient{
		orchestrator.ProviderAnthropic: orchestrator.NewAnthropicProvider(anthropicClient),
	}
	if cfg.OpenAI.Key != "" {
		providers[orchestrator.ProviderOpenAI] = orchestrator.NewChatProvider(openaichat.NewClient(
			cfg.OpenAI.Key,
			openaichat.WithBaseURL(cfg.OpenAI.BaseURL),
			openaichat.WithModel(cfg.OpenAI.Model),
		))
	} else {
		zap.L().Warn("VISIBILITY_OPENAI_KEY not set, openai models disabled")
	}
	if cfg.Perplexity.Key != "" {
		providers[orchestrator.ProviderPerplexity] = orchestrator.NewChatProvider(openaichat.NewClient(
			cfg.Perplexity.Key,
			openaichat.WithBaseURL(cfg.Perplexity.BaseURL),
			openaichat.WithModel(cfg.Perplexity.Model),
		))
	} else {
		zap.L().Warn("VISIBILITY_PERPLEXITY_KEY not set, perplexity models disabled")
	}

	scorer := scoring.NewClaudeScorer(anthropicClient, cfg.Analysis.JudgeModel)
	batcher := orchestrator.New(registry, providers, scorer, cfg.Orchestrator)

	insights := insight.NewGenerator(anthropicClient, cfg.Analysis.InsightModel)
	artifacts := cache.NewManager(st, insights, insights, insights)
	machine := pipeline.NewMachine(st, batcher, artifacts, nil)

	gen := discovery.NewGenerator(anthropicClient, cfg.Analysis.InsightModel)
	svc := discovery.NewService(st, discovery.NewHTTPExtractor(), gen, gen)

	return &appEnv{
		Store:     st,
		Machine:   machine,
		Artifacts: artifacts,
		Discovery: svc,
	}, nil
}
