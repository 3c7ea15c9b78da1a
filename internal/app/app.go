// Package app wires configuration into a ready orchestrator. The HTTP server,
// the MCP server and the CLI all build through it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"labmate/internal/config"
	"labmate/internal/domain/repositories"
	services "labmate/internal/domain/services/orchestration"
	"labmate/internal/repository/memory"
	"labmate/internal/repository/postgres"
	"labmate/internal/repository/sqlite"
	"labmate/internal/service/llm"
	"labmate/internal/service/orchestration"
	"labmate/internal/service/planning"
	"labmate/internal/service/workers"
)

// verificationAttempts bounds how often the customer id is re-asked.
const verificationAttempts = 3

// App holds the wired services and the resources they own.
type App struct {
	Config       *config.Config
	Orchestrator *orchestration.Orchestrator
	Store        repositories.CheckpointRepository
	Logger       *slog.Logger

	closers []func()
}

// Build creates every component selected by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	retriever, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	completer, err := buildCompleter(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	rules, err := planning.LoadDefaultRules()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load planner rules: %w", err)
	}
	var planner services.Planner = planning.NewRulePlanner(rules, logger)
	if cfg.Planner == config.PlannerLLM {
		if completer == nil {
			logger.Warn("LLM planner requested without an LLM provider, using rule planner")
		} else {
			planner = planning.NewLLMPlanner(completer, rules, planner, logger)
		}
	}

	registry, err := workers.NewDefaultRegistry(workers.Dependencies{
		Completer: completer,
		Retriever: retriever,
		TopK:      cfg.RetrievalTopK,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := orchestration.Deps{
		Store:   a.Store,
		Planner: planner,
		Workers: registry,
		Options: orchestration.OptionsFromConfig(cfg),
		Logger:  logger,
	}
	if cfg.VerifyCustomer {
		deps.Verification = orchestration.NewCustomerIDVerifier(verificationAttempts)
	}
	if cfg.PolishAnswers && completer != nil {
		deps.Polisher = llm.NewPolisher(completer)
	}

	a.Orchestrator, err = orchestration.New(deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("orchestrator ready",
		"checkpoint_backend", cfg.CheckpointBackend,
		"llm_provider", cfg.LLMProvider,
		"planner", cfg.Planner,
		"workers", len(registry.Names()),
		"retrieval", retriever != nil,
		"verify_customer", cfg.VerifyCustomer,
	)
	return a, nil
}

// buildStore opens the checkpoint backend. Only postgres provides retrieval.
func (a *App) buildStore(ctx context.Context) (services.Retriever, error) {
	cfg, logger := a.Config, a.Logger

	switch cfg.CheckpointBackend {
	case config.BackendPostgres:
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
			return nil, err
		}
		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		}
		txManager := postgres.NewTransactionManager(pool, logger)
		a.Store = postgres.NewCheckpointRepository(repoConfig, txManager)

		retriever, err := postgres.NewDocumentRetriever(pool, cfg.RetrievalFunction, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected", "table_prefix", cfg.TablePrefix)
		return retriever, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.Store = store
		return nil, nil

	default:
		a.Store = memory.NewCheckpointStore()
		return nil, nil
	}
}

func buildCompleter(cfg *config.Config, logger *slog.Logger) (services.Completer, error) {
	if cfg.LLMProvider == config.ProviderNone {
		return nil, nil
	}
	factory := llm.NewProviderFactory(cfg)
	provider, err := factory.GetProvider(cfg.LLMProvider)
	if err != nil {
		return nil, fmt.Errorf("setup LLM provider: %w", err)
	}
	completer, err := llm.NewProviderCompleter(provider, factory.ModelFor(cfg.LLMProvider), logger)
	if err != nil {
		return nil, err
	}
	return completer, nil
}

// Close releases owned resources in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
