package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/costwarden/costwarden/pkg/approval"
	"github.com/costwarden/costwarden/pkg/config"
	"github.com/costwarden/costwarden/pkg/engine"
	"github.com/costwarden/costwarden/pkg/policy"
	"github.com/costwarden/costwarden/pkg/resilience"
	"github.com/costwarden/costwarden/pkg/safety"
	"github.com/costwarden/costwarden/pkg/stores"
	"github.com/costwarden/costwarden/pkg/telemetry"
)

// app wires the full pipeline for one command invocation.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	store     *stores.SQLiteStore
	limiter   *resilience.RateLimiter
	safety    *safety.Engine
	approvals *approval.Manager
	policies  *policy.Engine
	executor  *engine.Executor
	scheduler *engine.Scheduler
	watcher   *config.Watcher
}

// newApp builds the pipeline from the config file (or defaults).
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	telemetryCfg := cfg.Telemetry.ToTelemetry()
	if verbose {
		telemetryCfg.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	limiter := resilience.NewRateLimiter(cfg.Resilience.RateLimits, 0)
	recovery := resilience.NewRecoveryManager(
		resilience.RetryConfig{
			MaxRetries:   cfg.Resilience.MaxRetries,
			InitialDelay: cfg.Resilience.InitialDelay,
			Multiplier:   cfg.Resilience.Multiplier,
			MaxDelay:     cfg.Resilience.MaxDelay,
		},
		resilience.NewClassifier(),
		resilience.NewCircuitBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.BreakerFailureThreshold,
			SuccessThreshold: cfg.Resilience.BreakerSuccessThreshold,
			RecoveryTimeout:  cfg.Resilience.BreakerRecoveryTimeout,
		}),
		limiter,
		store,
		tel.Metrics,
		tel.Events,
		logger,
	)

	assessor := safety.NewAssessor(safety.AssessorConfig{
		MonthlyCostThreshold: cfg.Safety.MonthlyCostThreshold,
		ProductionTags:       cfg.Safety.ProductionTags,
		CriticalTags:         cfg.Safety.CriticalTags,
	})
	safetyEngine := safety.NewEngine(assessor, recovery, store, logger)

	approvals := approval.NewManager(approval.ManagerConfig{
		Routing:             approval.DefaultRoutingConfig(),
		SweepInterval:       cfg.Approval.SweepInterval,
		EscalationExtension: cfg.Approval.EscalationExtension,
	}, store, assessor, nil, tel.Metrics, tel.Events, logger)

	var policies *policy.Engine
	if cfg.Policy.Enabled {
		policies, err = policy.NewEngine(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
		}
		if cfg.Policy.Dir != "" {
			if err := policies.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
				return nil, fmt.Errorf("failed to load policies: %w", err)
			}
		}
	}

	executor := engine.NewExecutor(engine.Config{
		DryRun:            cfg.Engine.DryRun,
		MaxParallel:       cfg.Engine.MaxParallel,
		ItemTimeout:       cfg.Engine.ItemTimeout,
		SchedulerInterval: cfg.Engine.SchedulerInterval,
	}, safetyEngine, approvals, policies, store, simulatedMutation(logger), tel.Metrics, tel.Events, logger)

	scheduler := engine.NewScheduler(executor, store, tel.Metrics, logger)
	if _, err := scheduler.Restore(ctx); err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		telemetry: tel,
		store:     store,
		limiter:   limiter,
		safety:    safetyEngine,
		approvals: approvals,
		policies:  policies,
		executor:  executor,
		scheduler: scheduler,
	}, nil
}

// watchConfig applies hot-reloadable settings (rate limits) when the
// config file changes on disk. Only long-running commands call this.
func (a *app) watchConfig(ctx context.Context) error {
	if configPath == "" {
		return nil
	}
	a.watcher = config.NewWatcher(configPath, a.telemetry.Logger.Zerolog())
	return a.watcher.Watch(ctx, func(cfg *config.Config) error {
		for target, limit := range cfg.Resilience.RateLimits {
			a.limiter.SetLimit(target, limit)
		}
		return nil
	})
}

// Close winds the pipeline down.
func (a *app) Close(ctx context.Context) {
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.telemetry != nil {
		a.telemetry.Shutdown(ctx)
	}
}

// simulatedMutation stands in for a provider integration: it logs the
// mutation and reports success. Real deployments embed the engine as a
// library and supply their own MutatingOperation.
func simulatedMutation(logger zerolog.Logger) engine.MutatingOperation {
	mutationLogger := logger.With().Str("component", "mutator").Logger()
	return func(ctx context.Context, action engine.OptimizationAction) (*engine.MutationResult, error) {
		mutationLogger.Info().
			Str("resource_id", action.ResourceID).
			Str("operation", action.OperationKind).
			Msg("Simulated mutation")

		return &engine.MutationResult{
			Success: true,
			Details: map[string]interface{}{"simulated": true},
		}, nil
	}
}

// loadActions reads one or more optimization actions from a JSON file.
// The file may hold a single action object or an array.
func loadActions(path string) ([]engine.OptimizationAction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions file: %w", err)
	}

	var actions []engine.OptimizationAction
	if err := json.Unmarshal(data, &actions); err == nil {
		return actions, nil
	}

	var single engine.OptimizationAction
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse actions file: %w", err)
	}
	return []engine.OptimizationAction{single}, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
