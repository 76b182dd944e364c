package main

import (
	"fmt"

	"stagehand/internal/config"
	"stagehand/internal/generation"
	"stagehand/internal/resilience"
	"stagehand/internal/store"
	"stagehand/internal/types"
	"stagehand/internal/units"
	"stagehand/internal/workflow"
)

// App bundles the wired components behind the CLI.
type App struct {
	Store   *store.LocalStore
	Service *workflow.Service
}

// Close releases held resources.
func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// buildApp wires the store, unit registry, and workflow service from
// configuration. needClient controls whether a generation client is
// required; read-only commands work without an API key.
func buildApp(cfg *config.Config, needClient bool) (*App, error) {
	st, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, err
	}

	var client types.GenerationClient
	if needClient {
		client, err = generation.NewClient(generation.Config{
			Provider:        cfg.Generation.Provider,
			APIKey:          cfg.Generation.APIKey,
			Model:           cfg.Generation.Model,
			Timeout:         cfg.GenerationTimeout(),
			MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("generation client: %w", err)
		}
	}

	registry := units.NewRegistry()
	if err := units.RegisterBuiltins(registry, client, st); err != nil {
		st.Close()
		return nil, err
	}
	for _, stage := range cfg.Workflow.Stages {
		if _, ok := registry.Get(stage); !ok {
			st.Close()
			return nil, fmt.Errorf("configured stage %q has no registered unit", stage)
		}
	}

	base, max := cfg.RetryDelays()
	opts := workflow.Options{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout(),
		},
		Retry: resilience.RetryPolicy{
			MaxRetries: cfg.Resilience.MaxRetries,
			BaseDelay:  base,
			MaxDelay:   max,
		},
		Gates:           cfg.Gates,
		Manifests:       cfg.Manifests,
		MustSucceed:     cfg.MustSucceedSet(),
		HandoffMinScore: cfg.Workflow.Handoff.MinScore,
		HandoffTTL:      cfg.HandoffTTL(),
		EventBuffer:     cfg.Workflow.EventBuffer,
	}

	svc := workflow.NewService(registry, st, st, cfg.Workflow.Stages, opts)
	return &App{Store: st, Service: svc}, nil
}
