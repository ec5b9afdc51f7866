package main

import (
	"context"
	"fmt"
	"os"

	"worklog/internal/backend"
	"worklog/internal/cli"
	"worklog/internal/config"
	"worklog/internal/core"
	"worklog/internal/log"
	"worklog/internal/services"
)

// app is what every subcommand works against.
type app struct {
	cfg       *config.Config
	store     backend.Store
	rules     *services.RuleService
	summaries *services.SummaryService
	logger    *log.Logger
	cleanup   func() error
}

type appOpener func(ctx context.Context) (*app, error)

func openApp(ctx context.Context) (*app, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// stdout carries command output, logs go to stderr.
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return newApp(cfg, res.Store, res.Publisher, logger, res.Cleanup), nil
}

func newApp(cfg *config.Config, store backend.Store, publisher services.RuleEventPublisher, logger *log.Logger, cleanup func() error) *app {
	// A one-shot process has nothing to cache.
	summaries := services.NewSummaryService(services.SummaryDeps{
		Rules:       store,
		Entries:     store,
		Projects:    store,
		Rates:       store,
		DefaultRate: cfg.DefaultRate,
		Logger:      logger,
	})
	return &app{
		cfg:       cfg,
		store:     store,
		rules:     services.NewRuleService(store, publisher, nil, logger),
		summaries: summaries,
		logger:    logger,
		cleanup:   cleanup,
	}
}

// operator is the identity rule edits from the CLI are attributed to. Shell
// access to the store already implies manager rights.
func operator(user string) core.AuthContext {
	return core.AuthContext{UserID: user, IsManager: true, Verified: true}
}
