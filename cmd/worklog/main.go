package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"worklog/internal/backend"
	"worklog/internal/cache"
	"worklog/internal/cli"
	"worklog/internal/engine"
	apphttp "worklog/internal/http"
	"worklog/internal/log"
	"worklog/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	summaryCache := cache.NewLRUCache[engine.ProjectSummary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	janitor := cache.NewJanitor(logger)
	janitor.Register(summaryCache)
	janitor.Start(cfg.SummaryCacheTTL)

	store := res.Store
	summaries := services.NewSummaryService(services.SummaryDeps{
		Rules:       store,
		Entries:     store,
		Projects:    store,
		Rates:       store,
		Cache:       summaryCache,
		DefaultRate: cfg.DefaultRate,
		Logger:      logger,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Rules:              services.NewRuleService(store, res.Publisher, summaries, logger),
		Summaries:          summaries,
		Rates:              services.NewRateService(store, summaries, logger),
		Health:             store,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		janitor.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting worklog server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"rule_events", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		janitor.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
