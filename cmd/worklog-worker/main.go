package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"worklog/internal/amqp"
	"worklog/internal/backend"
	"worklog/internal/cli"
	"worklog/internal/config"
	"worklog/internal/log"
	"worklog/internal/sheets"
	gsheet "worklog/internal/sheets/google"
	"worklog/internal/sheets/memory"
	"worklog/internal/worker"
)

type backendOpener func(ctx context.Context, cfg backend.Config) (*backend.BackendResult, error)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	logger.Info("Starting worklog-worker")

	if err := run(cfg, logger, backend.NewFactory(logger).CreateBackend); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

// run owns every resource it opens and releases them before returning, so
// main can exit on the error it reports.
func run(cfg *config.Config, logger *log.Logger, open backendOpener) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the worker")
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	// The worker only consumes; it never publishes rule events itself.
	bcfg.AMQPURL = ""
	res, err := open(context.Background(), bcfg)
	if err != nil {
		return fmt.Errorf("initialize backend: %w", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	mirror, err := newMirror(cfg, logger)
	if err != nil {
		return err
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	mirrorWorker := worker.NewMirrorWorker(res.Store, mirror, cfg.ResyncInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeRuleChanges(gctx, mirrorWorker.HandleRuleChanged)
	})
	g.Go(func() error {
		return mirrorWorker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	return nil
}

func newMirror(cfg *config.Config, logger *log.Logger) (sheets.RuleMirror, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring rules in memory only")
		return memory.NewMirror(), nil
	}
	client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleRulesSheetName, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
