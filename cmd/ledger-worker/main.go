// Command ledger-worker consumes ledger events and reports budget overruns.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(os.Stdout, func(c *config.Config) error {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.AMQPURL == "" {
			return errors.New("AMQP_URL is required for the worker")
		}
		return nil
	})
	logger.Info("Starting ledger-worker")

	app, err := cli.Bootstrap(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err)
		}
	}()
	if app.AMQP == nil {
		logger.Error("AMQP broker unreachable", "url_set", cfg.AMQPURL != "")
		os.Exit(1)
	}

	watcher := worker.NewBudgetWatcher(func(ctx context.Context, username string) (core.Budget, error) {
		return app.Ledger.Budget(username).Budget(ctx)
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	if err := watcher.Run(ctx, app.AMQP); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Budget watcher failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	processed, alerts := watcher.Stats()
	logger.Info("Worker stopped", "processed", processed, "alerts", alerts)
}
