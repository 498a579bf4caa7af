// Command ledger runs the interactive bookkeeping console.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/console"
	"ledger/internal/log"
)

func main() {
	// Logs go to stderr so they do not interleave with the menus.
	cfg, logger := cli.LoadAndValidateConfig(os.Stderr, (*config.Config).Validate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.Bootstrap(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err)
		}
	}()

	c := console.New(os.Stdin, os.Stdout, console.Deps{
		Accounts: app.Accounts,
		Taxonomy: app.Taxonomy,
		Ledger:   app.Ledger,
		Logger:   logger.WithComponent(log.ComponentConsole),
	})
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Console stopped", log.FieldError, err)
		os.Exit(1)
	}
}
