// Package cli provides common CLI initialization utilities shared by
// cmd/ledger, cmd/ledger-server and cmd/ledger-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/accounts"
	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/repository"
	"ledger/internal/taxonomy"
)

// SetupLogger initializes structured logging at level, writing to out, and
// sets it as the default logger.
func SetupLogger(level string, out io.Writer) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Output = out
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads .env and the environment, sets up logging and
// validates the result with validate. It exits the process on validation
// failure.
func LoadAndValidateConfig(out io.Writer, validate func(*config.Config) error) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel, out)
	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// App is the wired ledger: storage, repositories and services.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Backend  *backend.BackendResult
	Users    *repository.Users
	Accounts *accounts.Manager
	Taxonomy *taxonomy.Manager
	Ledger   *ledger.Service
	// AMQP is nil when AMQP_URL is unset or the broker was unreachable.
	AMQP *amqp.Client

	stopWatch context.CancelFunc
}

// Bootstrap opens the configured backend, provisions the administrator and
// the default categories, assigns IDs to legacy records and builds the
// ledger service. A broker that cannot be reached is logged and skipped.
func Bootstrap(ctx context.Context, logger *log.Logger, cfg *config.Config) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := bcfg.Validate(); err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Backend: res,
		Users:   repository.NewUsers(res.Store),
	}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	a.Taxonomy = taxonomy.NewManager(repository.NewTaxonomies(a.Backend.Store), logger.WithComponent(log.ComponentTaxonomy))
	if _, err := a.Taxonomy.Seed(ctx); err != nil {
		return err
	}

	a.Accounts = accounts.NewManager(a.Users, cfg.BcryptCost, logger.WithComponent(log.ComponentAccounts))
	if _, err := a.Accounts.EnsureAdmin(ctx); err != nil {
		return err
	}

	n, err := a.Users.AssignIDs(ctx)
	if err != nil {
		return fmt.Errorf("assign record ids: %w", err)
	}
	if n > 0 {
		logger.Info("Assigned IDs to legacy records", "count", n)
	}

	mode, err := ledger.ParseBudgetMode(cfg.BudgetMode)
	if err != nil {
		return err
	}
	opts := []ledger.Option{
		ledger.WithBudgetMode(mode),
		ledger.WithLogger(logger.WithComponent(log.ComponentLedger)),
	}
	if cfg.StatsCacheSize > 0 {
		opts = append(opts, ledger.WithStatsCache(cfg.StatsCacheSize, cfg.StatsCacheTTL))
	}
	if cfg.StrictCategories {
		opts = append(opts, ledger.WithCategoryCheck(a.Taxonomy))
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, ledger events will not be published", log.FieldError, err)
		} else {
			a.AMQP = client
			opts = append(opts, ledger.WithPublisher(client))
		}
	}

	a.Ledger = ledger.New(a.Users, opts...)

	if a.Backend.Watcher != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		a.stopWatch = cancel
		go func() {
			if err := a.Ledger.WatchStore(watchCtx, a.Backend.Watcher); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Store watcher stopped", log.FieldError, err)
			}
		}()
	}

	logger.Info("Ledger ready",
		"backend", cfg.Backend,
		"budget_mode", mode.String(),
		"strict_categories", cfg.StrictCategories,
		"amqp", a.AMQP != nil)
	return nil
}

// Close stops the watcher and releases the broker and the backend.
func (a *App) Close() error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	var errs []error
	if a.AMQP != nil {
		errs = append(errs, a.AMQP.Close())
	}
	if a.Backend != nil && a.Backend.Cleanup != nil {
		errs = append(errs, a.Backend.Cleanup())
	}
	return errors.Join(errs...)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
