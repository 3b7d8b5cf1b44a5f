package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Rana718/graftflow/internal/backup"
	"github.com/Rana718/graftflow/internal/config"
	"github.com/Rana718/graftflow/internal/connection"
	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/metrics"
	"github.com/Rana718/graftflow/internal/migrator"
	"github.com/Rana718/graftflow/internal/progress"
	"github.com/Rana718/graftflow/internal/schema"
	"github.com/Rana718/graftflow/internal/validation"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// app holds the engine instances one command invocation works with.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *database.Manager
	resolver     *connection.Resolver
	tracker      *progress.Tracker
	metrics      *metrics.Collector
	validator    *validation.Framework
	backup       *backup.Manager
	orchestrator *migrator.Orchestrator
	metricsOut   string
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	metricsOut, _ := cmd.Flags().GetString("metrics-out")

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         database.NewManager(logger),
		resolver:   connection.NewResolver(cfg.Connections, connection.Options{Logger: logger}),
		metrics:    metrics.NewCollector(),
		metricsOut: metricsOut,
	}
	a.tracker = progress.New(progress.Options{
		SuccessGrace: cfg.Progress.SuccessGrace,
		FailureGrace: cfg.Progress.FailureGrace,
		Logger:       logger,
	})
	a.validator = validation.New(validation.Options{
		Executor:    a.db,
		Tracker:     a.tracker,
		Metrics:     a.metrics,
		Logger:      logger,
		RuleTimeout: cfg.Validation.RuleTimeout,
	})
	if cfg.Validation.RulesFile != "" {
		n, err := a.validator.RegisterRulesFile(cfg.Validation.RulesFile)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to load validation rules: %w", err)
		}
		logger.Debug("custom validation rules registered", "file", cfg.Validation.RulesFile, "rules", n)
	}
	a.backup = backup.NewManager(a.db, cfg.BackupPath, logger)

	a.orchestrator, err = migrator.New(migrator.Dependencies{
		Resolver:  a.resolver,
		Comparer:  schema.NewComparer(a.db),
		Generator: schema.NewGenerator(),
		Executor:  a.db,
		Backup:    a.backup,
		Validator: a.validator,
		Tracker:   a.tracker,
		Metrics:   a.metrics,
		Logger:    logger,
		Engine:    cfg.Engine,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return a, nil
}

// close releases every connection and writes the metrics file when one was
// requested.
func (a *app) close() {
	if a.metricsOut != "" {
		if err := a.metrics.WriteTextfile(a.metricsOut); err != nil {
			color.Yellow("⚠️  Failed to write metrics: %v", err)
		}
	}
	a.tracker.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close connections", "error", err)
	}
}

func (a *app) requireConnection(id string) error {
	if _, ok := a.cfg.Connection(id); !ok {
		return fmt.Errorf("connection %q is not configured (known: %v)", id, a.cfg.ConnectionIDs())
	}
	return nil
}
