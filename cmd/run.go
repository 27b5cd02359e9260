package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentic-research/commentprep/internal/config"
	"github.com/agentic-research/commentprep/internal/index"
	"github.com/agentic-research/commentprep/internal/loader"
	"github.com/agentic-research/commentprep/internal/pipeline"
	"github.com/agentic-research/commentprep/internal/queue"
	"github.com/agentic-research/commentprep/internal/sanitize"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create the schema, then load and sanitize as configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadRuntime()
		if err != nil {
			return err
		}
		defer env.close()
		return runPhases(cmd.Context(), env.cfg, env.logger)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runPhases runs create-schema, the optional load, then the optional
// sanitize pass, in that fixed order.
func runPhases(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	logger.Info("creating database", "path", cfg.SQLiteDBPath)
	if err := s.CreateSchemaIfAbsent(ctx); err != nil {
		return err
	}

	policy := retryPolicy(cfg, logger)

	if cfg.FillDatabase {
		logger.Info("filling database", "input", cfg.InputFolderPath)
		ix := index.NewBuilder(s, index.Options{IfAbsent: cfg.IndexIfAbsent, Logger: logger})
		l := loader.New(s, ix, loader.Options{
			BatchSize:     cfg.BatchSize,
			Concurrency:   cfg.ThreadCount,
			SkipMalformed: cfg.SkipMalformedLines,
			Retry:         policy,
			Logger:        logger,
		})
		if _, err := l.LoadFolder(ctx, cfg.InputFolderPath); err != nil {
			return fmt.Errorf("fill database: %w", err)
		}
	}

	if cfg.SanitizeComments {
		logger.Info("sanitizing comments")
		q := queue.New(s, cfg.LeaseSize, policy)
		w := pipeline.NewWorker(s, sanitize.New(cfg.Sanitize), policy)
		sched := pipeline.NewScheduler(q, w, pipeline.Options{
			Workers:     cfg.ThreadCount,
			MaxInFlight: cfg.MaxInFlight,
			Logger:      logger,
		})
		if _, err := sched.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
