package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentic-research/commentprep/internal/config"
	"github.com/agentic-research/commentprep/internal/retry"
	"github.com/agentic-research/commentprep/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $COMMENTPREP_CONFIG or ./config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:           "commentprep",
	Short:         "Load comment dumps into SQLite and sanitize their bodies",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal.
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "commentprep: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// runtimeEnv is what every store-backed command needs.
type runtimeEnv struct {
	cfg     config.Config
	logger  *slog.Logger
	cleanup func() error
}

func loadRuntime() (*runtimeEnv, error) {
	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &config.Error{Field: "log_level", Reason: err.Error()}
	}
	logger, cleanup, err := config.SetupLogger(level, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, logger: logger, cleanup: cleanup}, nil
}

func (e *runtimeEnv) close() {
	_ = e.cleanup()
}

func retryPolicy(cfg config.Config, logger *slog.Logger) retry.Policy {
	return retry.Policy{
		Attempts:  cfg.RetryAttempts,
		Delay:     cfg.RetryDelay,
		Retryable: store.IsBusy,
		Logger:    logger,
	}
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.SQLiteDBPath, store.Options{BusyTimeout: cfg.BusyTimeout})
}
