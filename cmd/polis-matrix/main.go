// Package main is the entry point for the polis-matrix binary.
// It runs one matrix passphrase pipeline against the numbers service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-matrix/internal/governance"
	"github.com/polisai/polis-matrix/pkg/config"
	"github.com/polisai/polis-matrix/pkg/fetcher"
	"github.com/polisai/polis-matrix/pkg/logging"
	"github.com/polisai/polis-matrix/pkg/metrics"
	"github.com/polisai/polis-matrix/pkg/pipeline"
	"github.com/polisai/polis-matrix/pkg/remote"
	"github.com/polisai/polis-matrix/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-matrix
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-matrix",
		Short: "Compute the matrix passphrase",
		Long: `Fetches datasets A and B row by row from the numbers service, multiplies
them, digests the product and exchanges the digest for a passphrase.

Example:
  polis-matrix --size 1000 --concurrent --metrics-addr :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMatrix,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().String("base-url", "", "Numbers service base URL")
	rootCmd.Flags().IntP("size", "n", 0, "Matrix dimension")
	rootCmd.Flags().Bool("concurrent", false, "Fetch datasets A and B at the same time")
	rootCmd.Flags().String("init-method", "", "HTTP method for the init call (GET or POST)")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	return rootCmd
}

// buildConfig loads the config file and lets explicitly set flags override it.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("base-url") {
		cfg.Remote.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("size") {
		cfg.Run.Size, _ = flags.GetInt("size")
	}
	if flags.Changed("concurrent") {
		cfg.Run.ConcurrentDatasets, _ = flags.GetBool("concurrent")
	}
	if flags.Changed("init-method") {
		cfg.Remote.InitMethod, _ = flags.GetString("init-method")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Address, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runMatrix is the main entry point for the root command
func runMatrix(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return execute(ctx, cfg, logger, cmd.OutOrStdout())
}

// execute wires the run from cfg and prints its outcome to out.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	m := metrics.NewMetrics()
	if cfg.Metrics.Address != "" {
		srv, err := metrics.Serve(cfg.Metrics.Address, m, logger)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to stop metrics listener", "error", err)
			}
		}()
	}

	timeouts := governance.NewTimeoutManager(cfg.Timeouts())

	fanOut := cfg.Run.FetchConcurrency
	if fanOut <= 0 {
		fanOut = cfg.Run.Size
	}
	client, err := remote.New(remote.Options{
		BaseURL:         cfg.Remote.BaseURL,
		InitMethod:      cfg.Remote.InitMethod,
		MaxConnsPerHost: fanOut,
		Timeouts:        timeouts,
		Limiter:         governance.NewRateLimiter(cfg.RateLimit()),
		Metrics:         m,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	f := fetcher.New(client, fetcher.Options{
		Concurrency: cfg.Run.FetchConcurrency,
		Metrics:     m,
		Logger:      logger,
	})

	p := pipeline.New(pipeline.Config{
		Size:               cfg.Run.Size,
		ConcurrentDatasets: cfg.Run.ConcurrentDatasets,
		MultiplyWorkers:    cfg.Run.MultiplyWorkers,
	}, client, f, pipeline.Options{
		Timeouts: timeouts,
		Metrics:  m,
		Logger:   logger,
	})

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Passphrase: %s\n", res.Passphrase)
	fmt.Fprintf(out, "Time taken to fetch and multiply: %s\n", res.ComputeDuration())
	return nil
}
