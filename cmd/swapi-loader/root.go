package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/swapi-loader/internal/config"
	"github.com/Sternrassler/swapi-loader/internal/pipeline"
	"github.com/Sternrassler/swapi-loader/pkg/logging"
	"github.com/Sternrassler/swapi-loader/pkg/metrics"
)

// options are the command line overrides of the configuration.
type options struct {
	configFile  string
	envFile     string
	logLevel    string
	start       int
	end         int
	batchSize   int
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	var opts options

	rootCommand := &cobra.Command{
		Use:   "swapi-loader",
		Short: "Load SWAPI people with resolved films, homeworld, species, starships and vehicles into a table",
		Long: `swapi-loader fetches people by id from SWAPI, resolves their reference URLs
to display names and appends one row per person to the swapi_people table.

Without flags it loads ids 0..99 in batches of one into the Postgres database
described by POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_HOST, POSTGRES_PORT and
POSTGRES_DB (a .env file in the working directory is honoured).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoad(ctx, cmd, cfg)
		},
	}

	flags := rootCommand.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path (YAML)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file (default .env when present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	rootCommand.Flags().IntVar(&opts.start, "start", pipeline.DefaultStartID, "first person id")
	rootCommand.Flags().IntVar(&opts.end, "end", pipeline.DefaultEndID, "end of the id range (exclusive)")
	rootCommand.Flags().IntVar(&opts.batchSize, "batch-size", pipeline.DefaultBatchSize, "ids fetched and inserted together")
	rootCommand.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCommand.AddCommand(newSchemaCommand(&opts))

	return rootCommand
}

// loadConfig reads the configuration and applies the flags that were set.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile, opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("start") {
		cfg.Run.StartID = opts.start
	}
	if flags.Changed("end") {
		cfg.Run.EndID = opts.end
	}
	if flags.Changed("batch-size") {
		cfg.Run.BatchSize = opts.batchSize
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging configures zerolog for one invocation tagged with runID.
func setupLogging(cmd *cobra.Command, cfg *config.Config, runID string) zerolog.Logger {
	return logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
		Fields: map[string]string{"run_id": runID},
	})
}

// runLoad performs one full load and prints its summary.
func runLoad(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	runID := uuid.NewString()
	setupLogging(cmd, cfg, runID)
	logger := logging.NewLogger("pipeline")

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	deps, err := openDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	p := pipeline.New(deps.client, deps.store, pipeline.Config{
		StartID:           cfg.Run.StartID,
		EndID:             cfg.Run.EndID,
		BatchSize:         cfg.Run.BatchSize,
		FetchConcurrency:  cfg.Run.FetchConcurrency,
		InsertConcurrency: cfg.Run.InsertConcurrency,
	}, logger)

	summary, runErr := p.Run(ctx)
	printSummary(cmd.OutOrStdout(), runID, summary, runErr)
	return runErr
}
