package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/swapi-loader/internal/config"
	"github.com/Sternrassler/swapi-loader/pkg/logging"
)

func newSchemaCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the people table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile, opts.envFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.logLevel
			}

			setupLogging(cmd, cfg, uuid.NewString())
			logger := logging.NewLogger("storage")

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}

			logger.Info().Str("driver", cfg.Database.Driver).Str("table", cfg.Database.Table).Msg("Schema ensured")
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Table %s ready (%s)\n", cfg.Database.Table, cfg.Database.Driver)
			return nil
		},
	}
}
