package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Strob0t/taskcrew/internal/adapter/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closer := setupLogger(cfg)
			defer closer.Close()

			if err := postgres.RunMigrations(cmd.Context(), cfg.Postgres.DSN); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default one step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closer := setupLogger(cfg)
			defer closer.Close()

			if err := postgres.RollbackMigrations(cmd.Context(), cfg.Postgres.DSN, steps); err != nil {
				return err
			}
			log.Info("migrations rolled back", "steps", steps)
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			v, err := postgres.MigrationVersion(cmd.Context(), cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
