package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"agentchain/backend/internal/config"
	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/migration"
	"agentchain/backend/internal/repository"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(m *migration.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(m *migration.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(m *migration.Migrator) error {
				return printVersion(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, configPath string, fn func(m *migration.Migrator) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Log)
	defer logger.Sync()

	repo, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	m, err := repository.NewMigrator(repo)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d", version)
	if dirty {
		cmd.Print(" (dirty)")
	}
	cmd.Println()
	return nil
}
