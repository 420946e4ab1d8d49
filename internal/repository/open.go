package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"agentchain/backend/internal/config"
	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/migration"
)

// Open connects to the database selected by cfg.DB.Driver ("postgres" or
// "sqlite") and verifies the connection.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Repository, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	switch cfg.DB.Driver {
	case "", "postgres":
		logger.Debug("Initializing database connection", "driver", "postgres", "host", cfg.DB.Host, "name", cfg.DB.Name)
		poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to parse database config: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return NewPostgresStore(pool, logger), nil

	case "sqlite":
		logger.Debug("Initializing database connection", "driver", "sqlite", "path", cfg.DB.Path)
		db, err := OpenSQLite(cfg.DB.Path)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return NewSQLiteStore(db, logger), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DB.Driver)
	}
}

// NewMigrator returns a schema migrator bound to repo's connection.
func NewMigrator(repo Repository) (*migration.Migrator, error) {
	switch s := repo.(type) {
	case *PostgresStore:
		return migration.NewPostgres(s.db)
	case *SQLiteStore:
		return migration.NewSQLite(s.db)
	default:
		return nil, fmt.Errorf("no migrations for %T", repo)
	}
}
