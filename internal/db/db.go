// Package db opens the postgres pool and applies schema migrations.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayrohq/ayro/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to postgres and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies all pending up migrations.
func Migrate(cfg config.PostgresConfig, log *slog.Logger) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if log != nil {
				log.Info("database schema up to date")
			}
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	if log != nil {
		version, _, _ := m.Version()
		log.Info("database migrated", slog.Uint64("version", uint64(version)))
	}
	return nil
}

// Rollback reverts the given number of migration steps.
func Rollback(cfg config.PostgresConfig, steps int, log *slog.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(cfg config.PostgresConfig) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, log *slog.Logger) {
	srcErr, dbErr := m.Close()
	if log == nil {
		return
	}
	if srcErr != nil {
		log.Warn("close migration source", slog.Any("error", srcErr))
	}
	if dbErr != nil {
		log.Warn("close migration database", slog.Any("error", dbErr))
	}
}

// migrateURL rewrites the DSN for the pgx/v5 migrate driver.
func migrateURL(cfg config.PostgresConfig) string {
	u, err := url.Parse(cfg.DSN())
	if err != nil {
		return cfg.DSN()
	}
	u.Scheme = "pgx5"
	return u.String()
}
