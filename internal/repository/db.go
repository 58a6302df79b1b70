package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the initial schema migration. Subscriptions live
// inside the accounts row as one jsonb document: the account is the unit of
// consistency and is always saved whole.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS services (
			id          TEXT PRIMARY KEY,
			reference   TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS plans (
			id             TEXT PRIMARY KEY,
			reference      TEXT NOT NULL UNIQUE,
			name           TEXT NOT NULL,
			price          JSONB NOT NULL DEFAULT '{}',
			vat_included   BOOLEAN NOT NULL DEFAULT FALSE,
			allow_multiple BOOLEAN NOT NULL DEFAULT FALSE,
			position       INTEGER NOT NULL DEFAULT 0,
			date_created   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			date_updated   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS plan_services (
			plan_id    TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			service_id TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
			PRIMARY KEY (plan_id, service_id)
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			reference     TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL DEFAULT '',
			metadata      JSONB NOT NULL DEFAULT '{}',
			subscriptions JSONB NOT NULL DEFAULT '[]',
			date_created  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			date_updated  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			reference    TEXT NOT NULL UNIQUE,
			email        TEXT NOT NULL DEFAULT '',
			account_id   TEXT,
			date_created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			date_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_account_id ON users(account_id);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
