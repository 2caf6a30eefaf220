package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schema is the full database schema. Statements are idempotent so the bot
// can run them at every startup; the test harness applies the same list.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		total_spent NUMERIC(12,2) NOT NULL DEFAULT 0,
		referrer_id BIGINT REFERENCES accounts(id),
		banned BOOLEAN NOT NULL DEFAULT FALSE,
		last_daily_claim TIMESTAMPTZ,
		last_scratch_claim TIMESTAMPTZ,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(12,2) NOT NULL,
		kind TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		type TEXT NOT NULL DEFAULT 'digital',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		content TEXT NOT NULL DEFAULT '',
		stock INT NOT NULL DEFAULT -1 CHECK (stock >= -1)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		status TEXT NOT NULL DEFAULT 'pending',
		fulfillment_data TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_account
		ON orders(account_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE TABLE IF NOT EXISTS promos (
		code TEXT PRIMARY KEY,
		reward NUMERIC(12,2) NOT NULL CHECK (reward > 0),
		max_usage INT NOT NULL DEFAULT -1 CHECK (max_usage >= -1),
		used_count INT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS promo_usage (
		code TEXT NOT NULL REFERENCES promos(code) ON DELETE CASCADE,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (code, account_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		description TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		reward NUMERIC(12,2) NOT NULL CHECK (reward > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS task_completions (
		task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (task_id, account_id)
	)`,
}

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}
	log.Info().Int("statements", len(schema)).Msg("Database schema up to date")
	return nil
}
