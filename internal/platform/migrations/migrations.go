// Package migrations applies the relational schema in order. Statements are
// idempotent so repeated application is safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS chat_users (
		id            TEXT PRIMARY KEY,
		handle        TEXT UNIQUE,
		wallet_address TEXT NOT NULL DEFAULT '',
		kyc_tier      INTEGER NOT NULL DEFAULT 0,
		pin_hash      TEXT NOT NULL DEFAULT '',
		cards         JSONB NOT NULL DEFAULT '[]',
		bank_accounts JSONB NOT NULL DEFAULT '[]',
		last_seen     TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		user_id       TEXT PRIMARY KEY,
		flow          TEXT NOT NULL,
		data          JSONB NOT NULL DEFAULT '{}',
		pin_attempts  INTEGER NOT NULL DEFAULT 0,
		last_activity TIMESTAMPTZ NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_operations (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		amount      BIGINT NOT NULL,
		token       TEXT NOT NULL DEFAULT '',
		recipient   TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL,
		attempts    INTEGER NOT NULL DEFAULT 0,
		tx_hash     TEXT NOT NULL DEFAULT '',
		fee         JSONB NOT NULL DEFAULT '{}',
		fail_reason TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_operations_state ON pending_operations (state)`,
	`CREATE TABLE IF NOT EXISTS payment_requests (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		reference  TEXT NOT NULL,
		link       TEXT NOT NULL DEFAULT '',
		verified   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_requests_user ON payment_requests (user_id, verified)`,
}

// Apply executes all migration statements against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
