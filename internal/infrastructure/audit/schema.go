package audit

import (
	"context"
	"fmt"

	"cookbook/internal/core/store"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS change_journal (
		id VARCHAR(36) PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		transaction_id VARCHAR(36) NOT NULL,
		entity_type VARCHAR(100) NOT NULL,
		entity_key VARCHAR(200) NOT NULL,
		operation VARCHAR(10) NOT NULL,
		changes TEXT,
		changes_compressed BLOB,
		compression_algo VARCHAR(10) NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_change_journal_entity ON change_journal (entity_type, entity_key)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS change_journal (
		id VARCHAR(36) PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		transaction_id VARCHAR(36) NOT NULL,
		entity_type VARCHAR(100) NOT NULL,
		entity_key VARCHAR(200) NOT NULL,
		operation VARCHAR(10) NOT NULL,
		changes TEXT,
		changes_compressed BYTEA,
		compression_algo VARCHAR(10) NOT NULL,
		created_at VARCHAR(40) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_change_journal_entity ON change_journal (entity_type, entity_key)`,
}

// EnsureSchema creates the journal table when it does not exist.
func EnsureSchema(ctx context.Context, b store.Backend) error {
	var stmts []string
	switch b.Name() {
	case "sqlite":
		stmts = sqliteSchema
	case "postgres":
		stmts = postgresSchema
	default:
		return fmt.Errorf("no journal schema for backend %q", b.Name())
	}
	for _, stmt := range stmts {
		if _, err := b.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
	}
	return nil
}
