package cookbook

import (
	"context"
	"fmt"

	"cookbook/internal/core/store"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS dishes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title VARCHAR(100) NOT NULL,
		notes VARCHAR(1000),
		stars INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS ingredients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description VARCHAR(100) NOT NULL,
		unit_of_measure VARCHAR(50) NOT NULL,
		amount NUMERIC(5,2) NOT NULL,
		dish_id INTEGER NOT NULL REFERENCES dishes(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ingredients_dish_id ON ingredients (dish_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS dishes (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(100) NOT NULL,
		notes VARCHAR(1000),
		stars INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS ingredients (
		id BIGSERIAL PRIMARY KEY,
		description VARCHAR(100) NOT NULL,
		unit_of_measure VARCHAR(50) NOT NULL,
		amount NUMERIC(5,2) NOT NULL,
		dish_id BIGINT NOT NULL REFERENCES dishes(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS ix_ingredients_dish_id ON ingredients (dish_id)`,
}

// Schema returns the DDL statements for the named backend.
func Schema(backend string) ([]string, error) {
	switch backend {
	case "sqlite":
		return sqliteSchema, nil
	case "postgres":
		return postgresSchema, nil
	}
	return nil, fmt.Errorf("no cookbook schema for backend %q", backend)
}

// EnsureSchema creates the cookbook tables when they do not exist.
func EnsureSchema(ctx context.Context, b store.Backend) error {
	stmts, err := Schema(b.Name())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := b.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure cookbook schema: %w", err)
		}
	}
	return nil
}
