// Package storage opens the configured store.Backend.
package storage

import (
	"context"
	"fmt"

	"cookbook/internal/config"
	"cookbook/internal/core/store"
	"cookbook/internal/infrastructure/storage/postgres"
	"cookbook/internal/infrastructure/storage/sqldb"
)

// Open connects to the backend selected by cfg.Database.Provider.
func Open(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Database.Provider {
	case config.ProviderSQLite:
		return sqldb.OpenSQLite(ctx, cfg.DSN())

	case config.ProviderPostgres:
		pc := postgres.DefaultPoolConfig(cfg.DSN())
		p := cfg.Database.Pool
		if p.MaxConns > 0 {
			pc.MaxConns = p.MaxConns
		}
		pc.MinConns = p.MinConns
		if p.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = p.MaxConnLifetime
		}
		if p.MaxConnIdleTime > 0 {
			pc.MaxConnIdleTime = p.MaxConnIdleTime
		}
		if p.HealthCheckPeriod > 0 {
			pc.HealthCheckPeriod = p.HealthCheckPeriod
		}

		opts := postgres.DefaultTxOptions()
		if cfg.Database.StatementTimeout > 0 {
			opts.StatementTimeout = cfg.Database.StatementTimeout
		}
		return postgres.Open(ctx, pc, opts)
	}
	return nil, fmt.Errorf("unsupported database provider %q", cfg.Database.Provider)
}
