package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appsettings.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeSettings(t, `{
		"ConnectionStrings": {
			"DefaultConnection": "postgres://cookbook@localhost:5432/cookbook",
			"Local": "local.db"
		},
		"Database": {
			"Provider": "Postgres",
			"StatementTimeout": "5s",
			"Pool": { "MaxConns": 4 }
		},
		"Logging": { "Level": "debug", "LogStatements": true }
	}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ProviderPostgres, cfg.Database.Provider)
	assert.Equal(t, "postgres://cookbook@localhost:5432/cookbook", cfg.DSN())
	assert.Equal(t, "local.db", cfg.ConnectionString("Local"))
	assert.Equal(t, 5*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, int32(4), cfg.Database.Pool.MaxConns)
	assert.Equal(t, int32(1), cfg.Database.Pool.MinConns)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.LogStatements)
	assert.True(t, cfg.Journal.Enabled)
}

func TestLoad_EnvAndOverrides(t *testing.T) {
	path := writeSettings(t, `{"ConnectionStrings": {"DefaultConnection": "file.db"}}`)
	t.Setenv("COOKBOOK_CONNECTIONSTRINGS_DEFAULTCONNECTION", "env.db")
	t.Setenv("COOKBOOK_LOGGING_LEVEL", "warn")

	cfg, err := Load(path, map[string]any{"logging.level": "error"})
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DSN())
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ProviderSQLite, cfg.Database.Provider)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)

	path := writeSettings(t, `{"Database": {"Provider": "oracle"}}`)
	_, err = Load(path, nil)
	assert.True(t, apperror.IsValidation(err))

	path = writeSettings(t, `{"Database": {"Connection": "Other"}}`)
	_, err = Load(path, nil)
	assert.True(t, apperror.IsValidation(err))
}
