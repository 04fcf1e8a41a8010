// Package config loads appsettings.json and COOKBOOK_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cookbook/internal/core/apperror"
)

// EnvPrefix prefixes environment overrides: COOKBOOK_DATABASE_PROVIDER,
// COOKBOOK_CONNECTIONSTRINGS_DEFAULTCONNECTION, ...
const EnvPrefix = "COOKBOOK"

// Supported providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
)

// Config is the application configuration.
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Journal  JournalConfig

	v *viper.Viper
}

// DatabaseConfig selects and tunes the backend.
type DatabaseConfig struct {
	// Provider is "sqlite" or "postgres".
	Provider string
	// Connection names the entry of ConnectionStrings to use.
	Connection string

	StatementTimeout time.Duration
	Pool             PoolConfig
}

// PoolConfig tunes the PostgreSQL pool.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level       string
	Development bool
	// LogStatements logs every generated statement at info level.
	LogStatements bool
}

// JournalConfig configures the change journal.
type JournalConfig struct {
	Enabled           bool
	CompressThreshold int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.provider", ProviderSQLite)
	v.SetDefault("database.connection", "DefaultConnection")
	v.SetDefault("database.statementtimeout", "30s")
	v.SetDefault("database.pool.maxconns", 10)
	v.SetDefault("database.pool.minconns", 1)
	v.SetDefault("database.pool.maxconnlifetime", "1h")
	v.SetDefault("database.pool.maxconnidletime", "30m")
	v.SetDefault("database.pool.healthcheckperiod", "1m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.logstatements", false)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.compressthreshold", 10*1024)
	v.SetDefault("connectionstrings.defaultconnection", "cookbook.db")
}

// Load reads the JSON file at path. An empty path looks for appsettings.json
// in the working directory; a missing default file is not an error.
// overrides are applied last, keyed like "database.provider".
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("appsettings")
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Provider:         strings.ToLower(v.GetString("database.provider")),
			Connection:       v.GetString("database.connection"),
			StatementTimeout: v.GetDuration("database.statementtimeout"),
			Pool: PoolConfig{
				MaxConns:          v.GetInt32("database.pool.maxconns"),
				MinConns:          v.GetInt32("database.pool.minconns"),
				MaxConnLifetime:   v.GetDuration("database.pool.maxconnlifetime"),
				MaxConnIdleTime:   v.GetDuration("database.pool.maxconnidletime"),
				HealthCheckPeriod: v.GetDuration("database.pool.healthcheckperiod"),
			},
		},
		Logging: LoggingConfig{
			Level:         v.GetString("logging.level"),
			Development:   v.GetBool("logging.development"),
			LogStatements: v.GetBool("logging.logstatements"),
		},
		Journal: JournalConfig{
			Enabled:           v.GetBool("journal.enabled"),
			CompressThreshold: v.GetInt("journal.compressthreshold"),
		},
		v: v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConnectionString returns ConnectionStrings.<name>. Names are case-insensitive.
func (c *Config) ConnectionString(name string) string {
	return c.v.GetString("connectionstrings." + strings.ToLower(name))
}

// DSN is the connection string selected by Database.Connection.
func (c *Config) DSN() string {
	return c.ConnectionString(c.Database.Connection)
}

// Validate checks the provider and the selected connection string.
func (c *Config) Validate() error {
	switch c.Database.Provider {
	case ProviderSQLite, ProviderPostgres:
	default:
		return apperror.NewValidation(fmt.Sprintf("unsupported database provider %q", c.Database.Provider)).
			WithDetail("field", "Database.Provider")
	}
	if c.DSN() == "" {
		return apperror.NewValidation(fmt.Sprintf("connection string %q is not configured", c.Database.Connection)).
			WithDetail("field", "ConnectionStrings."+c.Database.Connection)
	}
	if c.Database.Pool.MinConns > c.Database.Pool.MaxConns {
		return apperror.NewValidation("Database.Pool.MinConns exceeds MaxConns").
			WithDetail("field", "Database.Pool.MinConns")
	}
	return nil
}
