package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   5432,
			Name:   "counter_app",
			User:   "postgres",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			IdleTimeout:     time.Second,
			ShutdownTimeout: time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins:  []string{"*"},
			GlobalRateLimit: 100,
			RateLimitWindow: time.Minute,
			APIKeyHeader:    "X-API-Key",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Counter: CounterConfig{DefaultName: "default"},
	}
}

func TestLoadProductionConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadProductionConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "default", cfg.Counter.DefaultName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Admin.APIKeys)
	assert.False(t, cfg.IsProduction())
}

func TestLoadProductionConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "counter.db")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("ADMIN_API_KEYS", " first-admin-key-0001 , second-admin-key-002 ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadProductionConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "counter.db", cfg.Database.DSN)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, []string{"first-admin-key-0001", "second-admin-key-002"}, cfg.Admin.APIKeys)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
}

func TestLoadProductionConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COUNTER_DEFAULT_NAME=from_env_file\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("COUNTER_DEFAULT_NAME") })

	cfg, err := LoadProductionConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "from_env_file", cfg.Counter.DefaultName)
	// variables already present in the environment win over .env
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadProductionConfigFlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	require.NoError(t, flags.Parse([]string{"--port=7070"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("SERVER_PORT", flags.Lookup("port")))

	cfg, err := LoadProductionConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadProductionConfigInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("LOG_LEVEL", "verbose")

	cfg, err := LoadProductionConfig(viper.New())
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DB_DRIVER must be one of")
	assert.Contains(t, err.Error(), "LOG_LEVEL must be one of")
}

func TestValidateProductionConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ProductionConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *ProductionConfig) {},
		},
		{
			name: "postgres dsn skips field checks",
			mutate: func(cfg *ProductionConfig) {
				cfg.Database.Host = ""
				cfg.Database.DSN = "postgres://u:p@db/counter"
			},
		},
		{
			name:    "sqlite without dsn",
			mutate:  func(cfg *ProductionConfig) { cfg.Database.Driver = "sqlite" },
			wantErr: "DB_DSN is required",
		},
		{
			name:    "bad server port",
			mutate:  func(cfg *ProductionConfig) { cfg.Server.Port = 70000 },
			wantErr: "SERVER_PORT must be between 1 and 65535",
		},
		{
			name: "credentials with wildcard origin",
			mutate: func(cfg *ProductionConfig) {
				cfg.Security.AllowCredentials = true
			},
			wantErr: "CORS_ALLOW_CREDENTIALS",
		},
		{
			name: "file logging without path",
			mutate: func(cfg *ProductionConfig) {
				cfg.Logging.Output = "file"
			},
			wantErr: "LOG_FILE_PATH is required",
		},
		{
			name: "cache without redis url",
			mutate: func(cfg *ProductionConfig) {
				cfg.Cache = CacheConfig{Enabled: true, DefaultTTL: time.Minute, HealthCheckInterval: time.Second}
			},
			wantErr: "CACHE_REDIS_URL is required",
		},
		{
			name:    "short admin key",
			mutate:  func(cfg *ProductionConfig) { cfg.Admin.APIKeys = []string{"short"} },
			wantErr: "ADMIN_API_KEYS entries must be at least 16 characters long",
		},
		{
			name:    "production without admin keys",
			mutate:  func(cfg *ProductionConfig) { cfg.Deployment.Environment = "production" },
			wantErr: "ADMIN_API_KEYS is required in production",
		},
		{
			name:    "empty default counter name",
			mutate:  func(cfg *ProductionConfig) { cfg.Counter.DefaultName = "" },
			wantErr: "COUNTER_DEFAULT_NAME is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := validConfig().Database
	cfg.Password = "secret"
	cfg.SSLMode = "disable"
	assert.Equal(t, "host=localhost port=5432 user=postgres password=secret dbname=counter_app sslmode=disable TimeZone=UTC", cfg.PostgresDSN())

	cfg.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.PostgresDSN())
}
