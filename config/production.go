// Package config loads and validates the application configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/amirphl/counter-app/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
	Counter    CounterConfig    `json:"counter"`
	Admin      AdminConfig      `json:"admin"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"` // postgres, sqlite
	DSN             string        `json:"dsn"`    // sqlite file path, or a full postgres DSN overriding the fields below
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// PostgresDSN returns the connection string used by the postgres driver
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

// Address returns host:port for the HTTP listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SecurityConfig struct {
	// HSTS
	HSTSMaxAge int `json:"hsts_max_age"`

	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Content Security
	CSPPolicy      string `json:"csp_policy"`
	XFrameOptions  string `json:"x_frame_options"`
	ReferrerPolicy string `json:"referrer_policy"`

	APIKeyHeader string `json:"api_key_header"`
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Format           string `json:"format"` // json, console
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`
	EnableAccessLog  bool   `json:"enable_access_log"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled             bool          `json:"enabled"`
	RedisURL            string        `json:"redis_url"`
	RedisDB             int           `json:"redis_db"`
	RedisPassword       string        `json:"redis_password"`
	RedisPrefix         string        `json:"redis_prefix"`
	DefaultTTL          time.Duration `json:"default_ttl"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

type CounterConfig struct {
	DefaultName string `json:"default_name"`
}

type AdminConfig struct {
	APIKeys []string `json:"-"`
}

// LoadProductionConfig reads .env, then environment variables, then any flags
// already bound to v. A nil v uses a fresh viper instance.
func LoadProductionConfig(v *viper.Viper) (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()
	e := envReader{v: v}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Driver:          e.String("DB_DRIVER", "postgres"),
			DSN:             e.String("DB_DSN", ""),
			Host:            e.String("DB_HOST", "localhost"),
			Port:            e.Int("DB_PORT", 5432),
			Name:            e.String("DB_NAME", "counter_app"),
			User:            e.String("DB_USER", "postgres"),
			Password:        e.String("DB_PASSWORD", ""),
			SSLMode:         e.String("DB_SSL_MODE", "disable"),
			MaxOpenConns:    e.Int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.Int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.Duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: e.Duration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    e.Bool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   e.Duration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              e.String("SERVER_HOST", "0.0.0.0"),
			Port:              e.Int("SERVER_PORT", 8080),
			ReadTimeout:       e.Duration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:      e.Duration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:       e.Duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:   e.Duration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         e.Int("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			ProxyHeader:       e.String("SERVER_PROXY_HEADER", ""),
			EnableCompression: e.Bool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			HSTSMaxAge:       e.Int("HSTS_MAX_AGE", 31536000), // 1 year
			AllowedOrigins:   e.StringSlice("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods:   e.StringSlice("CORS_ALLOWED_METHODS", "GET,POST,HEAD,OPTIONS"),
			AllowedHeaders:   e.StringSlice("CORS_ALLOWED_HEADERS", "Origin,Content-Type,Accept,X-Request-ID,X-API-Key"),
			AllowCredentials: e.Bool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:       e.Int("CORS_MAX_AGE", utils.CORSMaxAge),
			GlobalRateLimit:  e.Int("GLOBAL_RATE_LIMIT", 600),
			RateLimitWindow:  e.Duration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CSPPolicy:        e.String("CSP_POLICY", "default-src 'self'; style-src 'self' 'unsafe-inline'; form-action 'self'; frame-ancestors 'none';"),
			XFrameOptions:    e.String("X_FRAME_OPTIONS", "DENY"),
			ReferrerPolicy:   e.String("REFERRER_POLICY", "strict-origin-when-cross-origin"),
			APIKeyHeader:     e.String("API_KEY_HEADER", "X-API-Key"),
		},
		Logging: LoggingConfig{
			Level:            e.String("LOG_LEVEL", "info"),
			Format:           e.String("LOG_FORMAT", "json"),
			Output:           e.String("LOG_OUTPUT", "stdout"),
			FilePath:         e.String("LOG_FILE_PATH", "logs/counter-app.log"),
			MaxSize:          e.Int("LOG_MAX_SIZE", 100),
			MaxBackups:       e.Int("LOG_MAX_BACKUPS", 5),
			MaxAge:           e.Int("LOG_MAX_AGE", 30),
			Compress:         e.Bool("LOG_COMPRESS", true),
			EnableCaller:     e.Bool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: e.Bool("LOG_ENABLE_STACKTRACE", false),
			EnableAccessLog:  e.Bool("LOG_ENABLE_ACCESS_LOG", true),
		},
		Metrics: MetricsConfig{
			Enabled: e.Bool("METRICS_ENABLED", true),
			Path:    e.String("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:             e.Bool("CACHE_ENABLED", false),
			RedisURL:            e.String("CACHE_REDIS_URL", "redis://localhost:6379/0"),
			RedisDB:             e.Int("CACHE_REDIS_DB", 0),
			RedisPassword:       e.String("REDIS_PASSWORD", ""),
			RedisPrefix:         e.String("CACHE_REDIS_PREFIX", "counter-app:"),
			DefaultTTL:          e.Duration("CACHE_DEFAULT_TTL", 10*time.Minute),
			HealthCheckInterval: e.Duration("CACHE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Deployment: DeploymentConfig{
			Environment: e.String("APP_ENV", "development"),
			Version:     e.String("APP_VERSION", "1.0.0"),
			CommitHash:  e.String("COMMIT_HASH", ""),
			BuildTime:   e.String("BUILD_TIME", ""),
		},
		Counter: CounterConfig{
			DefaultName: e.String("COUNTER_DEFAULT_NAME", utils.DefaultCounterName),
		},
		Admin: AdminConfig{
			APIKeys: e.StringSlice("ADMIN_API_KEYS", ""),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV selects the production profile
func (c *ProductionConfig) IsProduction() bool {
	return c.Deployment.Environment == "production"
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// godotenv.Load never overrides variables that are already set
	return godotenv.Load(path)
}

// envReader registers each default with viper and reads the key back, so
// flags bound to the same key take precedence over the environment.
type envReader struct {
	v *viper.Viper
}

func (e envReader) String(key, defaultValue string) string {
	e.v.SetDefault(key, defaultValue)
	return strings.TrimSpace(e.v.GetString(key))
}

func (e envReader) Int(key string, defaultValue int) int {
	e.v.SetDefault(key, defaultValue)
	return e.v.GetInt(key)
}

func (e envReader) Bool(key string, defaultValue bool) bool {
	e.v.SetDefault(key, defaultValue)
	return e.v.GetBool(key)
}

func (e envReader) Duration(key string, defaultValue time.Duration) time.Duration {
	e.v.SetDefault(key, defaultValue)
	return e.v.GetDuration(key)
}

// StringSlice reads a comma separated list
func (e envReader) StringSlice(key, defaultValue string) []string {
	e.v.SetDefault(key, defaultValue)
	return utils.SplitAndTrim(e.v.GetString(key))
}

// ValidateProductionConfig validates critical configuration values
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Validate database configuration
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.DSN == "" {
			if cfg.Database.Host == "" {
				errs = append(errs, "DB_HOST is required")
			}
			if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
				errs = append(errs, "DB_PORT must be between 1 and 65535")
			}
			if cfg.Database.Name == "" {
				errs = append(errs, "DB_NAME is required")
			}
			if cfg.Database.User == "" {
				errs = append(errs, "DB_USER is required")
			}
		}
	case "sqlite":
		if cfg.Database.DSN == "" {
			errs = append(errs, "DB_DSN is required when DB_DRIVER is sqlite")
		}
	default:
		errs = append(errs, "DB_DRIVER must be one of: [postgres sqlite]")
	}
	if cfg.Database.MaxOpenConns < 0 || cfg.Database.MaxIdleConns < 0 {
		errs = append(errs, "DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if cfg.Server.IdleTimeout <= 0 {
		errs = append(errs, "SERVER_IDLE_TIMEOUT must be positive")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Validate security configuration
	if cfg.Security.AllowCredentials && slices.Contains(cfg.Security.AllowedOrigins, "*") {
		errs = append(errs, "CORS_ALLOW_CREDENTIALS cannot be used with a wildcard CORS_ALLOWED_ORIGINS")
	}
	if cfg.Security.GlobalRateLimit <= 0 {
		errs = append(errs, "GLOBAL_RATE_LIMIT must be positive")
	}
	if cfg.Security.RateLimitWindow <= 0 {
		errs = append(errs, "RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.Security.APIKeyHeader == "" {
		errs = append(errs, "API_KEY_HEADER is required")
	}

	// Validate logging configuration
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
	}
	validFormats := []string{"json", "console"}
	if !slices.Contains(validFormats, cfg.Logging.Format) {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be one of: %v", validFormats))
	}
	validOutputs := []string{"stdout", "file", "both"}
	if !slices.Contains(validOutputs, cfg.Logging.Output) {
		errs = append(errs, fmt.Sprintf("LOG_OUTPUT must be one of: %v", validOutputs))
	} else if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errs = append(errs, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisURL == "" {
			errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled")
		}
		if cfg.Cache.DefaultTTL <= 0 {
			errs = append(errs, "CACHE_DEFAULT_TTL must be positive")
		}
		if cfg.Cache.HealthCheckInterval <= 0 {
			errs = append(errs, "CACHE_HEALTH_CHECK_INTERVAL must be positive")
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "METRICS_PATH must start with /")
	}

	// Validate counter configuration
	if cfg.Counter.DefaultName == "" {
		errs = append(errs, "COUNTER_DEFAULT_NAME is required")
	}
	if len(cfg.Counter.DefaultName) > utils.MaxCounterNameLength {
		errs = append(errs, fmt.Sprintf("COUNTER_DEFAULT_NAME must be at most %d characters", utils.MaxCounterNameLength))
	}

	for _, key := range cfg.Admin.APIKeys {
		if len(key) < 16 {
			errs = append(errs, "ADMIN_API_KEYS entries must be at least 16 characters long")
			break
		}
	}
	if cfg.Deployment.Environment == "production" && len(cfg.Admin.APIKeys) == 0 {
		errs = append(errs, "ADMIN_API_KEYS is required in production")
	}

	// Return validation errors if any
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
