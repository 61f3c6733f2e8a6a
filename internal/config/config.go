// Package config handles loading application configuration. Values come from
// an optional YAML file (CONFIG_FILE) and are then overridden by environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Populated at startup and
// passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `yaml:"env"`

	// Port is the HTTP listen port of the web frontend (default: 8080).
	Port int `yaml:"port"`

	// BaseURL is the public-facing URL used for CORS and absolute links.
	BaseURL string `yaml:"base_url"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	// Empty means debug in development and info otherwise.
	LogLevel string `yaml:"log_level"`

	// TrustedProxies lists CIDRs whose forwarding headers are believed.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// Database holds MariaDB connection settings.
	Database DatabaseConfig `yaml:"database"`

	// Redis holds Redis connection settings.
	Redis RedisConfig `yaml:"redis"`

	// Auth holds session and auth API settings.
	Auth AuthConfig `yaml:"auth"`

	// Audit controls the auth event log.
	Audit AuditConfig `yaml:"audit"`

	// DevAuth configures the bundled development auth API.
	DevAuth DevAuthConfig `yaml:"devauth"`
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string `yaml:"host"`

	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// URL, when set, bypasses the individual fields.
	URL string `yaml:"url"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// MigrationsPath is the directory holding *.up.sql / *.down.sql files.
	// Empty disables automatic migrations.
	MigrationsPath string `yaml:"migrations_path"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built with the driver's
// Config.FormatDSN() so special characters in passwords are escaped.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `yaml:"url"`
}

// AuthConfig holds session and external auth API settings.
type AuthConfig struct {
	// SecretKey signs the session cookie (32+ characters in production).
	SecretKey string `yaml:"secret_key"`

	// SessionTTL is how long an idle server session survives in Redis.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// APIURL is the base URL of the external authentication API.
	APIURL string `yaml:"api_url"`

	// APITimeout bounds each call to the auth API.
	APITimeout time.Duration `yaml:"api_timeout"`

	// RevalidateInterval is how long a session is trusted before the route
	// guard re-checks its token against the API. Zero disables revalidation.
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`

	// SignOutNotifyTimeout bounds the background logout call to the API.
	SignOutNotifyTimeout time.Duration `yaml:"signout_notify_timeout"`

	// SubmitLockTTL caps how long a login/signup submission holds the
	// per-session in-flight lock.
	SubmitLockTTL time.Duration `yaml:"submit_lock_ttl"`
}

// AuditConfig toggles the MariaDB-backed auth event log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DevAuthConfig configures cmd/devauth, the local stand-in for the
// external auth API.
type DevAuthConfig struct {
	Port       int           `yaml:"port"`
	SigningKey string        `yaml:"signing_key"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// defaults returns the development defaults before any file or env overlay.
func defaults() *Config {
	return &Config{
		Env:     "development",
		Port:    8080,
		BaseURL: "http://localhost:8080",
		TrustedProxies: []string{
			"127.0.0.0/8",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
			"fd00::/8",
		},
		Database: DatabaseConfig{
			Host:            "localhost:3306",
			User:            "authportal",
			Password:        "authportal",
			Name:            "authportal",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrationsPath:  "db/migrations",
		},
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		Auth: AuthConfig{
			SessionTTL:           720 * time.Hour,
			APITimeout:           10 * time.Second,
			RevalidateInterval:   5 * time.Minute,
			SignOutNotifyTimeout: 5 * time.Second,
			SubmitLockTTL:        30 * time.Second,
		},
		Audit: AuditConfig{Enabled: true},
		DevAuth: DevAuthConfig{
			Port:     8081,
			TokenTTL: 24 * time.Hour,
		},
	}
}

// Load reads configuration from CONFIG_FILE (if set) and environment
// variables. Returns an error if required production settings are missing.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Provide dev-only defaults so local dev works without .env.
	if strings.TrimSpace(cfg.Auth.APIURL) == "" {
		cfg.Auth.APIURL = "http://localhost:8081"
	}
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}
	if cfg.DevAuth.SigningKey == "" {
		cfg.DevAuth.SigningKey = "dev-signing-key-do-not-use-in-production!"
	}

	return cfg, nil
}

// loadFile overlays YAML values onto cfg. Keys absent from the file keep
// their defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields with any environment variables that are set.
func (c *Config) applyEnv() {
	c.Env = getEnv("ENV", c.Env)
	c.Port = getEnvInt("PORT", c.Port)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.TrustedProxies = getEnvList("TRUSTED_PROXIES", c.TrustedProxies)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", c.Database.MigrationsPath)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.Auth.SecretKey = getEnv("SECRET_KEY", c.Auth.SecretKey)
	c.Auth.SessionTTL = getEnvDuration("SESSION_TTL", c.Auth.SessionTTL)
	c.Auth.APIURL = getEnv("AUTH_API_URL", c.Auth.APIURL)
	c.Auth.APITimeout = getEnvDuration("AUTH_API_TIMEOUT", c.Auth.APITimeout)
	c.Auth.RevalidateInterval = getEnvDuration("AUTH_REVALIDATE_INTERVAL", c.Auth.RevalidateInterval)
	c.Auth.SignOutNotifyTimeout = getEnvDuration("SIGNOUT_NOTIFY_TIMEOUT", c.Auth.SignOutNotifyTimeout)
	c.Auth.SubmitLockTTL = getEnvDuration("SUBMIT_LOCK_TTL", c.Auth.SubmitLockTTL)

	c.Audit.Enabled = getEnvBool("AUDIT_ENABLED", c.Audit.Enabled)

	c.DevAuth.Port = getEnvInt("DEVAUTH_PORT", c.DevAuth.Port)
	c.DevAuth.SigningKey = getEnv("DEVAUTH_SIGNING_KEY", c.DevAuth.SigningKey)
	c.DevAuth.TokenTTL = getEnvDuration("DEVAUTH_TOKEN_TTL", c.DevAuth.TokenTTL)
}

// validate enforces production requirements. Case-insensitive check catches
// common variants like "Production" and "prod".
func (c *Config) validate() error {
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Auth.APITimeout <= 0 {
		return fmt.Errorf("AUTH_API_TIMEOUT must be positive")
	}
	if !c.IsProduction() {
		return nil
	}
	if strings.TrimSpace(c.Auth.APIURL) == "" {
		return fmt.Errorf("AUTH_API_URL is required in production")
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required in production")
	}
	if len(c.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
