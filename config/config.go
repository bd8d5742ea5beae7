// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Leave    LeaveConfig
	CORS     CORSConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Env       string
	Port      int
	LogLevel  string
	SeedUsers bool
}

type DatabaseConfig struct {
	Driver     string // sqlite | postgres
	SQLitePath string
	URL        string
}

// AuthConfig selects and configures the identity provider.
type AuthConfig struct {
	Mode       string // jwt | static
	JWTSecret  string
	AccessTTL  time.Duration
	StaticID   int64
	StaticRole auth.Role
}

// LeaveConfig holds the leave policy knobs.
type LeaveConfig struct {
	HoldPending bool
	Defaults    leave.Tally
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment and validates it.
func FromEnv() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{}

	port, err := getEnvInt("APP_PORT", 8080)
	collect(err)
	seed, err := getEnvBool("SEED_DEMO_USERS", false)
	collect(err)
	cfg.App = AppConfig{
		Env:       getEnv("APP_ENV", "development"),
		Port:      port,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		SeedUsers: seed,
	}

	cfg.Database = DatabaseConfig{
		Driver:     strings.ToLower(getEnv("LEAVE_DB_DRIVER", "sqlite")),
		SQLitePath: getEnv("SQLITE_PATH", "./data/leave.db"),
		URL:        getEnv("DATABASE_URL", ""),
	}

	ttl, err := getEnvDuration("JWT_ACCESS_TTL", 24*time.Hour)
	collect(err)
	staticID, err := getEnvInt("STATIC_USER_ID", 2)
	collect(err)
	staticRole, err := auth.ParseRole(getEnv("STATIC_USER_ROLE", "employee"))
	if err != nil {
		collect(fmt.Errorf("invalid STATIC_USER_ROLE: %w", err))
	}
	cfg.Auth = AuthConfig{
		Mode:       strings.ToLower(getEnv("AUTH_MODE", "jwt")),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		AccessTTL:  ttl,
		StaticID:   int64(staticID),
		StaticRole: staticRole,
	}

	hold, err := getEnvBool("LEAVE_HOLD_PENDING", true)
	collect(err)
	casual, err := getEnvInt("LEAVE_DEFAULT_CASUAL", leave.DefaultAllotment.Casual)
	collect(err)
	sick, err := getEnvInt("LEAVE_DEFAULT_SICK", leave.DefaultAllotment.Sick)
	collect(err)
	annual, err := getEnvInt("LEAVE_DEFAULT_ANNUAL", leave.DefaultAllotment.Annual)
	collect(err)
	cfg.Leave = LeaveConfig{
		HoldPending: hold,
		Defaults:    leave.Tally{Casual: casual, Sick: sick, Annual: annual},
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate returns the first configuration problem found.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.App.Port)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when LEAVE_DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported LEAVE_DB_DRIVER %q (use sqlite or postgres)", c.Database.Driver)
	}

	switch c.Auth.Mode {
	case "jwt":
		if len(c.Auth.JWTSecret) < 16 {
			return fmt.Errorf("JWT_SECRET must be at least 16 characters")
		}
		if c.Auth.AccessTTL <= 0 {
			return fmt.Errorf("JWT_ACCESS_TTL must be positive")
		}
	case "static":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=static is not allowed in production")
		}
		if c.Auth.StaticID <= 0 {
			return fmt.Errorf("STATIC_USER_ID must be positive")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q (use jwt or static)", c.Auth.Mode)
	}

	d := c.Leave.Defaults
	if d.Casual < 0 || d.Sick < 0 || d.Annual < 0 {
		return fmt.Errorf("default leave allotments must not be negative")
	}
	return nil
}

// ApplyFlags overrides the port and SQLite path from the command line and
// validates the result.
func (c *Config) ApplyFlags(port int, sqlitePath string) error {
	c.App.Port = port
	c.Database.SQLitePath = sqlitePath
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.App.Port)
}

// SlogLevel maps LOG_LEVEL onto slog.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return lvl, fmt.Errorf("invalid LOG_LEVEL %q", c.App.LogLevel)
	}
	return lvl, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvSlice(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
