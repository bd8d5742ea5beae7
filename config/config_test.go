package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

// clearEnv blanks every key FromEnv reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"APP_ENV", "APP_PORT", "LOG_LEVEL", "SEED_DEMO_USERS",
		"LEAVE_DB_DRIVER", "SQLITE_PATH", "DATABASE_URL",
		"AUTH_MODE", "JWT_SECRET", "JWT_ACCESS_TTL", "STATIC_USER_ID", "STATIC_USER_ROLE",
		"LEAVE_HOLD_PENDING", "LEAVE_DEFAULT_CASUAL", "LEAVE_DEFAULT_SICK", "LEAVE_DEFAULT_ANNUAL",
		"CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL)
	assert.True(t, cfg.Leave.HoldPending)
	assert.Equal(t, leave.DefaultAllotment, cfg.Leave.Defaults)
	assert.False(t, cfg.IsProduction())

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9000")
	t.Setenv("AUTH_MODE", "static")
	t.Setenv("STATIC_USER_ID", "1")
	t.Setenv("STATIC_USER_ROLE", "admin")
	t.Setenv("LEAVE_HOLD_PENDING", "false")
	t.Setenv("LEAVE_DEFAULT_ANNUAL", "20")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, int64(1), cfg.Auth.StaticID)
	assert.Equal(t, auth.RoleAdmin, cfg.Auth.StaticRole)
	assert.False(t, cfg.Leave.HoldPending)
	assert.Equal(t, 20, cfg.Leave.Defaults.Annual)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":             {"APP_PORT": "eighty", "JWT_SECRET": "0123456789abcdef"},
		"short secret":         {"JWT_SECRET": "short"},
		"unknown driver":       {"LEAVE_DB_DRIVER": "mysql", "JWT_SECRET": "0123456789abcdef"},
		"postgres without url": {"LEAVE_DB_DRIVER": "postgres", "JWT_SECRET": "0123456789abcdef"},
		"static in production": {"AUTH_MODE": "static", "APP_ENV": "production"},
		"bad log level":        {"LOG_LEVEL": "loud", "JWT_SECRET": "0123456789abcdef"},
		"bad hold flag":        {"LEAVE_HOLD_PENDING": "maybe", "JWT_SECRET": "0123456789abcdef"},
		"negative allotment":   {"LEAVE_DEFAULT_SICK": "-1", "JWT_SECRET": "0123456789abcdef"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestApplyFlags(t *testing.T) {
	// GIVEN: a valid environment
	// WHEN: command-line flags override the port and database path
	// THEN: the overrides are range-checked like the environment
	clearEnv(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyFlags(3000, ":memory:"))
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, ":memory:", cfg.Database.SQLitePath)

	for _, port := range []int{0, -1, 70000} {
		assert.Error(t, cfg.ApplyFlags(port, ":memory:"), "port %d", port)
	}
	assert.Error(t, cfg.ApplyFlags(8080, ""))
}
