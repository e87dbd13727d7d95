package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"POSTPILOT_APP_NAME":                os.Getenv("POSTPILOT_APP_NAME"),
		"POSTPILOT_APP_ENV":                 os.Getenv("POSTPILOT_APP_ENV"),
		"POSTPILOT_APP_PORT":                os.Getenv("POSTPILOT_APP_PORT"),
		"POSTPILOT_DATABASE_HOST":           os.Getenv("POSTPILOT_DATABASE_HOST"),
		"POSTPILOT_DATABASE_PORT":           os.Getenv("POSTPILOT_DATABASE_PORT"),
		"POSTPILOT_DATABASE_USER":           os.Getenv("POSTPILOT_DATABASE_USER"),
		"POSTPILOT_DATABASE_PASSWORD":       os.Getenv("POSTPILOT_DATABASE_PASSWORD"),
		"POSTPILOT_DATABASE_DBNAME":         os.Getenv("POSTPILOT_DATABASE_DBNAME"),
		"POSTPILOT_DATABASE_SSLMODE":        os.Getenv("POSTPILOT_DATABASE_SSLMODE"),
		"POSTPILOT_DATABASE_MAX_OPEN_CONNS": os.Getenv("POSTPILOT_DATABASE_MAX_OPEN_CONNS"),
		"POSTPILOT_DATABASE_MAX_IDLE_CONNS": os.Getenv("POSTPILOT_DATABASE_MAX_IDLE_CONNS"),
		"POSTPILOT_QUEUE_MAX_IN_FLIGHT":     os.Getenv("POSTPILOT_QUEUE_MAX_IN_FLIGHT"),
		"POSTPILOT_RETRY_JITTER_FRACTION":   os.Getenv("POSTPILOT_RETRY_JITTER_FRACTION"),
		"POSTPILOT_JWT_SECRET":              os.Getenv("POSTPILOT_JWT_SECRET"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "postpilot-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "postgres", cfg.Database.User)
		assert.Equal(t, "", cfg.Database.Password)
		assert.Equal(t, "postpilot", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, time.Second, cfg.Queue.PollInterval)
		assert.Equal(t, 3, cfg.Queue.MaxInFlight)
		assert.Equal(t, 2*time.Second, cfg.Queue.MinInterval)
		assert.Equal(t, 10*time.Second, cfg.Retry.BaseDelay)
		assert.Equal(t, 15*time.Minute, cfg.Retry.MaxDelay)
		assert.Equal(t, 5, cfg.Retry.MaxAttempts)
		assert.InDelta(t, 0.10, cfg.Retry.JitterFraction, 1e-9)
		assert.Equal(t, 5*time.Minute, cfg.Quota.ReservationTTL)
		assert.Equal(t, 5*time.Minute, cfg.TokenStore.RefreshMargin)
	})

	t.Run("loads values from environment variables with POSTPILOT prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("POSTPILOT_APP_NAME", "test-app")
		os.Setenv("POSTPILOT_APP_ENV", "testing")
		os.Setenv("POSTPILOT_APP_PORT", "9000")
		os.Setenv("POSTPILOT_DATABASE_HOST", "testdb.local")
		os.Setenv("POSTPILOT_DATABASE_PORT", "5433")
		os.Setenv("POSTPILOT_DATABASE_USER", "testuser")
		os.Setenv("POSTPILOT_DATABASE_PASSWORD", "testpass")
		os.Setenv("POSTPILOT_DATABASE_DBNAME", "testdb")
		os.Setenv("POSTPILOT_DATABASE_SSLMODE", "require")
		os.Setenv("POSTPILOT_DATABASE_MAX_OPEN_CONNS", "50")
		os.Setenv("POSTPILOT_DATABASE_MAX_IDLE_CONNS", "10")
		os.Setenv("POSTPILOT_QUEUE_MAX_IN_FLIGHT", "6")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
		assert.Equal(t, "require", cfg.Database.SSLMode)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 6, cfg.Queue.MaxInFlight)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("POSTPILOT_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("POSTPILOT_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("POSTPILOT_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		// 0 is treated as "not set", so default (25) is used
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("POSTPILOT_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("validates jitter fraction range", func(t *testing.T) {
		clearEnv()
		os.Setenv("POSTPILOT_RETRY_JITTER_FRACTION", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry.jitter_fraction")
	})

	t.Run("fills platform endpoint defaults", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.Platforms.Facebook.BaseURL)
		assert.NotEmpty(t, cfg.Platforms.X.TokenURL)
		assert.Equal(t, 30, cfg.Platforms.YouTube.TimeoutSeconds)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"POSTPILOT_APP_ENV":                    os.Getenv("POSTPILOT_APP_ENV"),
		"POSTPILOT_JWT_SECRET":                 os.Getenv("POSTPILOT_JWT_SECRET"),
		"POSTPILOT_DATABASE_PASSWORD":          os.Getenv("POSTPILOT_DATABASE_PASSWORD"),
		"POSTPILOT_DATABASE_SSLMODE":           os.Getenv("POSTPILOT_DATABASE_SSLMODE"),
		"POSTPILOT_TOKENSTORE_ENCRYPTION_KEY":  os.Getenv("POSTPILOT_TOKENSTORE_ENCRYPTION_KEY"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	setValidProductionBase := func() {
		os.Setenv("POSTPILOT_APP_ENV", "production")
		os.Setenv("POSTPILOT_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("POSTPILOT_DATABASE_PASSWORD", "secure-password")
		os.Setenv("POSTPILOT_DATABASE_SSLMODE", "require")
		os.Setenv("POSTPILOT_TOKENSTORE_ENCRYPTION_KEY", "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("POSTPILOT_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("POSTPILOT_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("POSTPILOT_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("POSTPILOT_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires tokenstore encryption key in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("POSTPILOT_TOKENSTORE_ENCRYPTION_KEY")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tokenstore.encryption_key is required in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", cfg.Addr())
}
