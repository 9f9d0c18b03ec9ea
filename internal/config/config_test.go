package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) Config {
	t.Helper()
	flags := pflag.NewFlagSet("lazytemplate", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse(args))
	cfg, err := Load(flags)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefault(t *testing.T) {
	cfg := load(t)
	require.Equal(t, Default(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("LAZYTEMPLATE_STORAGE", "sqlite")
	t.Setenv("LAZYTEMPLATE_URL_SIGNING_SECRET", "from-env")
	t.Setenv("LAZYTEMPLATE_ENABLE_DATADOG", "true")
	t.Setenv("LAZYTEMPLATE_RATE_LIMIT", "2.5")

	cfg := load(t, "--storage", "redis", "--redis-addr", "localhost:6379", "--rate-burst", "3")
	require.Equal(t, StorageRedis, cfg.Storage)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, "from-env", cfg.URLSigningSecret)
	require.True(t, cfg.EnableDatadog)
	require.Equal(t, 2.5, cfg.RateLimit)
	require.Equal(t, 3, cfg.RateBurst)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.URLSigningSecret = "secret"

	tests := []struct {
		message  string
		change   func(*Config)
		expected string
	}{
		{
			message: "accept the default filesystem storage",
			change:  func(*Config) {},
		},
		{
			message:  "require the signing secret",
			change:   func(c *Config) { c.URLSigningSecret = "" },
			expected: "url-signing-secret can't be empty",
		},
		{
			message:  "require the bucket",
			change:   func(c *Config) { c.Storage = StorageS3 },
			expected: "s3-bucket can't be empty with the 's3' storage",
		},
		{
			message:  "require the redis address",
			change:   func(c *Config) { c.Storage = StorageRedis },
			expected: "redis-addr can't be empty with the 'redis' storage",
		},
		{
			message:  "require the data directory",
			change:   func(c *Config) { c.Storage, c.DataDir = StorageSQLite, "" },
			expected: "data-dir can't be empty with the 'sqlite' storage",
		},
		{
			message:  "reject an unknown storage",
			change:   func(c *Config) { c.Storage = "dropbox" },
			expected: "unknown storage 'dropbox'",
		},
		{
			message:  "reject a storage secret with an invalid size",
			change:   func(c *Config) { c.StorageSecret = "short" },
			expected: "storage-secret must have 16, 24 or 32 bytes",
		},
		{
			message:  "reject a negative rate limit",
			change:   func(c *Config) { c.RateLimit = -1 },
			expected: "rate-limit can't be negative",
		},
		{
			message:  "reject a rate limit without burst",
			change:   func(c *Config) { c.RateBurst = 0 },
			expected: "rate-burst must be at least 1",
		},
		{
			message:  "reject an unknown log level",
			change:   func(c *Config) { c.LogLevel = "verbose" },
			expected: "invalid log-level 'verbose'",
		},
	}
	for _, tt := range tests {
		t.Run("Should "+tt.message, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.change(&cfg)
			err := cfg.Validate()
			if tt.expected == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.expected)
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	level, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, level)
}
