package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/numbers/syncer/internal/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Sync.Concurrency)
	assert.Equal(t, 2, cfg.Sync.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.Sync.JobTimeout)

	rl := cfg.ProviderRateLimit("twilio")
	assert.Equal(t, ratelimit.DefaultConfig().InitialBackoff, rl.InitialBackoff)
	assert.Equal(t, 2, rl.Retries())
}

func TestLoadFileKeepsOmittedDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9000"
database:
  dsn: "file:test.db"
sync:
  concurrency: 4
  job_timeout: 5m
rate_limits:
  twilio:
    strategy: fixed_delay
    fixed_delay: 250ms
    initial_backoff: 100ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Sync.JobTimeout)
	assert.Equal(t, 16, cfg.Sync.QueueSize)
	assert.Equal(t, "info", cfg.Log.Level)

	rl := cfg.ProviderRateLimit("twilio")
	assert.Equal(t, ratelimit.StrategyFixedDelay, rl.Strategy)
	assert.Equal(t, 250*time.Millisecond, rl.FixedDelay)
	assert.Equal(t, 100*time.Millisecond, rl.InitialBackoff)
}

func TestZeroMaxRetriesDisablesRetries(t *testing.T) {
	path := writeConfig(t, "sync:\n  max_retries: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0, cfg.Sync.MaxRetries)

	rl := ratelimit.WithDefaults(cfg.ProviderRateLimit("twilio"))
	assert.Equal(t, 0, rl.Retries())
	assert.Equal(t, uint(1), ratelimit.NewBackoff(rl).MaxTries())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("SYNCER_DATABASE_DSN", "file:env.db")
	t.Setenv("SYNCER_SYNC_CONCURRENCY", "3")
	t.Setenv("SYNCER_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "secret", cfg.Twilio.AuthToken)
	assert.Equal(t, "file:env.db", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Sync.Concurrency)
	assert.True(t, cfg.Database.Debug)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverrideRejectsGarbage(t *testing.T) {
	t.Setenv("SYNCER_SYNC_CONCURRENCY", "many")

	_, err := Load("")
	assert.ErrorContains(t, err, "SYNCER_SYNC_CONCURRENCY")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Concurrency = 0
	cfg.Sync.MaxRetries = -1
	cfg.Log.Level = "loud"
	cfg.Database.DSN = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "sync.concurrency")
	assert.ErrorContains(t, err, "sync.max_retries")
	assert.ErrorContains(t, err, "log.level")
	assert.ErrorContains(t, err, "database.dsn")
}

func TestMissingCredentialsAreNotAConfigError(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Twilio.AccountSID)
}

func TestLoadRejectsUnknownRateLimitStrategy(t *testing.T) {
	path := writeConfig(t, `
rate_limits:
  twilio:
    strategy: leaky
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "rate_limits.twilio")
}
