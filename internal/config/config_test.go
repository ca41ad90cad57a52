package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, 0.65, cfg.Match.MinConfidence)
	assert.Equal(t, 1.0, cfg.Match.Weights.Primary)
	assert.Equal(t, 0.85, cfg.Match.Weights.Credited)
	assert.Equal(t, 0.6, cfg.Match.Weights.Other)

	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60, cfg.Breaker.WindowSecs)
	assert.Equal(t, 2.0, cfg.Breaker.BackoffMultiplier)

	require.Contains(t, cfg.Authorities, "musicbrainz")
	mb := cfg.Authorities["musicbrainz"]
	assert.True(t, mb.Enabled)
	assert.Equal(t, 3, mb.Priority)
	assert.Equal(t, 1.0, mb.RateLimit, "anonymous MusicBrainz clients are capped at 1 req/s")

	sp := cfg.Authorities["spotify"]
	assert.Equal(t, 1, sp.Priority)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RESOLVER_STORE_DRIVER", "postgres")
	t.Setenv("RESOLVER_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestBreakerPolicy_Conversion(t *testing.T) {
	policy := BreakerConfig{
		FailureThreshold:  7,
		WindowSecs:        30,
		ResetSecs:         10,
		BackoffMultiplier: 1.5,
		MaxResetSecs:      120,
	}.BreakerPolicy()

	assert.Equal(t, 7, policy.FailureThreshold)
	assert.Equal(t, 30*time.Second, policy.FailureWindow)
	assert.Equal(t, 10*time.Second, policy.ResetTimeout)
	assert.Equal(t, 1.5, policy.ResetBackoffMultiplier)
	assert.Equal(t, 2*time.Minute, policy.MaxResetTimeout)
	require.NotNil(t, policy.ShouldTrip, "breakers must ignore non-transient errors")
}

func TestRetryPolicy_Conversion(t *testing.T) {
	policy := RetryConfig{MaxAttempts: 4, InitialBackoffMS: 100, MaxBackoffMS: 2000}.RetryPolicy()
	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, 2*time.Second, policy.MaxBackoff)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
