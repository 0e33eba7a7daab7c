package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeflow/routeflow-api/internal/logger"
)

func init() {
	logger.Init("test")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Stage)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.Flags.UseMockProvider)
	assert.True(t, cfg.Flags.UseMockRouting)
}

func TestLoad_MissingWebhookSecret(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_LiveProviderRequiresAPIKey(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec_test")
	t.Setenv("USE_MOCK_PROVIDER", "false")
	t.Setenv("PROVIDER_API_KEY", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("PROVIDER_API_KEY", "key_live")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Flags.UseMockProvider)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec_test")
	t.Setenv("STAGE", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("IDEMPOTENCY_TTL", "1h")
	t.Setenv("RATE_LIMIT_PER_SECOND", "5")
	t.Setenv("RATE_LIMIT_BURST", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Stage)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 5.0, cfg.RateLimitPerSecond)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	t.Setenv("SOME_DURATION", "soon")

	assert.Equal(t, 7, envIntOr("SOME_INT", 7))
	assert.Equal(t, time.Minute, envDurationOr("SOME_DURATION", time.Minute))
	assert.Equal(t, "fallback", envOr("UNSET_VARIABLE_XYZ", "fallback"))
}
