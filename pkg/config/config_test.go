package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "INR", cfg.Billing.DefaultCurrency)
	assert.Equal(t, 7, cfg.Billing.DueDays)
	assert.Equal(t, NotifyChannelLog, cfg.Notify.Channel)
	assert.Equal(t, 10*time.Minute, cfg.Analytics.CacheTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BILLING_DEFAULT_CURRENCY", "usd")
	t.Setenv("BILLING_DUE_DAYS", "-3")
	t.Setenv("NOTIFY_CHANNEL", "SendGrid")
	t.Setenv("ANALYTICS_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.Billing.DefaultCurrency)
	assert.Equal(t, 0, cfg.Billing.DueDays)
	assert.Equal(t, NotifyChannelSendGrid, cfg.Notify.Channel)
	assert.Equal(t, 10*time.Minute, cfg.Analytics.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
