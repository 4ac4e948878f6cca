package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "DEFAULT_TIME_ZONE", "TRIAL_DAYS", "TRIAL_ENABLED", "S3_PRESIGN_TTL", "CORS_ORIGINS", "TRUSTED_PROXIES", "BODY_LIMIT_BYTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "America/Chicago", cfg.DefaultTimeZone)
	assert.Equal(t, 7, cfg.TrialDays)
	assert.True(t, cfg.TrialEnabled)
	assert.Equal(t, 15*time.Minute, cfg.S3PresignTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Nil(t, cfg.TrustedProxies)
	assert.Equal(t, int64(50<<20), cfg.BodyLimitBytes)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("ACTIVE_CAMPAIGN_BASE_URL", "https://acct.api-us1.com/")
	t.Setenv("TRIAL_ENABLED", "false")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxies)
	assert.Equal(t, "https://acct.api-us1.com", cfg.ActiveCampaignBaseURL)
	assert.False(t, cfg.TrialEnabled)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBDriver: "sqlite"}
	require.Error(t, cfg.Validate())

	cfg.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.DBDriver = "oracle"
	require.Error(t, cfg.Validate())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{GinMode: "release"}).IsProduction())
	assert.False(t, (&Config{GinMode: "debug"}).IsProduction())
}
