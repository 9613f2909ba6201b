package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LATE_PENALTY_POSITIONS", "AUTO_OFFLINE_AFTER_SECONDS", "PORTAL_DOMAIN", "APP_ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2, cfg.LatePenalty)
	assert.Equal(t, 2*time.Hour, cfg.AutoOfflineAfter)
	assert.Equal(t, "shantiq.in", cfg.PortalDomain)
	assert.False(t, cfg.Development())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LATE_PENALTY_POSITIONS", "3")
	t.Setenv("LATE_SCAN_INTERVAL_SECONDS", "0")
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")
	t.Setenv("APP_ENV", "development")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.LatePenalty)
	assert.Equal(t, time.Duration(0), cfg.LateScanInterval)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.True(t, cfg.Development())
}
