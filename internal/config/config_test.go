package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.Matching.Window)
	assert.Equal(t, 20, cfg.Matching.Limit)
	assert.Equal(t, 0.7, cfg.Matching.Weights.Source)
	assert.Equal(t, 10000.0, cfg.Matching.Weights.CapMeters)
	assert.Equal(t, 1000.0, cfg.Meeting.RadiusMeters)
	assert.Equal(t, 0.6, cfg.Meeting.Safety.Calculated)
	assert.Contains(t, cfg.Meeting.DisallowedKeywords, "liquor")
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 8*time.Second, cfg.Providers.Timeout)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadBareEnvNames(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("HTTP_READ_TIMEOUT", "7s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MIGRATE", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 7*time.Second, cfg.ReadTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadPrefixedNestedEnv(t *testing.T) {
	t.Setenv("COMPANION_MATCHING_WINDOW", "45m")
	t.Setenv("COMPANION_MEETING_RADIUS_METERS", "750")
	t.Setenv("COMPANION_HTTP_ADDR", ":7070")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Matching.Window)
	assert.Equal(t, 750.0, cfg.Meeting.RadiusMeters)
	assert.Equal(t, ":7070", cfg.HTTPAddr, "prefixed name wins over the bare one")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
http_addr: ":9090"
matching:
  window: 20m
  source_weight: 0.6
  destination_weight: 0.4
meeting:
  disallowed_keywords: [bar, casino]
  safety:
    calculated: 0.55
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 20*time.Minute, cfg.Matching.Window)
	assert.Equal(t, 0.4, cfg.Matching.Weights.Destination)
	assert.Equal(t, []string{"bar", "casino"}, cfg.Meeting.DisallowedKeywords)
	assert.Equal(t, 0.55, cfg.Meeting.Safety.Calculated)
	assert.Equal(t, 0.3, cfg.Meeting.Safety.MaxPolice, "unset keys keep defaults")
}

func TestLoadCollectsErrors(t *testing.T) {
	t.Setenv("COMPANION_MATCHING_LIMIT", "0")
	t.Setenv("COMPANION_STORE", "mongo")
	t.Setenv("COMPANION_LOG_FORMAT", "xml")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matching.limit")
	assert.Contains(t, err.Error(), "unknown store")
	assert.Contains(t, err.Error(), "log_format")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("HTTP_WRITE_TIMEOUT", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestOptimizerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	oc := cfg.Meeting.Optimizer(cfg.Providers.Timeout)
	assert.Equal(t, 3, oc.RefreshTopN)
	assert.Equal(t, 8*time.Second, oc.Timeout)
	assert.NotEmpty(t, oc.Categories)
}

func TestLoadRejectsNegativeSafetyWeights(t *testing.T) {
	t.Setenv("COMPANION_MEETING_SAFETY_PER_SHOP", "-0.03")
	t.Setenv("COMPANION_MEETING_SAFETY_MAX_LAMP", "-1")
	t.Setenv("COMPANION_MEETING_SAFETY_NEUTRAL", "1.5")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meeting.safety.per_shop")
	assert.Contains(t, err.Error(), "meeting.safety.max_lamp")
	assert.Contains(t, err.Error(), "meeting.safety.neutral")
}

func TestLoadBudgetBelowWriteTimeout(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Meeting.Budget)
	assert.Equal(t, 9*time.Second, cfg.Meeting.Optimizer(cfg.Providers.Timeout).Budget)

	t.Setenv("HTTP_WRITE_TIMEOUT", "5s")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meeting.budget")
}

func TestLoadOSRMProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
providers:
  osrm_profiles:
    bus: bus
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bus", cfg.Providers.OSRMProfiles["bus"])
}
