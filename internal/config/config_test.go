package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
google_ads:
  customer_id: "1234567890"
  developer_token: "dev-token"
  api_version: "v20"
  timeout_seconds: 45

monitoring:
  window_days: 7
  include_operation: true
  channels:
    - category: "Budget"
      resource_types: ["CAMPAIGN_BUDGET"]
      relevant_fields: ["amount_micros"]

storage:
  type: "postgres"
  database_url: "postgres://localhost/monitor"

polling:
  interval_seconds: 600

server:
  port: 9090
  host: "0.0.0.0"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "1234567890", cfg.GoogleAds.CustomerID)
	assert.Equal(t, "v20", cfg.GoogleAds.APIVersion)
	assert.Equal(t, 45*time.Second, cfg.GoogleAds.Timeout())

	assert.Equal(t, 7, cfg.Monitoring.WindowDays)
	assert.True(t, cfg.Monitoring.IncludeOperation)
	require.Len(t, cfg.Monitoring.Channels, 1)
	assert.Equal(t, []string{"amount_micros"}, cfg.Monitoring.Channels[0].RelevantFields)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "Budget Monitoring", cfg.Storage.RecordsSheet)
	assert.Equal(t, 10*time.Minute, cfg.Polling.Interval())
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "google_ads:\n  customer_id: \"1\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "v19", cfg.GoogleAds.APIVersion)
	assert.Equal(t, "https://googleads.googleapis.com", cfg.GoogleAds.BaseURL)
	assert.Equal(t, "America/Los_Angeles", cfg.GoogleAds.AccountTimezone)
	assert.Equal(t, 14, cfg.Monitoring.WindowDays)
	assert.Equal(t, 24*time.Hour, cfg.Monitoring.Lookback())
	assert.Equal(t, 14*24*time.Hour, cfg.Monitoring.Window())
	assert.Equal(t, 10000, cfg.Monitoring.QueryLimit)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "campaignIgnore", cfg.Storage.LedgerSheet)
	assert.Equal(t, "change-events", cfg.Archive.Prefix)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redact())
	assert.False(t, cfg.Redis.Enabled())

	require.Len(t, cfg.Monitoring.Channels, 2)
	assert.Equal(t, "Budget", cfg.Monitoring.Channels[0].Category)
	assert.Contains(t, cfg.Monitoring.Channels[0].RelevantFields, "target_roas")
	assert.Equal(t, "Audience", cfg.Monitoring.Channels[1].Category)
	assert.Contains(t, cfg.Monitoring.Channels[1].ResourceTypes, "CAMPAIGN_CRITERION")
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
google_ads:
  customer_id: "111"
  refresh_token: "file-token"
`)

	t.Setenv("GOOGLE_ADS_CUSTOMER_ID", "123-456-7890")
	t.Setenv("GOOGLE_ADS_REFRESH_TOKEN", "env-token")
	t.Setenv("DATABASE_URL", "postgres://env/monitor")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MONITOR_WINDOW_DAYS", "21")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "1234567890", cfg.GoogleAds.CustomerID)
	assert.Equal(t, "env-token", cfg.GoogleAds.RefreshToken)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://env/monitor", cfg.Storage.DatabaseURL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 21, cfg.Monitoring.WindowDays)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Monitoring.WindowDays)
	assert.Equal(t, "local", cfg.Storage.Type)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, GoogleAdsConfig{AccountTimezone: "Not/AZone"}.Location())
}

func TestGetAWSProfile(t *testing.T) {
	t.Setenv("AWS_PROFILE_OVERRIDE", "iam")
	assert.Equal(t, "", StorageConfig{AWSProfile: "dev"}.GetAWSProfile())
	t.Setenv("AWS_PROFILE_OVERRIDE", "ops")
	assert.Equal(t, "ops", StorageConfig{AWSProfile: "dev"}.GetAWSProfile())
}
