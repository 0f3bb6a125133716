package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the change monitor.
type Config struct {
	GoogleAds  GoogleAdsConfig  `yaml:"google_ads"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Storage    StorageConfig    `yaml:"storage"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Redis      RedisConfig      `yaml:"redis"`
	Polling    PollingConfig    `yaml:"polling"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// GoogleAdsConfig holds Google Ads API credentials and endpoint settings.
type GoogleAdsConfig struct {
	CustomerID      string `yaml:"customer_id"`
	LoginCustomerID string `yaml:"login_customer_id"`
	DeveloperToken  string `yaml:"developer_token"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	RefreshToken    string `yaml:"refresh_token"`
	APIVersion      string `yaml:"api_version"`
	BaseURL         string `yaml:"base_url"`
	TokenURL        string `yaml:"token_url"` // Empty uses Google's endpoint
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxRetries      int    `yaml:"max_retries"`
	AccountTimezone string `yaml:"account_timezone"`
}

// Timeout returns the HTTP timeout as a duration.
func (c GoogleAdsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Location loads the account timezone, falling back to UTC when the zone
// database does not know it.
func (c GoogleAdsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.AccountTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ChannelConfig is one monitoring channel: a category label, the resource
// types to query and the changed-field fragments that make an event relevant.
type ChannelConfig struct {
	Category       string   `yaml:"category"`
	ResourceTypes  []string `yaml:"resource_types"`
	RelevantFields []string `yaml:"relevant_fields"`
}

// MonitoringConfig holds the measurement and classification settings.
type MonitoringConfig struct {
	WindowDays         int             `yaml:"window_days"`
	FetchLookbackHours int             `yaml:"fetch_lookback_hours"`
	IncludeOperation   bool            `yaml:"include_operation"`
	QueryLimit         int             `yaml:"query_limit"`
	Channels           []ChannelConfig `yaml:"channels"`
}

// Window returns the measurement window as a duration.
func (c MonitoringConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// Lookback returns the ingestion fetch window as a duration.
func (c MonitoringConfig) Lookback() time.Duration {
	return time.Duration(c.FetchLookbackHours) * time.Hour
}

// DefaultChannels returns the bid/budget and keyword/audience channels.
func DefaultChannels() []ChannelConfig {
	return []ChannelConfig{
		{
			Category: "Budget",
			ResourceTypes: []string{
				"CAMPAIGN_BUDGET", "AD_GROUP_BID_MODIFIER", "AD_GROUP_CRITERION",
				"CAMPAIGN", "CAMPAIGN_CRITERION",
			},
			RelevantFields: []string{
				"bidding_strategy_type", "bidding_strategy", "maximize_conversion_value",
				"maximize_conversions", "budget", "target_cpa", "target_roas",
				"cpc_bid", "cpv_bid", "cpm_bid", "target_spend", "bid_modifier",
				"manual_cpc", "manual_cpm", "enhanced_cpc",
			},
		},
		{
			Category:      "Audience",
			ResourceTypes: []string{"AD_GROUP_CRITERION", "CAMPAIGN_CRITERION", "CAMPAIGN"},
			RelevantFields: []string{
				"location", "criterion", "geo_target", "keyword", "audience",
				"user_list", "detailed_demographic", "topic", "placement",
				"match_type", "negative", "user_interest",
			},
		},
	}
}

// StorageConfig selects the tabular store backing the record and ledger tables.
type StorageConfig struct {
	Type          string `yaml:"type"` // local | memory | postgres | aws
	LocalPath     string `yaml:"local_path"`
	DatabaseURL   string `yaml:"database_url"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain
	AWSAccessKey  string `yaml:"aws_access_key"`
	AWSSecretKey  string `yaml:"aws_secret_key"`
	RecordsSheet  string `yaml:"records_sheet"`
	LedgerSheet   string `yaml:"ledger_sheet"`
}

// GetAWSProfile returns the AWS profile, with environment variable override.
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, use the task role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ArchiveConfig controls raw change event archiving to S3.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	S3Bucket string `yaml:"s3_bucket"`
	Prefix   string `yaml:"prefix"`
}

// RedisConfig holds the optional Redis connection used for the run lock and
// the ledger cache. Empty Addr and URL disable Redis.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return c.URL != "" || c.Addr != ""
}

// PollingConfig holds the scheduled cycle settings.
type PollingConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	LockTTLSeconds  int  `yaml:"lock_ttl_seconds"`
	RunOnStart      bool `yaml:"run_on_start"`
}

// Interval returns the polling interval as a duration.
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns the run lock TTL as a duration.
func (c PollingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	RedactSecrets *bool  `yaml:"redact_secrets"`
}

// Redact reports whether secret redaction is on. It defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactSecrets == nil || *c.RedactSecrets
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.GoogleAds.APIVersion == "" {
		cfg.GoogleAds.APIVersion = "v19"
	}
	if cfg.GoogleAds.BaseURL == "" {
		cfg.GoogleAds.BaseURL = "https://googleads.googleapis.com"
	}
	if cfg.GoogleAds.TimeoutSeconds == 0 {
		cfg.GoogleAds.TimeoutSeconds = 60
	}
	if cfg.GoogleAds.MaxRetries == 0 {
		cfg.GoogleAds.MaxRetries = 3
	}
	if cfg.GoogleAds.AccountTimezone == "" {
		cfg.GoogleAds.AccountTimezone = "America/Los_Angeles"
	}
	if cfg.Monitoring.WindowDays == 0 {
		cfg.Monitoring.WindowDays = 14
	}
	if cfg.Monitoring.FetchLookbackHours == 0 {
		cfg.Monitoring.FetchLookbackHours = 24
	}
	if cfg.Monitoring.QueryLimit == 0 {
		cfg.Monitoring.QueryLimit = 10000
	}
	if len(cfg.Monitoring.Channels) == 0 {
		cfg.Monitoring.Channels = DefaultChannels()
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-1"
	}
	if cfg.Storage.RecordsSheet == "" {
		cfg.Storage.RecordsSheet = "Budget Monitoring"
	}
	if cfg.Storage.LedgerSheet == "" {
		cfg.Storage.LedgerSheet = "campaignIgnore"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "change-events"
	}
	if cfg.Polling.IntervalSeconds == 0 {
		cfg.Polling.IntervalSeconds = 3600
	}
	if cfg.Polling.LockTTLSeconds == 0 {
		cfg.Polling.LockTTLSeconds = 900
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is loaded first when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	overrideString(&cfg.GoogleAds.CustomerID, "GOOGLE_ADS_CUSTOMER_ID")
	overrideString(&cfg.GoogleAds.LoginCustomerID, "GOOGLE_ADS_LOGIN_CUSTOMER_ID")
	overrideString(&cfg.GoogleAds.DeveloperToken, "GOOGLE_ADS_DEVELOPER_TOKEN")
	overrideString(&cfg.GoogleAds.ClientID, "GOOGLE_ADS_CLIENT_ID")
	overrideString(&cfg.GoogleAds.ClientSecret, "GOOGLE_ADS_CLIENT_SECRET")
	overrideString(&cfg.GoogleAds.RefreshToken, "GOOGLE_ADS_REFRESH_TOKEN")
	overrideString(&cfg.GoogleAds.BaseURL, "GOOGLE_ADS_BASE_URL")
	overrideString(&cfg.GoogleAds.TokenURL, "GOOGLE_ADS_TOKEN_URL")
	overrideString(&cfg.GoogleAds.AccountTimezone, "GOOGLE_ADS_TIMEZONE")

	// Dashes are accepted in customer ids and stripped.
	cfg.GoogleAds.CustomerID = strings.ReplaceAll(cfg.GoogleAds.CustomerID, "-", "")
	cfg.GoogleAds.LoginCustomerID = strings.ReplaceAll(cfg.GoogleAds.LoginCustomerID, "-", "")

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		if os.Getenv("STORAGE_TYPE") == "" {
			cfg.Storage.Type = "postgres"
		}
	}
	overrideString(&cfg.Storage.Type, "STORAGE_TYPE")
	overrideString(&cfg.Storage.LocalPath, "STORAGE_LOCAL_PATH")
	overrideString(&cfg.Storage.DynamoDBTable, "DYNAMODB_TABLE")
	overrideString(&cfg.Storage.AWSRegion, "AWS_REGION")

	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
		cfg.Archive.Enabled = true
	}

	overrideString(&cfg.Redis.URL, "REDIS_URL")
	overrideString(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "REDIS_PASSWORD")

	if v := os.Getenv("MONITOR_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitoring.WindowDays = n
		}
	}
	if v := os.Getenv("POLLING_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Polling.IntervalSeconds = n
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	overrideString(&cfg.Logging.Level, "LOG_LEVEL")

	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
