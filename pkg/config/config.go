// Package config loads the uptime-monitor settings bundle: one immutable
// struct, populated once at startup from a YAML file plus environment
// overrides, whose groups are handed to each component constructor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level settings bundle. Every field group below mirrors
// a row in spec.md §6's configuration table.
type Config struct {
	Identity  IdentityConfig  `yaml:"identity" json:"identity"`
	Datastore DatastoreConfig `yaml:"datastore" json:"datastore"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Alerts    AlertsConfig    `yaml:"alerts" json:"alerts"`
	Retention RetentionConfig `yaml:"retention" json:"retention"`
	Liveness  LivenessConfig  `yaml:"liveness" json:"liveness"`
	TLS       TLSConfig       `yaml:"tls" json:"tls"`
	Logs      LogConfig       `yaml:"logs" json:"logs"`
}

type IdentityConfig struct {
	AppName    string  `yaml:"app_name" json:"app_name"`
	AppVersion string  `yaml:"app_version" json:"app_version"`
	OwnerID    int64   `yaml:"owner_id" json:"owner_id"`
	AdminIDs   []int64 `yaml:"admin_ids" json:"admin_ids"`
}

type DatastoreConfig struct {
	URL         string `yaml:"url" json:"url"`
	WALMode     bool   `yaml:"wal_mode" json:"wal_mode"`
	PoolSize    int    `yaml:"pool_size" json:"pool_size"`
	PoolTimeout string `yaml:"pool_timeout" json:"pool_timeout"`
	PoolRecycle string `yaml:"pool_recycle" json:"pool_recycle"`
}

type EngineConfig struct {
	DefaultInterval     int   `yaml:"default_interval" json:"default_interval"`
	MinInterval         int   `yaml:"min_interval" json:"min_interval"`
	MaxInterval         int   `yaml:"max_interval" json:"max_interval"`
	RequestTimeout      int   `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries          int   `yaml:"max_retries" json:"max_retries"`
	RetryDelay          int   `yaml:"retry_delay" json:"retry_delay"`
	MaxConcurrentProbes int   `yaml:"max_concurrent_probes" json:"max_concurrent_probes"`
	BatchSize           int   `yaml:"batch_size" json:"batch_size"`
	SweepInterval       int   `yaml:"sweep_interval" json:"sweep_interval"`
	ExpectedStatusCodes []int `yaml:"expected_status_codes" json:"expected_status_codes"`
}

type AlertsConfig struct {
	Cooldown         int    `yaml:"cooldown" json:"cooldown"`
	MaxAlertsPerHour int    `yaml:"max_alerts_per_hour" json:"max_alerts_per_hour"`
	RetryCount       int    `yaml:"retry_count" json:"retry_count"`
	QueueCap         int    `yaml:"queue_cap" json:"queue_cap"`
	WebhookURL       string `yaml:"webhook_url" json:"webhook_url"`
}

type RetentionConfig struct {
	LogRetentionDays int `yaml:"log_retention_days" json:"log_retention_days"`
	StatsHistoryDays int `yaml:"stats_history_days" json:"stats_history_days"`
}

type LivenessConfig struct {
	Port             int    `yaml:"port" json:"port"`
	SelfPingEnabled  bool   `yaml:"self_ping_enabled" json:"self_ping_enabled"`
	SelfPingURL      string `yaml:"self_ping_url" json:"self_ping_url"`
	SelfPingInterval int    `yaml:"self_ping_interval" json:"self_ping_interval"`
	SelfPingTimeout  int    `yaml:"self_ping_timeout" json:"self_ping_timeout"`
	SelfPingRetries  int    `yaml:"self_ping_retries" json:"self_ping_retries"`
}

type TLSConfig struct {
	ExpiryWarningDays int `yaml:"expiry_warning_days" json:"expiry_warning_days"`
}

type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
	File    string `yaml:"file" json:"file"`
}

// Global configuration instance, set once by Load and returned by Get().
// engine/alerts/scheduler/liveness/selfping never read it; their
// constructors take the Config (or one of its groups) as an argument.
var globalConfig *Config

// Load loads configuration from a YAML file determined by UPTIME_ENV
// (defaulting to "development"), then applies environment variable
// overrides, then validates.
func Load() (*Config, error) {
	environment := os.Getenv("UPTIME_ENV")
	if environment == "" {
		environment = "development"
	}

	configPath := fmt.Sprintf("./configs/%s.yaml", environment)

	cfg := defaults()

	if fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	overrideWithEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration instance. The commands in cmd/ use
// the *Config that Load returns, and runtime components receive their
// Config by constructor argument, so neither calls Get.
func Get() *Config {
	if globalConfig == nil {
		panic("configuration not loaded, call Load() first")
	}
	return globalConfig
}

// defaults returns a Config pre-populated with the same defaults the
// original bot's settings module shipped (see original_source/config/settings.py).
func defaults() *Config {
	return &Config{
		Identity: IdentityConfig{
			AppName:    "uptime-monitor",
			AppVersion: "1.0.0",
		},
		Datastore: DatastoreConfig{
			URL:         "./data/uptime.db",
			WALMode:     true,
			PoolSize:    10,
			PoolTimeout: "30s",
			PoolRecycle: "1h",
		},
		Engine: EngineConfig{
			DefaultInterval:     300,
			MinInterval:         60,
			MaxInterval:         86400,
			RequestTimeout:      30,
			MaxRetries:          3,
			RetryDelay:          5,
			MaxConcurrentProbes: 50,
			BatchSize:           100,
			SweepInterval:       5,
			ExpectedStatusCodes: []int{200, 201, 202, 204, 301, 302, 307, 308},
		},
		Alerts: AlertsConfig{
			Cooldown:         300,
			MaxAlertsPerHour: 20,
			RetryCount:       3,
			QueueCap:         10000,
		},
		Retention: RetentionConfig{
			LogRetentionDays: 30,
			StatsHistoryDays: 90,
		},
		Liveness: LivenessConfig{
			Port:             8080,
			SelfPingEnabled:  true,
			SelfPingInterval: 300,
			SelfPingTimeout:  10,
			SelfPingRetries:  3,
		},
		TLS: TLSConfig{
			ExpiryWarningDays: 30,
		},
		Logs: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// overrideWithEnv overrides configuration with environment variables.
func overrideWithEnv(cfg *Config) {
	if val := os.Getenv("UPTIME_APP_NAME"); val != "" {
		cfg.Identity.AppName = val
	}
	if val := os.Getenv("UPTIME_OWNER_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Identity.OwnerID = id
		}
	}
	if val := os.Getenv("UPTIME_DB_URL"); val != "" {
		cfg.Datastore.URL = val
	}
	if val := os.Getenv("UPTIME_ENGINE_MAX_CONCURRENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Engine.MaxConcurrentProbes = n
		}
	}
	if val := os.Getenv("UPTIME_ENGINE_SWEEP_INTERVAL"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Engine.SweepInterval = n
		}
	}
	if val := os.Getenv("UPTIME_ALERTS_MAX_PER_HOUR"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Alerts.MaxAlertsPerHour = n
		}
	}
	if val := os.Getenv("UPTIME_ALERTS_WEBHOOK_URL"); val != "" {
		cfg.Alerts.WebhookURL = val
	}
	if val := os.Getenv("UPTIME_LIVENESS_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Liveness.Port = n
		}
	}
	if val := os.Getenv("PORT"); val != "" {
		// Hosting platforms (Render/Heroku-style) inject the bind port here.
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Liveness.Port = n
		}
	}
	if val := os.Getenv("UPTIME_SELF_PING_URL"); val != "" {
		cfg.Liveness.SelfPingURL = val
	}
	if val := os.Getenv("UPTIME_SELF_PING_ENABLED"); val != "" {
		cfg.Liveness.SelfPingEnabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("UPTIME_TLS_WARNING_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.TLS.ExpiryWarningDays = n
		}
	}
	if val := os.Getenv("UPTIME_LOG_LEVEL"); val != "" {
		cfg.Logs.Level = val
	}
}

// validate enforces the invariants config consumers rely on without
// re-checking (min<=default<=max intervals, positive ports, etc).
func validate(cfg *Config) error {
	if cfg.Datastore.URL == "" {
		return fmt.Errorf("datastore.url cannot be empty")
	}
	if cfg.Engine.MinInterval > cfg.Engine.MaxInterval {
		return fmt.Errorf("engine.min_interval cannot be greater than engine.max_interval")
	}
	if cfg.Engine.DefaultInterval < cfg.Engine.MinInterval || cfg.Engine.DefaultInterval > cfg.Engine.MaxInterval {
		return fmt.Errorf("engine.default_interval must be between min_interval and max_interval")
	}
	if cfg.Engine.MaxConcurrentProbes <= 0 {
		return fmt.Errorf("engine.max_concurrent_probes must be positive")
	}
	if cfg.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be positive")
	}
	if len(cfg.Engine.ExpectedStatusCodes) == 0 {
		return fmt.Errorf("engine.expected_status_codes cannot be empty")
	}
	if cfg.Alerts.MaxAlertsPerHour <= 0 {
		return fmt.Errorf("alerts.max_alerts_per_hour must be positive")
	}
	if cfg.Alerts.QueueCap <= 0 {
		return fmt.Errorf("alerts.queue_cap must be positive")
	}
	if cfg.Liveness.Port <= 0 || cfg.Liveness.Port > 65535 {
		return fmt.Errorf("invalid liveness.port: %d", cfg.Liveness.Port)
	}
	if cfg.TLS.ExpiryWarningDays <= 0 {
		return fmt.Errorf("tls.expiry_warning_days must be positive")
	}
	return nil
}

// ClampInterval clamps a requested probe interval (seconds) into the
// configured [MinInterval, MaxInterval] range.
func (c *EngineConfig) ClampInterval(seconds int) int {
	if seconds < c.MinInterval {
		return c.MinInterval
	}
	if seconds > c.MaxInterval {
		return c.MaxInterval
	}
	return seconds
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
