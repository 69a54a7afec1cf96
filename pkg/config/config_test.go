package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTestConfig(t *testing.T) string {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	configsDir := filepath.Join(tmpDir, "configs")
	err = os.MkdirAll(configsDir, 0755)
	if err != nil {
		t.Fatalf("Failed to create configs directory: %v", err)
	}

	configContent := `
identity:
  app_name: "uptime-monitor-test"
  app_version: "0.0.1-test"
  owner_id: 42

datastore:
  url: "./test.db"
  wal_mode: true
  pool_size: 5

engine:
  default_interval: 300
  min_interval: 60
  max_interval: 86400
  request_timeout: 30
  max_retries: 3
  retry_delay: 5
  max_concurrent_probes: 25
  batch_size: 50
  sweep_interval: 5
  expected_status_codes: [200, 201, 204]

alerts:
  cooldown: 300
  max_alerts_per_hour: 20
  retry_count: 3
  queue_cap: 10000

retention:
  log_retention_days: 30
  stats_history_days: 90

liveness:
  port: 8081
  self_ping_enabled: true
  self_ping_interval: 300
  self_ping_timeout: 10
  self_ping_retries: 3

tls:
  expiry_warning_days: 30

logs:
  level: "info"
  console: true
`

	configFile := filepath.Join(configsDir, "development.yaml")
	err = os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	return tmpDir
}

func TestLoad(t *testing.T) {
	tmpDir := createTestConfig(t)
	defer os.RemoveAll(tmpDir)

	originalWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalWd)

	globalConfig = nil

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg == nil {
		t.Fatal("Configuration should not be nil")
	}

	if cfg.Liveness.Port != 8081 {
		t.Errorf("Expected liveness port 8081, got %d", cfg.Liveness.Port)
	}
	if cfg.Identity.OwnerID != 42 {
		t.Errorf("Expected owner id 42, got %d", cfg.Identity.OwnerID)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-empty-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	originalWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalWd)

	globalConfig = nil

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load should fall back to defaults when config file is absent: %v", err)
	}
	if cfg.Engine.DefaultInterval != 300 {
		t.Errorf("Expected default engine interval 300, got %d", cfg.Engine.DefaultInterval)
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	tmpDir := createTestConfig(t)
	defer os.RemoveAll(tmpDir)

	originalWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalWd)

	globalConfig = nil

	os.Setenv("UPTIME_LIVENESS_PORT", "9999")
	os.Setenv("UPTIME_APP_NAME", "overridden-name")
	defer func() {
		os.Unsetenv("UPTIME_LIVENESS_PORT")
		os.Unsetenv("UPTIME_APP_NAME")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Liveness.Port != 9999 {
		t.Errorf("Expected liveness port 9999 from environment, got %d", cfg.Liveness.Port)
	}
	if cfg.Identity.AppName != "overridden-name" {
		t.Errorf("Expected app name 'overridden-name' from environment, got %q", cfg.Identity.AppName)
	}
}

func TestLoadWithPortEnvFallback(t *testing.T) {
	tmpDir := createTestConfig(t)
	defer os.RemoveAll(tmpDir)

	originalWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalWd)

	globalConfig = nil

	os.Setenv("PORT", "4321")
	defer os.Unsetenv("PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Liveness.Port != 4321 {
		t.Errorf("Expected liveness port 4321 from PORT env, got %d", cfg.Liveness.Port)
	}
}

func validConfig() *Config {
	cfg := defaults()
	cfg.Datastore.URL = "./test.db"
	return cfg
}

func TestValidateConfiguration(t *testing.T) {
	cfg := validConfig()
	if err := validate(cfg); err != nil {
		t.Errorf("Valid configuration should pass validation: %v", err)
	}
}

func TestValidateInvalidConfiguration(t *testing.T) {
	cases := map[string]func(*Config){
		"empty datastore url": func(c *Config) { c.Datastore.URL = "" },
		"min > max interval":  func(c *Config) { c.Engine.MinInterval = 100; c.Engine.MaxInterval = 50 },
		"default out of range": func(c *Config) {
			c.Engine.DefaultInterval = 10
			c.Engine.MinInterval = 60
			c.Engine.MaxInterval = 100
		},
		"zero max concurrent probes": func(c *Config) { c.Engine.MaxConcurrentProbes = 0 },
		"zero batch size":            func(c *Config) { c.Engine.BatchSize = 0 },
		"empty expected status codes": func(c *Config) { c.Engine.ExpectedStatusCodes = nil },
		"zero max alerts per hour":    func(c *Config) { c.Alerts.MaxAlertsPerHour = 0 },
		"zero queue cap":              func(c *Config) { c.Alerts.QueueCap = 0 },
		"invalid port":                func(c *Config) { c.Liveness.Port = 0 },
		"zero tls expiry warning":     func(c *Config) { c.TLS.ExpiryWarningDays = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Errorf("expected validation error for case %q", name)
			}
		})
	}
}

func TestClampInterval(t *testing.T) {
	engine := &EngineConfig{MinInterval: 60, MaxInterval: 3600}

	if got := engine.ClampInterval(10); got != 60 {
		t.Errorf("expected clamp to min 60, got %d", got)
	}
	if got := engine.ClampInterval(7200); got != 3600 {
		t.Errorf("expected clamp to max 3600, got %d", got)
	}
	if got := engine.ClampInterval(300); got != 300 {
		t.Errorf("expected unchanged 300, got %d", got)
	}
}

func TestFileExists(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-*")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	if !fileExists(tmpFile.Name()) {
		t.Error("fileExists should return true for existing file")
	}
	if fileExists("/non/existing/file") {
		t.Error("fileExists should return false for non-existing file")
	}
}

func TestGet(t *testing.T) {
	globalConfig = nil

	defer func() {
		if r := recover(); r == nil {
			t.Error("Get() should panic when config not loaded")
		}
	}()

	Get()
}

func TestGetAfterLoad(t *testing.T) {
	tmpDir := createTestConfig(t)
	defer os.RemoveAll(tmpDir)

	originalWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalWd)

	globalConfig = nil

	cfg1, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	cfg2 := Get()
	if cfg1 != cfg2 {
		t.Error("Get() should return the same instance as Load()")
	}
}
