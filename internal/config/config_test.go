package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromFile_YAML(t *testing.T) {
	yamlContent := `
listen_addr: ":8181"
domains:
  - example.com
  - example.org
domains_file: domains.txt
check_interval: 6h
run_on_start: true
concurrency: 8
account_id: "12345"
api_key: secret
`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("failed to load YAML config: %v", err)
	}

	if cfg.ListenAddr != ":8181" {
		t.Errorf("expected listen_addr ':8181', got %s", cfg.ListenAddr)
	}
	if len(cfg.Domains) != 2 || cfg.Domains[1] != "example.org" {
		t.Errorf("unexpected domains: %v", cfg.Domains)
	}
	if cfg.DomainsFile != "domains.txt" {
		t.Errorf("expected domains_file 'domains.txt', got %s", cfg.DomainsFile)
	}
	if d, _ := cfg.Interval(); d != 6*time.Hour {
		t.Errorf("expected interval 6h, got %v", d)
	}
	if !cfg.RunOnStart {
		t.Error("expected run_on_start")
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Concurrency)
	}
	if cfg.AccountID != "12345" || cfg.APIKey != "secret" {
		t.Errorf("unexpected credentials: %q %q", cfg.AccountID, cfg.APIKey)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics_addr, got %s", cfg.MetricsAddr)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	jsonContent := `{
		"ctlog_url": "http://ctlog.internal",
		"ctlog_rate": 0.5,
		"output_format": "csv",
		"metrics_addr": ":8080"
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	if err := os.WriteFile(configFile, []byte(jsonContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("failed to load JSON config: %v", err)
	}

	if cfg.CTLogURL != "http://ctlog.internal" {
		t.Errorf("expected ctlog_url, got %s", cfg.CTLogURL)
	}
	if cfg.CTLogRate != 0.5 {
		t.Errorf("expected ctlog_rate 0.5, got %v", cfg.CTLogRate)
	}
	if cfg.OutputFormat != "csv" {
		t.Errorf("expected output_format csv, got %s", cfg.OutputFormat)
	}
	if cfg.MetricsAddr != ":8080" {
		t.Errorf("expected metrics_addr ':8080', got %s", cfg.MetricsAddr)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	toml := filepath.Join(tmpDir, "config.toml")
	os.WriteFile(toml, []byte("x = 1"), 0644)
	if _, err := LoadFromFile(toml); err == nil {
		t.Error("expected error for unsupported format")
	}

	bad := filepath.Join(tmpDir, "bad.yaml")
	os.WriteFile(bad, []byte("check_interval: soon\n"), 0644)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected validation error for bad interval")
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen_addr ':8080', got %s", cfg.ListenAddr)
	}
	if cfg.CTLogURL != "https://crt.sh" {
		t.Errorf("unexpected default ctlog_url: %s", cfg.CTLogURL)
	}
	if cfg.TelemetryURL != "https://insights-collector.newrelic.com" {
		t.Errorf("unexpected default telemetry_url: %s", cfg.TelemetryURL)
	}
	if cfg.Concurrency != 0 {
		t.Errorf("expected concurrency to default to one worker per domain (0), got %d", cfg.Concurrency)
	}
	if cfg.RedisDomainsKey != "certwatch:domains" {
		t.Errorf("unexpected default redis key: %s", cfg.RedisDomainsKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.SetDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"interval disabled", func(c *Config) { c.CheckInterval = "0" }, false},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }, true},
		{"negative rate", func(c *Config) { c.CTLogRate = -1 }, true},
		{"relative ctlog url", func(c *Config) { c.CTLogURL = "crt.sh" }, true},
		{"bad output format", func(c *Config) { c.OutputFormat = "xml" }, true},
		{"negative interval", func(c *Config) { c.CheckInterval = "-1h" }, true},
		{"missing listen addr", func(c *Config) { c.ListenAddr = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := &Config{
		ListenAddr:    ":8080",
		DomainsFile:   "original.txt",
		CheckInterval: "24h",
		Concurrency:   4,
	}

	cfg.MergeWithFlags(map[string]interface{}{
		"domains":     "new.txt",
		"concurrency": 16,
		"interval":    "1h",
	})

	if cfg.DomainsFile != "new.txt" {
		t.Errorf("expected domains_file to be overridden to 'new.txt', got %s", cfg.DomainsFile)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected listen_addr to remain ':8080', got %s", cfg.ListenAddr)
	}
	if cfg.Concurrency != 16 {
		t.Errorf("expected concurrency to be overridden to 16, got %d", cfg.Concurrency)
	}
	if cfg.CheckInterval != "1h" {
		t.Errorf("expected check_interval 1h, got %s", cfg.CheckInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.test:6379")
	t.Setenv("NEW_RELIC_ACCOUNT_ID", "legacy-account")
	t.Setenv("TELEMETRY_ACCOUNT_ID", "account")
	t.Setenv("NEW_RELIC_API_KEY", "legacy-key")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBUG", "true")

	cfg := &Config{}
	cfg.LoadFromEnv()

	if cfg.RedisAddr != "redis.test:6379" {
		t.Errorf("expected RedisAddr from env, got %s", cfg.RedisAddr)
	}
	if cfg.AccountID != "account" {
		t.Errorf("expected TELEMETRY_ACCOUNT_ID to win, got %s", cfg.AccountID)
	}
	if cfg.APIKey != "legacy-key" {
		t.Errorf("expected NEW_RELIC_API_KEY fallback, got %s", cfg.APIKey)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if !cfg.Debug {
		t.Error("expected debug from env")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CERTWATCH_DOTENV_MARKER=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CERTWATCH_DOTENV_MARKER", "")
	os.Unsetenv("CERTWATCH_DOTENV_MARKER")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CERTWATCH_DOTENV_MARKER"); got != "loaded" {
		t.Errorf("expected value from .env, got %q", got)
	}
}
