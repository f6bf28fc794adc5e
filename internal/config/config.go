package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for certwatch
type Config struct {
	// HTTP surfaces
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	Debug       bool   `yaml:"debug" json:"debug"`

	// Domain sources
	Domains         []string `yaml:"domains" json:"domains"`
	DomainsFile     string   `yaml:"domains_file" json:"domains_file"`
	RedisAddr       string   `yaml:"redis_addr" json:"redis_addr"`
	RedisDomainsKey string   `yaml:"redis_domains_key" json:"redis_domains_key"`

	// Certificate transparency source
	CTLogURL    string  `yaml:"ctlog_url" json:"ctlog_url"`
	CTLogRate   float64 `yaml:"ctlog_rate" json:"ctlog_rate"`
	CTLogBurst  int     `yaml:"ctlog_burst" json:"ctlog_burst"`
	UA          string  `yaml:"ua" json:"ua"`
	HTTPTimeout int     `yaml:"http_timeout_sec" json:"http_timeout_sec"`

	// Telemetry sink
	TelemetryURL  string `yaml:"telemetry_url" json:"telemetry_url"`
	AccountID     string `yaml:"account_id" json:"account_id"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	SpoolDir      string `yaml:"spool_dir" json:"spool_dir"`
	ReportTimeout int    `yaml:"report_timeout_sec" json:"report_timeout_sec"`

	// Scheduling
	CheckInterval   string `yaml:"check_interval" json:"check_interval"`
	RunOnStart      bool   `yaml:"run_on_start" json:"run_on_start"`
	Concurrency     int    `yaml:"concurrency" json:"concurrency"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`

	// Recent results kept for /results
	ResultsSize   int `yaml:"results_size" json:"results_size"`
	ResultsTTLSec int `yaml:"results_ttl_sec" json:"results_ttl_sec"`

	// Observability
	LogLevel     string `yaml:"log_level" json:"log_level"`
	OutputFormat string `yaml:"output_format" json:"output_format"`
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.RedisDomainsKey == "" {
		c.RedisDomainsKey = "certwatch:domains"
	}
	if c.CTLogURL == "" {
		c.CTLogURL = "https://crt.sh"
	}
	if c.CTLogRate == 0 {
		c.CTLogRate = 1
	}
	if c.CTLogBurst == 0 {
		c.CTLogBurst = 2
	}
	if c.UA == "" {
		c.UA = "certwatch/1.0 (+https://github.com/gustycube/certwatch)"
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30
	}
	if c.TelemetryURL == "" {
		c.TelemetryURL = "https://insights-collector.newrelic.com"
	}
	if c.ReportTimeout == 0 {
		c.ReportTimeout = 30
	}
	if c.CheckInterval == "" {
		c.CheckInterval = "24h"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15
	}
	if c.ResultsSize == 0 {
		c.ResultsSize = 4096
	}
	if c.ResultsTTLSec == 0 {
		c.ResultsTTLSec = 48 * 3600
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "json"
	}
	if c.OTELService == "" {
		c.OTELService = "certwatch"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if c.CTLogRate < 0 {
		return fmt.Errorf("ctlog_rate must not be negative")
	}
	if c.CTLogBurst < 1 {
		return fmt.Errorf("ctlog_burst must be at least 1")
	}
	if c.HTTPTimeout < 1 {
		return fmt.Errorf("http_timeout_sec must be at least 1")
	}
	for name, raw := range map[string]string{"ctlog_url": c.CTLogURL, "telemetry_url": c.TelemetryURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	switch c.OutputFormat {
	case "json", "jsonl", "csv":
	default:
		return fmt.Errorf("unsupported output_format %q (use json, jsonl, or csv)", c.OutputFormat)
	}
	return nil
}

// Interval parses check_interval. Zero disables scheduled runs.
func (c *Config) Interval() (time.Duration, error) {
	if c.CheckInterval == "" || c.CheckInterval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CheckInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid check_interval %q: %w", c.CheckInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("check_interval must not be negative")
	}
	return d, nil
}

// Seconds converts one of the *_sec fields to a duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are skipped and variables already set are never overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// MergeWithFlags merges command-line flags with file configuration
// Command-line flags take precedence over file configuration
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["listen"].(string); ok && v != "" {
		c.ListenAddr = v
	}
	if v, ok := flags["metrics_addr"].(string); ok && v != "" {
		c.MetricsAddr = v
	}
	if v, ok := flags["domains"].(string); ok && v != "" {
		c.DomainsFile = v
	}
	if v, ok := flags["interval"].(string); ok && v != "" {
		c.CheckInterval = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Concurrency = v
	}
	if v, ok := flags["output_format"].(string); ok && v != "" {
		c.OutputFormat = v
	}
	if v, ok := flags["log_level"].(string); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := flags["debug"].(bool); ok && v {
		c.Debug = true
	}
}

// LoadFromEnv loads configuration from environment variables. The
// TELEMETRY_* names win over the NEW_RELIC_* aliases.
func (c *Config) LoadFromEnv() {
	setString(&c.AccountID, "NEW_RELIC_ACCOUNT_ID")
	setString(&c.AccountID, "TELEMETRY_ACCOUNT_ID")
	setString(&c.APIKey, "NEW_RELIC_API_KEY")
	setString(&c.APIKey, "TELEMETRY_API_KEY")
	setString(&c.TelemetryURL, "TELEMETRY_URL")
	setString(&c.CTLogURL, "CTLOG_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisDomainsKey, "REDIS_DOMAINS_KEY")
	setString(&c.CheckInterval, "CHECK_INTERVAL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.OTELEndpoint, "OTEL_ENDPOINT")
	if v := os.Getenv("DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
