package requester

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all newsnexus configuration.
type Config struct {
	// OrgName selects the source row every run attributes its requests to.
	OrgName string `yaml:"org_name"`
	// BaseURL is the feed endpoint seeded for OrgName, ending with "/".
	BaseURL string `yaml:"base_url"`
	// ActivateRequests enables outbound fetches. False means dry run.
	ActivateRequests  bool            `yaml:"activate_requests"`
	DBPath            string          `yaml:"db_path"`
	DiagnosticsDir    string          `yaml:"diagnostics_dir"`
	RequestWindowDays int             `yaml:"request_window_days"`
	Fetch             FetchConfig     `yaml:"fetch"`
	Scoring           ScoringConfig   `yaml:"scoring"`
	Scheduler         SchedulerConfig `yaml:"scheduler"`
	// RedisAddr switches run locks from in-process to Redis.
	RedisAddr string        `yaml:"redis_addr"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
	HTTPAddr  string        `yaml:"http_addr"`
	LogLevel  string        `yaml:"log_level"`
}

// FetchConfig controls the feed fetcher.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
	Language  string        `yaml:"language"`
	Country   string        `yaml:"country"`
}

// ScoringConfig locates the semantic scorer triggered on rate limiting.
type ScoringConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Strategy   string        `yaml:"strategy"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SchedulerConfig controls the recurring query-set loop.
type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	LookbackDays  int           `yaml:"lookback_days"`
}

func (c *Config) defaults() {
	if c.OrgName == "" {
		c.OrgName = "Google News RSS"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://news.google.com/rss/"
	}
	if c.DBPath == "" {
		c.DBPath = "data/newsnexus.db"
	}
	if c.DiagnosticsDir == "" {
		c.DiagnosticsDir = "data/diagnostics"
	}
	if c.RequestWindowDays <= 0 {
		c.RequestWindowDays = 10
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "newsnexus-requester/1.0"
	}
	if c.Fetch.Language == "" {
		c.Fetch.Language = "en"
	}
	if c.Fetch.Country == "" {
		c.Fetch.Country = "us"
	}
	if c.Scoring.Timeout <= 0 {
		c.Scoring.Timeout = 2 * time.Minute
	}
	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = time.Hour
	}
	if c.Scheduler.LookbackDays <= 0 {
		c.Scheduler.LookbackDays = c.RequestWindowDays
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8086"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfig reads path (optional), applies NEWSNEXUS_* environment
// overrides and fills defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"NEWSNEXUS_ORG_NAME":         &c.OrgName,
		"NEWSNEXUS_BASE_URL":         &c.BaseURL,
		"NEWSNEXUS_DB_PATH":          &c.DBPath,
		"NEWSNEXUS_DIAGNOSTICS_DIR":  &c.DiagnosticsDir,
		"NEWSNEXUS_SCORER_ENDPOINT":  &c.Scoring.Endpoint,
		"NEWSNEXUS_SCORER_STRATEGY":  &c.Scoring.Strategy,
		"NEWSNEXUS_REDIS_ADDR":       &c.RedisAddr,
		"NEWSNEXUS_HTTP_ADDR":        &c.HTTPAddr,
		"NEWSNEXUS_LOG_LEVEL":        &c.LogLevel,
		"NEWSNEXUS_FETCH_USER_AGENT": &c.Fetch.UserAgent,
		"NEWSNEXUS_LANGUAGE":         &c.Fetch.Language,
		"NEWSNEXUS_COUNTRY":          &c.Fetch.Country,
	}
	for k, p := range str {
		if v, ok := lookup(k); ok && v != "" {
			*p = v
		}
	}

	if v, ok := lookup("NEWSNEXUS_ACTIVATE_REQUESTS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: NEWSNEXUS_ACTIVATE_REQUESTS: %w", err)
		}
		c.ActivateRequests = b
	}
	if v, ok := lookup("NEWSNEXUS_WINDOW_DAYS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: NEWSNEXUS_WINDOW_DAYS: %w", err)
		}
		c.RequestWindowDays = n
	}

	dur := map[string]*time.Duration{
		"NEWSNEXUS_FETCH_TIMEOUT":  &c.Fetch.Timeout,
		"NEWSNEXUS_SCORER_TIMEOUT": &c.Scoring.Timeout,
		"NEWSNEXUS_CHECK_INTERVAL": &c.Scheduler.CheckInterval,
		"NEWSNEXUS_LOCK_TTL":       &c.LockTTL,
	}
	for k, p := range dur {
		v, ok := lookup(k)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", k, err)
		}
		*p = d
	}
	return nil
}
