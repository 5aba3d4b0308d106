package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config maps the YAML config file. Every section has a working default so
// the tool runs with no file at all; a handful of settings also honor
// PULLPUSH_* environment variables for container use.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`

	Pace struct {
		Mode         string        `yaml:"mode"`
		Delay        time.Duration `yaml:"delay"`
		RefillWindow time.Duration `yaml:"refill_window"`
		SafetyMargin int           `yaml:"safety_margin"`
	} `yaml:"pace"`

	Retry struct {
		MaxRetries int           `yaml:"max_retries"`
		Backoff    time.Duration `yaml:"backoff"`
	} `yaml:"retry"`

	Fetch struct {
		Concurrency        int    `yaml:"concurrency"`
		CommentConcurrency int    `yaml:"comment_concurrency"`
		DuplicateAction    string `yaml:"duplicate_action"`
		MaxRecords         int    `yaml:"max_records"`
	} `yaml:"fetch"`

	Cache struct {
		Enabled   bool          `yaml:"enabled"`
		RedisAddr string        `yaml:"redis_addr"`
		RedisDB   int           `yaml:"redis_db"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	Output struct {
		Dir    string   `yaml:"dir"`
		Fields []string `yaml:"fields"`
	} `yaml:"output"`
}

func defaultCLIConfig() *Config {
	cfg := &Config{}
	cfg.UserAgent = "ppharvest/" + version
	cfg.Timeout = 10 * time.Second
	cfg.Pace.Mode = "auto-hard"
	cfg.Pace.Delay = time.Second
	cfg.Retry.MaxRetries = 5
	cfg.Retry.Backoff = 3 * time.Second
	cfg.Fetch.Concurrency = 2
	cfg.Fetch.DuplicateAction = "keep_newest"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Log.Level = "info"
	cfg.Output.Dir = "."
	return cfg
}

// loadConfig layers the YAML file (when given) and environment variables over
// the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultCLIConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("PULLPUSH_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PULLPUSH_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("PULLPUSH_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("PULLPUSH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
