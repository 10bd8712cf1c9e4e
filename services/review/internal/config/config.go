package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working dir.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	OutboxStream  string `yaml:"outboxStream"`

	// Invitation windows and queue spacing, in days.
	DueDays          int `yaml:"dueDays"`
	ExpirationDays   int `yaml:"expirationDays"`
	SendIntervalDays int `yaml:"sendIntervalDays"`

	// RS256 verification for /internal routes.
	InternalJWTPublicKeyPath string   `yaml:"internalJWTPublicKeyPath"`
	InternalJWTKeyID         string   `yaml:"internalJWTKeyID"`
	InternalAllowedIssuers   []string `yaml:"internalAllowedIssuers"`

	// Fixed-window rate limit on analyze/cleanup endpoints.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REVIEW_OUTBOX_STREAM"); v != "" {
		cfg.OutboxStream = v
	}
	if v := os.Getenv("REVIEW_INTERNAL_JWT_PUBLIC_KEY"); v != "" {
		cfg.InternalJWTPublicKeyPath = v
	}
	if v := os.Getenv("REVIEW_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DueDays <= 0 {
		cfg.DueDays = 14
	}
	if cfg.ExpirationDays <= 0 {
		cfg.ExpirationDays = 14
	}
	if cfg.SendIntervalDays <= 0 {
		cfg.SendIntervalDays = 7
	}
	if cfg.OutboxStream == "" {
		cfg.OutboxStream = "review:invitations"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.InternalJWTPublicKeyPath == "" {
		return errors.New("config: internalJWTPublicKeyPath is required (set in config.yaml or REVIEW_INTERNAL_JWT_PUBLIC_KEY)")
	}
	if len(cfg.InternalAllowedIssuers) == 0 {
		return errors.New("config: internalAllowedIssuers is required (set in config.yaml)")
	}
	return nil
}
