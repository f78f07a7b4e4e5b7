package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL      string `yaml:"database_url"`
	HTTPListenAddr   string `yaml:"http_listen_addr"`
	LogLevel         string `yaml:"log_level"`
	ServiceName      string `yaml:"service_name"`
	RsyncPath        string `yaml:"rsync_path"`
	SSHPath          string `yaml:"ssh_path"`
	SchedulerEnabled bool   `yaml:"scheduler_enabled"`
	NotifyWebhookURL string `yaml:"notify_webhook_url"`
	// KeyDir is where ephemeral SSH identity files are materialized.
	// Empty means the system temp directory.
	KeyDir string `yaml:"key_dir"`
}

// Load reads configuration from the environment, with an optional YAML file
// named by BACKHAUL_CONFIG applied first so env vars win.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPListenAddr:   ":8090",
		LogLevel:         "info",
		ServiceName:      "backhauld",
		RsyncPath:        "rsync",
		SSHPath:          "ssh",
		SchedulerEnabled: true,
	}

	if path := os.Getenv("BACKHAUL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", cfg.HTTPListenAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.RsyncPath = getEnv("RSYNC_PATH", cfg.RsyncPath)
	cfg.SSHPath = getEnv("SSH_PATH", cfg.SSHPath)
	cfg.NotifyWebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.NotifyWebhookURL)
	cfg.KeyDir = getEnv("KEY_DIR", cfg.KeyDir)
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse SCHEDULER_ENABLED: %w", err)
		}
		cfg.SchedulerEnabled = enabled
	}

	return cfg, nil
}

// Validate checks that everything the server needs to start is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.HTTPListenAddr == "" {
		return fmt.Errorf("HTTP_LISTEN_ADDR must not be empty")
	}
	if c.RsyncPath == "" {
		return fmt.Errorf("RSYNC_PATH must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
