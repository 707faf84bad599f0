package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RatePerMinute == 0 {
		cfg.Server.RatePerMinute = 60
	}

	if cfg.Apify.BaseURL == "" {
		cfg.Apify.BaseURL = "https://api.apify.com/v2"
	}
	if cfg.Apify.SubmitTimeout == 0 {
		cfg.Apify.SubmitTimeout = Duration(30 * time.Second)
	}
	if cfg.Apify.PollInterval == 0 {
		cfg.Apify.PollInterval = Duration(5 * time.Second)
	}
	if cfg.Apify.MaxPollAttempts == 0 {
		cfg.Apify.MaxPollAttempts = 60
	}
	if cfg.Apify.FetchGrace == 0 {
		cfg.Apify.FetchGrace = Duration(10 * time.Second)
	}

	if cfg.Pool.Cooldown == 0 {
		cfg.Pool.Cooldown = Duration(time.Minute)
	}
	if cfg.Pool.MinActive == 0 {
		cfg.Pool.MinActive = 2
	}

	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 50
	}
	if cfg.Batch.PostLimit == 0 {
		cfg.Batch.PostLimit = 10
	}

	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = Duration(24 * time.Hour)
	}
}
