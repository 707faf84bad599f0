package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Apify    ApifyConfig    `yaml:"apify"`
	Pool     PoolConfig     `yaml:"pool"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int `yaml:"port"`
	RatePerMinute int `yaml:"rate_per_minute"` // per-user request budget
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
	// LogRetention bounds how long scrape audit rows are kept. Zero
	// disables pruning.
	LogRetention Duration `yaml:"log_retention"`
}

// RedisConfig holds Redis connection configuration. An empty URL disables
// the profile cache.
type RedisConfig struct {
	URL      string   `yaml:"url"`
	Password string   `yaml:"password"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// ApifyConfig holds settings for the external scrape-job API.
type ApifyConfig struct {
	BaseURL         string   `yaml:"base_url"`
	ProfileActorID  string   `yaml:"profile_actor_id"`
	CommentsActorID string   `yaml:"comments_actor_id"`
	SubmitTimeout   Duration `yaml:"submit_timeout"`
	PollInterval    Duration `yaml:"poll_interval"`
	MaxPollAttempts int      `yaml:"max_poll_attempts"`
	FetchGrace      Duration `yaml:"fetch_grace"` // dataset indexing lag on the provider side
}

// PoolConfig holds credential pool tuning.
type PoolConfig struct {
	Cooldown  Duration `yaml:"cooldown"`   // minimum age of a failure before re-testing
	MinActive int      `yaml:"min_active"` // below this, recovery probing kicks in
}

// BatchConfig holds batch orchestration tuning.
type BatchConfig struct {
	Size      int `yaml:"size"`
	PostLimit int `yaml:"post_limit"` // max post URLs per comments request
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
