package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  url: postgres://localhost/harvester
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Pool.Cooldown.Std() != time.Minute {
		t.Errorf("Cooldown = %v, want 1m", cfg.Pool.Cooldown.Std())
	}
	if cfg.Pool.MinActive != 2 {
		t.Errorf("MinActive = %d, want 2", cfg.Pool.MinActive)
	}
	if cfg.Batch.Size != 50 {
		t.Errorf("Batch.Size = %d, want 50", cfg.Batch.Size)
	}
	if cfg.Apify.PollInterval.Std() != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.Apify.PollInterval.Std())
	}
	if cfg.Apify.MaxPollAttempts != 60 {
		t.Errorf("MaxPollAttempts = %d, want 60", cfg.Apify.MaxPollAttempts)
	}
}

func TestLoadDurationsAndEnvExpansion(t *testing.T) {
	t.Setenv("HARVESTER_DB_URL", "postgres://db:5432/harvester")

	path := writeConfig(t, `
database:
  url: ${HARVESTER_DB_URL}
pool:
  cooldown: 2m
  min_active: 3
apify:
  poll_interval: 1s
  fetch_grace: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.URL != "postgres://db:5432/harvester" {
		t.Errorf("Database.URL = %q, env not expanded", cfg.Database.URL)
	}
	if cfg.Pool.Cooldown.Std() != 2*time.Minute {
		t.Errorf("Cooldown = %v, want 2m", cfg.Pool.Cooldown.Std())
	}
	if cfg.Pool.MinActive != 3 {
		t.Errorf("MinActive = %d, want 3", cfg.Pool.MinActive)
	}
	if cfg.Apify.FetchGrace.Std() != 500*time.Millisecond {
		t.Errorf("FetchGrace = %v, want 500ms", cfg.Apify.FetchGrace.Std())
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
pool:
  cooldown: soon
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
