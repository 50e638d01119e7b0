package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollingIntervalSeconds != 60 || cfg.MaxConcurrentChecks != 100 || cfg.ExecutionWindowMinutes != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "pollingIntervalSeconds: 30\nmaxConcurrentChecks: 50\nstorePath: /var/data\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollingIntervalSeconds != 30 || cfg.MaxConcurrentChecks != 50 || cfg.StorePath != "/var/data" {
		t.Fatalf("unexpected config from yaml: %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FILEDISCOVERY_POLLING_INTERVAL_SECONDS", "15")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollingIntervalSeconds != 15 {
		t.Fatalf("expected env override to apply, got %d", cfg.PollingIntervalSeconds)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentChecks = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for maxConcurrentChecks=0")
	}
	cfg = Default()
	cfg.ExecutionWindowMinutes = 61
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for executionWindowMinutes=61")
	}
}
