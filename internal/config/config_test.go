package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.Inference.HighThreshold != 0.85 {
		t.Fatalf("unexpected high threshold %.2f", cfg.Inference.HighThreshold)
	}
	if cfg.Knowledge.QualityGate != 0.7 {
		t.Fatalf("unexpected quality gate %.2f", cfg.Knowledge.QualityGate)
	}
	if cfg.Safety.BreakerThreshold != 3 {
		t.Fatalf("unexpected breaker threshold %d", cfg.Safety.BreakerThreshold)
	}
	if cfg.Orchestrator.ApprovalExpiry != 30*time.Minute {
		t.Fatalf("unexpected approval expiry %s", cfg.Orchestrator.ApprovalExpiry)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  address: ":9999"
safety:
  cooldown: 10m
scheduler:
  enabled: true
  scopes: ["checkout", "payments"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("file value not applied, got %q", cfg.Server.Address)
	}
	if cfg.Safety.Cooldown != 10*time.Minute {
		t.Fatalf("unexpected cooldown %s", cfg.Safety.Cooldown)
	}
	if len(cfg.Scheduler.Scopes) != 2 {
		t.Fatalf("unexpected scopes %v", cfg.Scheduler.Scopes)
	}
	// Untouched sections keep their defaults.
	if cfg.Knowledge.KeywordThreshold != 0.85 {
		t.Fatalf("default lost, got %.2f", cfg.Knowledge.KeywordThreshold)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_SERVER_ADDRESS", ":7777")
	t.Setenv("SENTINEL_HIGH_THRESHOLD", "0.9")
	t.Setenv("SENTINEL_SCHEDULER_SCOPES", "checkout, payments ,")
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":7777" {
		t.Fatalf("env override not applied, got %q", cfg.Server.Address)
	}
	if cfg.Inference.HighThreshold != 0.9 {
		t.Fatalf("env override not applied, got %.2f", cfg.Inference.HighThreshold)
	}
	if len(cfg.Scheduler.Scopes) != 2 || cfg.Scheduler.Scopes[1] != "payments" {
		t.Fatalf("scope list not parsed, got %v", cfg.Scheduler.Scopes)
	}
	if cfg.Inference.APIKey != "test-key" {
		t.Fatal("API key not picked up from environment")
	}
}
