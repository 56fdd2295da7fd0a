package sop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sentinelops/incident-engine/internal/models"
)

func TestFindApplicableExactBeatsGlob(t *testing.T) {
	r, err := NewRegistry(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Register(models.SOPDefinition{
		ID:        "cpu-exact",
		AppliesTo: []string{"cpu-saturation"},
		Risk:      models.RiskL2,
		Steps:     []models.SOPStep{{Description: "do it"}},
	})

	matched := r.FindApplicable("cpu-saturation")
	if len(matched) < 2 {
		t.Fatalf("expected exact, glob and wildcard candidates, got %d", len(matched))
	}
	if matched[0].ID != "cpu-exact" {
		t.Fatalf("exact selector must outrank the cpu-* glob, got %s", matched[0].ID)
	}
	if matched[1].ID != "scale-or-restart" {
		t.Fatalf("prefix glob must rank second, got %s", matched[1].ID)
	}
}

func TestFindApplicableUnknownFallsToTriage(t *testing.T) {
	r, err := NewRegistry(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched := r.FindApplicable("unknown")
	if len(matched) == 0 {
		t.Fatal("wildcard SOP must cover unknown causes")
	}
	if matched[0].ID != "manual-triage" {
		t.Fatalf("expected manual-triage for unknown cause, got %s", matched[0].ID)
	}
	if matched[0].Risk != models.RiskL0 {
		t.Fatalf("triage must be read-only, got %s", matched[0].Risk)
	}
}

func TestFindApplicableRanksLowerRiskOnTie(t *testing.T) {
	r, err := NewRegistry(nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Register(models.SOPDefinition{
		ID:        "risky-triage",
		AppliesTo: []string{"*"},
		Risk:      models.RiskL3,
		Steps:     []models.SOPStep{{Description: "do it"}},
	})

	matched := r.FindApplicable("something-novel")
	if matched[0].ID != "manual-triage" {
		t.Fatalf("equal specificity must prefer lower risk, got %s", matched[0].ID)
	}
}

func TestLoadPackValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sops.yaml")
	content := `sops:
  - id: pack-flush-cache
    title: Flush the edge cache
    applies_to: ["cache-stampede"]
    risk: 1
    steps:
      - description: Flush cache keys for the scope
        action: flush
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	r, err := NewRegistry(nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Get("pack-flush-cache"); !ok {
		t.Fatal("pack SOP not registered")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("sops:\n  - id: broken\n    risk: 9\n    steps:\n      - description: x\n"), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	if _, err := NewRegistry(nil, bad); err == nil {
		t.Fatal("expected validation error for out-of-range risk")
	}

	if _, err := NewRegistry(nil, filepath.Join(dir, "missing.yaml")); err != nil {
		t.Fatalf("missing pack must not error: %v", err)
	}
}
