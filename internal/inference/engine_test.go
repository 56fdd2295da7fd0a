package inference

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/patterns"
	"github.com/sentinelops/incident-engine/internal/repo"
)

type scriptedReasoner struct {
	outputs map[string]repo.InferenceOutput
	errs    map[string]error
	calls   []string
}

func (r *scriptedReasoner) Infer(_ context.Context, model, _ string) (repo.InferenceOutput, error) {
	r.calls = append(r.calls, model)
	if err := r.errs[model]; err != nil {
		return repo.InferenceOutput{}, err
	}
	return r.outputs[model], nil
}

type stubKnowledge struct {
	hits []models.KnowledgeHit
}

func (s *stubKnowledge) SimilarEntries(_ context.Context, _ string, _ int) ([]models.KnowledgeHit, error) {
	return s.hits, nil
}

func highCPUSnapshot() *models.Snapshot {
	now := time.Now().UTC()
	series := models.MetricSeries{Name: "cpu_utilization", Unit: "percent"}
	for i := 0; i < 4; i++ {
		series.Points = append(series.Points, models.MetricPoint{
			Timestamp: now.Add(time.Duration(i-4) * time.Minute),
			Value:     96,
		})
	}
	return &models.Snapshot{
		Scope:   "checkout",
		Window:  models.TimeRange{Start: now.Add(-15 * time.Minute), End: now},
		Metrics: []models.MetricSeries{series},
	}
}

func quietSnapshot() *models.Snapshot {
	now := time.Now().UTC()
	return &models.Snapshot{
		Scope:  "checkout",
		Window: models.TimeRange{Start: now.Add(-15 * time.Minute), End: now},
		Events: []models.EventRecord{{Severity: "error", Message: "sporadic failure"}},
	}
}

func TestDeterministicTierStopsEscalation(t *testing.T) {
	reasoner := &scriptedReasoner{}
	engine := NewEngine(nil, patterns.NewMatcher(nil, nil), nil, reasoner, Options{
		Tier1Model: "cheap",
		Tier2Model: "expensive",
	})

	result, err := engine.Infer(context.Background(), highCPUSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tier != models.TierDeterministic {
		t.Fatalf("expected deterministic tier, got %s", result.Tier)
	}
	if result.RootCause != "cpu-saturation" {
		t.Fatalf("unexpected root cause %q", result.RootCause)
	}
	if len(reasoner.calls) != 0 {
		t.Fatalf("high-confidence deterministic match must not call models, got %v", reasoner.calls)
	}
}

func TestEscalatesToTier1(t *testing.T) {
	reasoner := &scriptedReasoner{
		outputs: map[string]repo.InferenceOutput{
			"cheap": {RootCause: "flaky-dependency", Confidence: 0.9, Rationale: "intermittent upstream errors"},
		},
	}
	engine := NewEngine(nil, patterns.NewMatcher(nil, nil), &stubKnowledge{}, reasoner, Options{
		Tier1Model: "cheap",
		Tier2Model: "expensive",
	})

	result, err := engine.Infer(context.Background(), quietSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tier != models.TierModel1 {
		t.Fatalf("expected model tier 1, got %s", result.Tier)
	}
	if result.RootCause != "flaky-dependency" {
		t.Fatalf("unexpected root cause %q", result.RootCause)
	}
	if len(reasoner.calls) != 1 || reasoner.calls[0] != "cheap" {
		t.Fatalf("expected exactly one tier-1 call, got %v", reasoner.calls)
	}
}

func TestEscalatesToTier2OnLowConfidence(t *testing.T) {
	reasoner := &scriptedReasoner{
		outputs: map[string]repo.InferenceOutput{
			"cheap":     {RootCause: "maybe-this", Confidence: 0.4},
			"expensive": {RootCause: "config-regression", Confidence: 0.6, Rationale: "deploy preceded errors"},
		},
	}
	engine := NewEngine(nil, patterns.NewMatcher(nil, nil), &stubKnowledge{}, reasoner, Options{
		Tier1Model: "cheap",
		Tier2Model: "expensive",
	})

	result, err := engine.Infer(context.Background(), quietSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tier != models.TierModel2 {
		t.Fatalf("expected model tier 2, got %s", result.Tier)
	}
	if !result.LowConfidence {
		t.Fatal("final result below threshold must be flagged low-confidence")
	}
	if len(reasoner.calls) != 2 {
		t.Fatalf("expected both model tiers called, got %v", reasoner.calls)
	}
}

func TestTierFailureSkipsToNext(t *testing.T) {
	reasoner := &scriptedReasoner{
		errs: map[string]error{"cheap": fmt.Errorf("rate limited")},
		outputs: map[string]repo.InferenceOutput{
			"expensive": {RootCause: "config-regression", Confidence: 0.9},
		},
	}
	engine := NewEngine(nil, patterns.NewMatcher(nil, nil), &stubKnowledge{}, reasoner, Options{
		Tier1Model: "cheap",
		Tier2Model: "expensive",
		MaxRetries: 1,
	})

	result, err := engine.Infer(context.Background(), quietSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tier != models.TierModel2 {
		t.Fatalf("expected tier 2 after tier 1 failure, got %s", result.Tier)
	}
}

func TestEvidenceFromKnowledgeReachesModelTiers(t *testing.T) {
	knowledge := &stubKnowledge{hits: []models.KnowledgeHit{{
		Entry: models.KnowledgeEntry{ID: "k-1", RootCause: "config-regression", Summary: "seen before"},
		Score: 0.8,
	}}}
	reasoner := &scriptedReasoner{
		outputs: map[string]repo.InferenceOutput{
			"cheap": {RootCause: "config-regression", Confidence: 0.9},
		},
	}
	engine := NewEngine(nil, patterns.NewMatcher(nil, nil), knowledge, reasoner, Options{
		Tier1Model: "cheap",
	})

	result, err := engine.Infer(context.Background(), quietSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, ev := range result.Evidence {
		if ev.Kind == models.EvidenceKnowledge && ev.Ref == "k-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("knowledge hit must appear in result evidence, got %+v", result.Evidence)
	}
}

func TestDeterministicOnlyNoMatchIsLowConfidence(t *testing.T) {
	engine := NewEngine(nil, patterns.NewMatcher(nil, nil), nil, nil, Options{})

	result, err := engine.Infer(context.Background(), &models.Snapshot{Scope: "checkout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RootCause != models.RootCauseUnknown {
		t.Fatalf("expected unknown root cause, got %q", result.RootCause)
	}
	if !result.LowConfidence || result.Confidence != 0 {
		t.Fatalf("no-match result must be low confidence at zero, got %+v", result)
	}
}
