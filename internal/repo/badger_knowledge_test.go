package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/sentinelops/incident-engine/internal/models"
)

func openTestKnowledgeStore(t *testing.T) *BadgerKnowledgeStore {
	t.Helper()
	store, err := OpenBadgerKnowledgeStore("", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetEntry(t *testing.T) {
	store := openTestKnowledgeStore(t)
	ctx := context.Background()

	entry := models.KnowledgeEntry{
		ID:        "e1",
		Kind:      models.EntryIncidentSummary,
		Title:     "cpu saturation in checkout",
		RootCause: "cpu-saturation",
		Quality:   0.9,
	}
	if err := store.PutEntry(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.GetEntry(ctx, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != entry.Title || got.RootCause != entry.RootCause {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	if _, err := store.GetEntry(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestKeywordSearchScoring(t *testing.T) {
	store := openTestKnowledgeStore(t)
	ctx := context.Background()

	entries := []models.KnowledgeEntry{
		{ID: "e1", Title: "cpu saturation in checkout", Keywords: []string{"cpu", "checkout"}, Quality: 0.9},
		{ID: "e2", Title: "disk full on logging node", Keywords: []string{"disk"}, Quality: 0.8},
		{ID: "e3", Title: "cpu spike", Keywords: []string{"cpu"}, Quality: 0.7},
	}
	for _, e := range entries {
		if err := store.PutEntry(ctx, e); err != nil {
			t.Fatalf("put %s: %v", e.ID, err)
		}
	}

	hits, err := store.KeywordSearch(ctx, "cpu checkout", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Entry.ID != "e1" {
		t.Fatalf("expected e1 (both terms) first, got %s", hits[0].Entry.ID)
	}
	if hits[0].Score != 1.0 {
		t.Fatalf("expected full-match score 1.0, got %.2f", hits[0].Score)
	}
	if hits[1].Score != 0.5 {
		t.Fatalf("expected half-match score 0.5, got %.2f", hits[1].Score)
	}
}

func TestLearnedPatterns(t *testing.T) {
	store := openTestKnowledgeStore(t)
	ctx := context.Background()

	pattern := &models.Pattern{
		ID:             "learned-1",
		RootCause:      "cache-stampede",
		BaseConfidence: 0.8,
		Source:         models.PatternLearned,
	}
	entries := []models.KnowledgeEntry{
		{ID: "e1", Kind: models.EntryPattern, Pattern: pattern, Quality: 0.9},
		{ID: "e2", Kind: models.EntryIncidentSummary, Quality: 0.9},
	}
	for _, e := range entries {
		if err := store.PutEntry(ctx, e); err != nil {
			t.Fatalf("put %s: %v", e.ID, err)
		}
	}

	patterns, err := store.LearnedPatterns(ctx)
	if err != nil {
		t.Fatalf("learned patterns: %v", err)
	}
	if len(patterns) != 1 || patterns[0].ID != "learned-1" {
		t.Fatalf("expected one learned pattern, got %+v", patterns)
	}
}
