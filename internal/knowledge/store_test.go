package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sentinelops/incident-engine/internal/models"
)

type fakeDurable struct {
	entries map[string]models.KnowledgeEntry
	puts    int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: make(map[string]models.KnowledgeEntry)}
}

func (f *fakeDurable) PutEntry(_ context.Context, entry models.KnowledgeEntry) error {
	f.puts++
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeDurable) GetEntry(_ context.Context, id string) (models.KnowledgeEntry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return models.KnowledgeEntry{}, fmt.Errorf("not found")
	}
	return entry, nil
}

func (f *fakeDurable) KeywordSearch(_ context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	var hits []models.KnowledgeHit
	for _, entry := range f.entries {
		if strings.Contains(strings.ToLower(entry.Title), strings.ToLower(query)) {
			hits = append(hits, models.KnowledgeHit{Entry: entry, Score: 1.0})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Entry.ID < hits[j].Entry.ID })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeDurable) ListEntries(_ context.Context) ([]models.KnowledgeEntry, error) {
	out := make([]models.KnowledgeEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeDurable) LearnedPatterns(_ context.Context) ([]models.Pattern, error) {
	var patterns []models.Pattern
	for _, e := range f.entries {
		if e.Kind == models.EntryPattern && e.Pattern != nil {
			patterns = append(patterns, *e.Pattern)
		}
	}
	return patterns, nil
}

type fakeSemantic struct {
	available bool
	stored    map[string]models.KnowledgeEntry
	similar   []models.KnowledgeHit
	broad     []models.KnowledgeHit
	storeErr  error
}

func newFakeSemantic() *fakeSemantic {
	return &fakeSemantic{available: true, stored: make(map[string]models.KnowledgeEntry)}
}

func (f *fakeSemantic) Available() bool { return f.available }

func (f *fakeSemantic) StoreEntry(_ context.Context, entry models.KnowledgeEntry) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored[entry.ID] = entry
	return nil
}

func (f *fakeSemantic) SimilarEntries(_ context.Context, _ string, _ int) ([]models.KnowledgeHit, error) {
	return f.similar, nil
}

func (f *fakeSemantic) BroadEntries(_ context.Context, _ string, _ int) ([]models.KnowledgeHit, error) {
	return f.broad, nil
}

func TestIndexRejectsBelowQualityGate(t *testing.T) {
	store := NewStore(nil, newFakeDurable(), nil, nil, Options{QualityGate: 0.7})
	_, err := store.Index(context.Background(), models.KnowledgeEntry{
		Title:   "weak diagnosis",
		Quality: 0.5,
	})
	if !errors.Is(err, ErrBelowQualityGate) {
		t.Fatalf("expected ErrBelowQualityGate, got %v", err)
	}
}

func TestIndexDualWrites(t *testing.T) {
	durable := newFakeDurable()
	semantic := newFakeSemantic()
	store := NewStore(nil, durable, semantic, nil, Options{})

	entry, err := store.Index(context.Background(), models.KnowledgeEntry{
		Title:     "cpu saturation in checkout",
		RootCause: "cpu-saturation",
		Quality:   0.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("index must assign an id")
	}
	if _, ok := durable.entries[entry.ID]; !ok {
		t.Fatal("entry missing from durable tier")
	}
	if _, ok := semantic.stored[entry.ID]; !ok {
		t.Fatal("entry missing from semantic tier")
	}
}

func TestIndexSurvivesSemanticFailure(t *testing.T) {
	durable := newFakeDurable()
	semantic := newFakeSemantic()
	semantic.storeErr = fmt.Errorf("weaviate down")
	store := NewStore(nil, durable, semantic, nil, Options{})

	entry, err := store.Index(context.Background(), models.KnowledgeEntry{
		Title:   "cpu saturation in checkout",
		Quality: 0.9,
	})
	if err != nil {
		t.Fatalf("semantic failure must not fail indexing: %v", err)
	}
	if _, ok := durable.entries[entry.ID]; !ok {
		t.Fatal("durable write must still land")
	}
}

func TestSearchKeywordTierSatisfies(t *testing.T) {
	durable := newFakeDurable()
	durable.entries["k1"] = models.KnowledgeEntry{ID: "k1", Title: "cpu saturation"}
	semantic := newFakeSemantic()
	semantic.similar = []models.KnowledgeHit{{Entry: models.KnowledgeEntry{ID: "s1"}, Score: 0.99}}

	store := NewStore(nil, durable, semantic, nil, Options{KeywordThreshold: 0.85})
	hits, err := store.Search(context.Background(), "cpu", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.ID != "k1" {
		t.Fatalf("expected keyword hit, got %+v", hits)
	}
	if hits[0].Tier != TierKeyword {
		t.Fatalf("expected keyword tier tag, got %s", hits[0].Tier)
	}
}

func TestSearchFallsThroughToSemantic(t *testing.T) {
	durable := newFakeDurable()
	semantic := newFakeSemantic()
	semantic.similar = []models.KnowledgeHit{{Entry: models.KnowledgeEntry{ID: "s1"}, Score: 0.8}}

	store := NewStore(nil, durable, semantic, nil, Options{SemanticThreshold: 0.7})
	hits, err := store.Search(context.Background(), "nothing matches keywords", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Tier != TierSemantic {
		t.Fatalf("expected semantic hit, got %+v", hits)
	}
}

func TestSearchFallsThroughToBroad(t *testing.T) {
	durable := newFakeDurable()
	semantic := newFakeSemantic()
	semantic.similar = []models.KnowledgeHit{{Entry: models.KnowledgeEntry{ID: "s1"}, Score: 0.4}}
	semantic.broad = []models.KnowledgeHit{{Entry: models.KnowledgeEntry{ID: "b1"}, Score: 0.3}}

	store := NewStore(nil, durable, semantic, nil, Options{})
	hits, err := store.Search(context.Background(), "novel failure", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.ID != "b1" || hits[0].Tier != TierBroad {
		t.Fatalf("expected broad-tier hit, got %+v", hits)
	}
}

func TestSimilarEntriesPrefersSemanticTier(t *testing.T) {
	// Evidence lookups want semantically similar incidents even when the
	// keyword tier has an exact match for the query.
	durable := newFakeDurable()
	durable.entries["k1"] = models.KnowledgeEntry{ID: "k1", Title: "cpu saturation"}
	semantic := newFakeSemantic()
	semantic.similar = []models.KnowledgeHit{{Entry: models.KnowledgeEntry{ID: "s1"}, Score: 0.75}}

	store := NewStore(nil, durable, semantic, nil, Options{})
	hits, err := store.SimilarEntries(context.Background(), "cpu", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.ID != "s1" || hits[0].Tier != TierSemantic {
		t.Fatalf("expected semantic hit, got %+v", hits)
	}

	// Without a semantic backend the tiered search serves the lookup.
	keywordOnly := NewStore(nil, durable, nil, nil, Options{})
	hits, err = keywordOnly.SimilarEntries(context.Background(), "cpu", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.ID != "k1" {
		t.Fatalf("expected keyword fallback, got %+v", hits)
	}
}

func TestRecordOccurrenceAndDecay(t *testing.T) {
	durable := newFakeDurable()
	durable.entries["k1"] = models.KnowledgeEntry{ID: "k1", Quality: 0.8, Occurrences: 1}
	store := NewStore(nil, durable, nil, nil, Options{})

	if err := store.RecordOccurrence(context.Background(), "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := durable.entries["k1"]
	if entry.Occurrences != 2 {
		t.Fatalf("expected occurrences 2, got %d", entry.Occurrences)
	}
	if entry.Quality <= 0.8 {
		t.Fatalf("occurrence must raise quality, got %.2f", entry.Quality)
	}

	if err := store.DecayQuality(context.Background(), "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if durable.entries["k1"].Quality >= entry.Quality {
		t.Fatalf("decay must lower quality, got %.2f", durable.entries["k1"].Quality)
	}
}

func TestRebuildIndexReplaysDurableEntries(t *testing.T) {
	durable := newFakeDurable()
	durable.entries["k1"] = models.KnowledgeEntry{ID: "k1"}
	durable.entries["k2"] = models.KnowledgeEntry{ID: "k2"}
	semantic := newFakeSemantic()

	store := NewStore(nil, durable, semantic, nil, Options{})
	indexed, err := store.RebuildIndex(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed != 2 || len(semantic.stored) != 2 {
		t.Fatalf("expected 2 entries rebuilt, got %d", indexed)
	}
}
