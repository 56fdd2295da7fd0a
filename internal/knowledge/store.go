package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelops/incident-engine/internal/metrics"
	"github.com/sentinelops/incident-engine/internal/models"
)

// ErrBelowQualityGate is returned by Index when an entry's quality score does
// not clear the configured gate. The entry is not written anywhere.
var ErrBelowQualityGate = errors.New("entry quality below gate")

// Tier labels attached to search hits, in fallthrough order.
const (
	TierKeyword  = "keyword"
	TierSemantic = "semantic"
	TierBroad    = "broad"
)

// Durable is the authoritative key/keyword tier.
type Durable interface {
	PutEntry(ctx context.Context, entry models.KnowledgeEntry) error
	GetEntry(ctx context.Context, id string) (models.KnowledgeEntry, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error)
	ListEntries(ctx context.Context) ([]models.KnowledgeEntry, error)
	LearnedPatterns(ctx context.Context) ([]models.Pattern, error)
}

// Semantic is the derived, rebuildable vector tier.
type Semantic interface {
	Available() bool
	StoreEntry(ctx context.Context, entry models.KnowledgeEntry) error
	SimilarEntries(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error)
	BroadEntries(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error)
}

// Embedder produces a vector for an entry's text. Optional; without it the
// semantic backend vectorizes server-side.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Options tunes retrieval thresholds and the write-side quality gate.
type Options struct {
	// QualityGate is the minimum quality score an entry needs to be indexed.
	QualityGate float64
	// KeywordThreshold is the minimum keyword-tier score that satisfies a
	// search without falling through to the semantic tier.
	KeywordThreshold float64
	// SemanticThreshold is the minimum semantic certainty that satisfies a
	// search without falling through to the broad tier.
	SemanticThreshold float64
	EmbeddingModel    string
}

// Store is the two-tier knowledge store. The durable tier is authoritative;
// the semantic tier is a derived index that can be dropped and rebuilt from
// it at any time.
type Store struct {
	logger   *slog.Logger
	durable  Durable
	semantic Semantic
	embedder Embedder
	opts     Options
}

// NewStore wires the tiers together. semantic and embedder may be nil.
func NewStore(logger *slog.Logger, durable Durable, semantic Semantic, embedder Embedder, opts Options) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QualityGate <= 0 {
		opts.QualityGate = 0.7
	}
	if opts.KeywordThreshold <= 0 {
		opts.KeywordThreshold = 0.85
	}
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = 0.70
	}
	return &Store{
		logger:   logger,
		durable:  durable,
		semantic: semantic,
		embedder: embedder,
		opts:     opts,
	}
}

// Search walks the tiers cheapest-first: exact keyword lookup, then semantic
// similarity, then a broad sweep. Each tier's hits are returned as soon as
// one clears its threshold, tagged with the tier that produced them.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	if limit <= 0 {
		limit = 3
	}

	hits, err := s.durable.KeywordSearch(ctx, query, limit)
	if err != nil {
		s.logger.Warn("keyword search failed", slog.Any("error", err))
	} else if len(hits) > 0 && hits[0].Score >= s.opts.KeywordThreshold {
		metrics.CountKnowledgeSearch(TierKeyword)
		return tagTier(hits, TierKeyword), nil
	}

	if s.semantic != nil && s.semantic.Available() {
		semHits, err := s.semantic.SimilarEntries(ctx, query, limit)
		if err != nil {
			s.logger.Warn("semantic search failed", slog.Any("error", err))
		} else if len(semHits) > 0 && semHits[0].Score >= s.opts.SemanticThreshold {
			metrics.CountKnowledgeSearch(TierSemantic)
			return tagTier(semHits, TierSemantic), nil
		}

		broadHits, err := s.semantic.BroadEntries(ctx, query, limit)
		if err != nil {
			s.logger.Warn("broad search failed", slog.Any("error", err))
		} else if len(broadHits) > 0 {
			if len(broadHits) > limit {
				broadHits = broadHits[:limit]
			}
			metrics.CountKnowledgeSearch(TierBroad)
			return tagTier(broadHits, TierBroad), nil
		}
	}

	// Fall back to whatever the keyword tier produced, even below threshold.
	return tagTier(hits, TierKeyword), nil
}

// SimilarEntries satisfies the inference engine's evidence lookup. Model-tier
// evidence wants semantically similar prior incidents, so the semantic tier
// is queried directly when available; the tiered Search is the fallback when
// it is not, or when it returns nothing.
func (s *Store) SimilarEntries(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	if limit <= 0 {
		limit = 3
	}
	if s.semantic != nil && s.semantic.Available() {
		hits, err := s.semantic.SimilarEntries(ctx, query, limit)
		if err != nil {
			s.logger.Warn("semantic evidence lookup failed", slog.Any("error", err))
		} else if len(hits) > 0 {
			metrics.CountKnowledgeSearch(TierSemantic)
			return tagTier(hits, TierSemantic), nil
		}
	}
	return s.Search(ctx, query, limit)
}

// Index writes one entry through the quality gate: below-gate entries are
// rejected, everything else is written durably first and then mirrored to
// the semantic tier best-effort. A semantic failure never fails the index
// operation; the entry is recoverable via RebuildIndex.
func (s *Store) Index(ctx context.Context, entry models.KnowledgeEntry) (models.KnowledgeEntry, error) {
	if entry.Quality < s.opts.QualityGate {
		return models.KnowledgeEntry{}, fmt.Errorf("quality %.2f, gate %.2f: %w", entry.Quality, s.opts.QualityGate, ErrBelowQualityGate)
	}

	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.Occurrences == 0 {
		entry.Occurrences = 1
	}

	if s.embedder != nil && len(entry.Vector) == 0 {
		vector, err := s.embedder.Embed(ctx, s.opts.EmbeddingModel, entry.Title+"\n"+entry.Summary)
		if err != nil {
			s.logger.Warn("embedding failed, semantic tier will vectorize server-side",
				slog.String("entry_id", entry.ID), slog.Any("error", err))
		} else {
			entry.Vector = vector
		}
	}

	if err := s.durable.PutEntry(ctx, entry); err != nil {
		return models.KnowledgeEntry{}, fmt.Errorf("durable write: %w", err)
	}

	if s.semantic != nil && s.semantic.Available() {
		if err := s.semantic.StoreEntry(ctx, entry); err != nil {
			s.logger.Warn("semantic index write failed",
				slog.String("entry_id", entry.ID), slog.Any("error", err))
		}
	}

	return entry, nil
}

// RecordOccurrence bumps an entry's occurrence count and nudges quality up,
// capped at 0.99.
func (s *Store) RecordOccurrence(ctx context.Context, id string) error {
	return s.adjust(ctx, id, +0.02)
}

// DecayQuality lowers an entry's quality after negative feedback. Entries
// are never deleted; decayed entries simply stop clearing retrieval
// thresholds.
func (s *Store) DecayQuality(ctx context.Context, id string) error {
	return s.adjust(ctx, id, -0.1)
}

func (s *Store) adjust(ctx context.Context, id string, delta float64) error {
	entry, err := s.durable.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if delta > 0 {
		entry.Occurrences++
	}
	entry.Quality += delta
	if entry.Quality > 0.99 {
		entry.Quality = 0.99
	}
	if entry.Quality < 0 {
		entry.Quality = 0
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := s.durable.PutEntry(ctx, entry); err != nil {
		return fmt.Errorf("durable write: %w", err)
	}
	if s.semantic != nil && s.semantic.Available() {
		if err := s.semantic.StoreEntry(ctx, entry); err != nil {
			s.logger.Warn("semantic index update failed",
				slog.String("entry_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// RebuildIndex replays every durable entry into the semantic tier. Used
// after the vector backend was down or wiped.
func (s *Store) RebuildIndex(ctx context.Context) (int, error) {
	if s.semantic == nil || !s.semantic.Available() {
		return 0, fmt.Errorf("no semantic backend configured")
	}
	entries, err := s.durable.ListEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}

	indexed := 0
	for _, entry := range entries {
		if err := s.semantic.StoreEntry(ctx, entry); err != nil {
			s.logger.Warn("rebuild: semantic write failed",
				slog.String("entry_id", entry.ID), slog.Any("error", err))
			continue
		}
		indexed++
	}
	s.logger.Info("semantic index rebuilt",
		slog.Int("indexed", indexed), slog.Int("total", len(entries)))
	return indexed, nil
}

// LearnedPatterns exposes the durable tier's validated patterns for the
// deterministic matcher.
func (s *Store) LearnedPatterns(ctx context.Context) ([]models.Pattern, error) {
	return s.durable.LearnedPatterns(ctx)
}

func tagTier(hits []models.KnowledgeHit, tier string) []models.KnowledgeHit {
	for i := range hits {
		hits[i].Tier = tier
	}
	return hits
}
