package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sentinelops/incident-engine/internal/models"
)

// ErrEntryNotFound signals a missing knowledge entry.
var ErrEntryNotFound = errors.New("knowledge entry not found")

const entryKeyPrefix = "entry/"

// BadgerKnowledgeStore is the authoritative durable tier of the knowledge
// store: key-based get/put plus keyword filtering over stored entries.
type BadgerKnowledgeStore struct {
	db *badger.DB
}

// OpenBadgerKnowledgeStore opens (or creates) the durable store at path.
// An empty path opens an in-memory database, used by tests.
func OpenBadgerKnowledgeStore(path string, logger *slog.Logger) (*BadgerKnowledgeStore, error) {
	db, err := openBadger(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return &BadgerKnowledgeStore{db: db}, nil
}

// PutEntry persists an entry. This write is authoritative: callers must
// treat its failure as an indexing failure.
func (s *BadgerKnowledgeStore) PutEntry(_ context.Context, entry models.KnowledgeEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryKeyPrefix+entry.ID), data)
	})
}

// GetEntry fetches an entry by id.
func (s *BadgerKnowledgeStore) GetEntry(_ context.Context, id string) (models.KnowledgeEntry, error) {
	var entry models.KnowledgeEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(entryKeyPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	return entry, err
}

// KeywordSearch scores stored entries against the query terms. The score is
// the fraction of query terms found among an entry's keywords, title and
// root cause; an exact keyword match scores 1.0.
func (s *BadgerKnowledgeStore) KeywordSearch(_ context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	var hits []models.KnowledgeHit
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry models.KnowledgeEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			score := keywordScore(entry, terms)
			if score <= 0 {
				continue
			}
			hits = append(hits, models.KnowledgeHit{Entry: entry, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.Quality > hits[j].Entry.Quality
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ListEntries streams every stored entry, used to rebuild the semantic index.
func (s *BadgerKnowledgeStore) ListEntries(_ context.Context) ([]models.KnowledgeEntry, error) {
	var entries []models.KnowledgeEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry models.KnowledgeEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// LearnedPatterns returns the patterns embedded in pattern-kind entries so
// the deterministic matcher can pick up what the learning loop validated.
func (s *BadgerKnowledgeStore) LearnedPatterns(ctx context.Context) ([]models.Pattern, error) {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	patterns := make([]models.Pattern, 0)
	for _, entry := range entries {
		if entry.Kind == models.EntryPattern && entry.Pattern != nil {
			patterns = append(patterns, *entry.Pattern)
		}
	}
	return patterns, nil
}

// Close releases the database.
func (s *BadgerKnowledgeStore) Close() error {
	return s.db.Close()
}

func keywordScore(entry models.KnowledgeEntry, terms []string) float64 {
	haystack := make(map[string]struct{}, len(entry.Keywords)+8)
	for _, kw := range entry.Keywords {
		haystack[strings.ToLower(kw)] = struct{}{}
	}
	for _, tok := range tokenize(entry.Title) {
		haystack[tok] = struct{}{}
	}
	for _, tok := range tokenize(entry.RootCause) {
		haystack[tok] = struct{}{}
	}

	matched := 0
	for _, term := range terms {
		if _, ok := haystack[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == ':' || r == '/' || r == '\t' || r == '\n'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func openBadger(path string, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)
	if logger != nil {
		opts = opts.WithLogger(&badgerSlogAdapter{logger: logger})
	}
	return badger.Open(opts)
}

// badgerSlogAdapter bridges badger's logger interface onto slog.
type badgerSlogAdapter struct {
	logger *slog.Logger
}

func (a *badgerSlogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (a *badgerSlogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (a *badgerSlogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (a *badgerSlogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(strings.TrimSpace(format), args...))
}
