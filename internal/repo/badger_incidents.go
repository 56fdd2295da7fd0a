package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sentinelops/incident-engine/internal/models"
)

// ErrIncidentNotFound signals a missing incident record.
var ErrIncidentNotFound = errors.New("incident not found")

const incidentKeyPrefix = "incident/"

// BadgerIncidentStore persists incidents at stage boundaries so a crash
// mid-pipeline can be resumed or audited.
type BadgerIncidentStore struct {
	db *badger.DB
}

// OpenBadgerIncidentStore opens (or creates) the incident store at path.
// An empty path opens an in-memory database, used by tests.
func OpenBadgerIncidentStore(path string, logger *slog.Logger) (*BadgerIncidentStore, error) {
	db, err := openBadger(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open incident store: %w", err)
	}
	return &BadgerIncidentStore{db: db}, nil
}

// Save writes the incident record, replacing any prior version.
func (s *BadgerIncidentStore) Save(_ context.Context, incident *models.Incident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(incidentKeyPrefix+incident.ID), data)
	})
}

// Get fetches an incident by id.
func (s *BadgerIncidentStore) Get(_ context.Context, id string) (*models.Incident, error) {
	var incident models.Incident
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(incidentKeyPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrIncidentNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &incident)
		})
	})
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// List returns stored incidents, newest first, optionally filtered by state.
func (s *BadgerIncidentStore) List(_ context.Context, state models.IncidentState, limit int) ([]*models.Incident, error) {
	var incidents []*models.Incident
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(incidentKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var incident models.Incident
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &incident)
			})
			if err != nil {
				return err
			}
			if state != "" && incident.State != state {
				continue
			}
			incidents = append(incidents, &incident)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents, nil
}

// Close releases the database.
func (s *BadgerIncidentStore) Close() error {
	return s.db.Close()
}
