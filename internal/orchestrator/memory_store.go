package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/repo"
)

// MemoryIncidentStore is an in-memory IncidentStore for tests and for
// deployments that opt out of durable incident history.
type MemoryIncidentStore struct {
	mu        sync.RWMutex
	incidents map[string]models.Incident
}

// NewMemoryIncidentStore builds an empty store.
func NewMemoryIncidentStore() *MemoryIncidentStore {
	return &MemoryIncidentStore{incidents: make(map[string]models.Incident)}
}

// Save stores a copy of the incident.
func (s *MemoryIncidentStore) Save(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	s.incidents[incident.ID] = *incident
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the incident with the given id.
func (s *MemoryIncidentStore) Get(_ context.Context, id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	incident, ok := s.incidents[id]
	if !ok {
		return nil, repo.ErrIncidentNotFound
	}
	return &incident, nil
}

// List returns stored incidents, newest first, optionally filtered by state.
func (s *MemoryIncidentStore) List(_ context.Context, state models.IncidentState, limit int) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Incident, 0, len(s.incidents))
	for id := range s.incidents {
		incident := s.incidents[id]
		if state != "" && incident.State != state {
			continue
		}
		out = append(out, &incident)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
