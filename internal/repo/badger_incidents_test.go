package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

func openTestIncidentStore(t *testing.T) *BadgerIncidentStore {
	t.Helper()
	store, err := OpenBadgerIncidentStore("", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIncidentSaveGet(t *testing.T) {
	store := openTestIncidentStore(t)
	ctx := context.Background()

	incident := &models.Incident{
		ID:        "i1",
		Scope:     "checkout",
		Trigger:   models.TriggerAlarm,
		State:     models.StateInferring,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Save(ctx, incident); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "i1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Scope != "checkout" || got.State != models.StateInferring {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrIncidentNotFound) {
		t.Fatalf("expected ErrIncidentNotFound, got %v", err)
	}
}

func TestIncidentListFilterAndOrder(t *testing.T) {
	store := openTestIncidentStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	incidents := []*models.Incident{
		{ID: "i1", State: models.StateClosed, CreatedAt: base.Add(-3 * time.Hour)},
		{ID: "i2", State: models.StateAwaitingApproval, CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "i3", State: models.StateClosed, CreatedAt: base.Add(-1 * time.Hour)},
	}
	for _, inc := range incidents {
		if err := store.Save(ctx, inc); err != nil {
			t.Fatalf("save %s: %v", inc.ID, err)
		}
	}

	closed, err := store.List(ctx, models.StateClosed, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("expected 2 closed incidents, got %d", len(closed))
	}
	if closed[0].ID != "i3" {
		t.Fatalf("expected newest first, got %s", closed[0].ID)
	}

	all, err := store.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit not applied, got %d", len(all))
	}
}
