package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

type stubMetrics struct {
	series []models.MetricSeries
	err    error
	calls  int
}

func (s *stubMetrics) FetchMetricSeries(_ context.Context, _ string, _, _ time.Time) ([]models.MetricSeries, error) {
	s.calls++
	return s.series, s.err
}

type stubEvents struct {
	events []models.EventRecord
	err    error
}

func (s *stubEvents) FetchEvents(_ context.Context, _ string, _, _ time.Time) ([]models.EventRecord, error) {
	return s.events, s.err
}

type stubAudit struct {
	records []models.AuditRecord
	err     error
}

func (s *stubAudit) FetchAuditRecords(_ context.Context, _ string, _, _ time.Time) ([]models.AuditRecord, error) {
	return s.records, s.err
}

func testWindow() models.TimeRange {
	end := time.Now().UTC()
	return models.TimeRange{Start: end.Add(-15 * time.Minute), End: end}
}

func TestCollectAssemblesSnapshot(t *testing.T) {
	metrics := &stubMetrics{series: []models.MetricSeries{{Name: "cpu_utilization"}}}
	events := &stubEvents{events: []models.EventRecord{{Message: "timeout", Severity: "error"}}}
	audit := &stubAudit{records: []models.AuditRecord{{Actor: "deploy-bot", Action: "update"}}}

	c := New(nil, metrics, events, audit, 1)
	snapshot, err := c.Collect(context.Background(), "checkout", testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshot.Metrics) != 1 || len(snapshot.Events) != 1 || len(snapshot.Audit) != 1 {
		t.Fatalf("snapshot missing data: %+v", snapshot)
	}
	if len(snapshot.Degraded) != 0 {
		t.Fatalf("expected no degraded sources, got %v", snapshot.Degraded)
	}
}

func TestCollectPartialFailureDegrades(t *testing.T) {
	metrics := &stubMetrics{err: fmt.Errorf("influx down")}
	events := &stubEvents{events: []models.EventRecord{{Message: "ok"}}}
	audit := &stubAudit{}

	c := New(nil, metrics, events, audit, 1)
	snapshot, err := c.Collect(context.Background(), "checkout", testWindow())
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if !snapshot.IsDegraded(models.SourceMetrics) {
		t.Fatalf("expected metrics to be degraded, got %v", snapshot.Degraded)
	}
	if snapshot.IsDegraded(models.SourceEvents) {
		t.Fatal("events source should not be degraded")
	}
	if metrics.calls < 2 {
		t.Fatalf("expected retries on metrics backend, got %d calls", metrics.calls)
	}
}

func TestCollectAllSourcesFail(t *testing.T) {
	c := New(nil,
		&stubMetrics{err: fmt.Errorf("down")},
		&stubEvents{err: fmt.Errorf("down")},
		&stubAudit{err: fmt.Errorf("down")},
		1,
	)
	if _, err := c.Collect(context.Background(), "checkout", testWindow()); err == nil {
		t.Fatal("expected error when every source fails")
	}
}

func TestCollectRequiresScope(t *testing.T) {
	c := New(nil, &stubMetrics{}, &stubEvents{}, &stubAudit{}, 1)
	if _, err := c.Collect(context.Background(), "", testWindow()); err == nil {
		t.Fatal("expected error for empty scope")
	}
}

func TestSnapshotCacheReusesWithinTTL(t *testing.T) {
	metrics := &stubMetrics{series: []models.MetricSeries{{Name: "cpu_utilization"}}}
	c := New(nil, metrics, &stubEvents{}, &stubAudit{}, 1)
	cache := NewSnapshotCache(c)

	first, cached, err := cache.GetOrCollect(context.Background(), "checkout", testWindow(), time.Minute, models.TriggerScheduled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("first lookup must be a miss")
	}

	second, cached, err := cache.GetOrCollect(context.Background(), "checkout", testWindow(), time.Minute, models.TriggerAlarm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached {
		t.Fatal("second lookup within TTL must be a hit")
	}
	if first != second {
		t.Fatal("cache hit must return the identical snapshot")
	}
	if metrics.calls != 1 {
		t.Fatalf("expected one backend call, got %d", metrics.calls)
	}
}

func TestSnapshotCacheManualBypass(t *testing.T) {
	metrics := &stubMetrics{series: []models.MetricSeries{{Name: "cpu_utilization"}}}
	c := New(nil, metrics, &stubEvents{}, &stubAudit{}, 1)
	cache := NewSnapshotCache(c)

	if _, _, err := cache.GetOrCollect(context.Background(), "checkout", testWindow(), time.Minute, models.TriggerScheduled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, cached, err := cache.GetOrCollect(context.Background(), "checkout", testWindow(), time.Minute, models.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("manual trigger must bypass the cache")
	}
	if metrics.calls != 2 {
		t.Fatalf("expected two backend calls, got %d", metrics.calls)
	}
}

func TestSnapshotCacheExpires(t *testing.T) {
	metrics := &stubMetrics{}
	c := New(nil, metrics, &stubEvents{}, &stubAudit{}, 1)
	cache := NewSnapshotCache(c)

	if _, _, err := cache.GetOrCollect(context.Background(), "checkout", testWindow(), time.Nanosecond, models.TriggerScheduled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(time.Millisecond)
	_, cached, err := cache.GetOrCollect(context.Background(), "checkout", testWindow(), time.Nanosecond, models.TriggerScheduled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("expired entry must not be served")
	}
}
