package models

import "time"

// SourceKind enumerates telemetry source categories feeding a snapshot.
type SourceKind string

const (
	SourceMetrics SourceKind = "metrics"
	SourceEvents  SourceKind = "events"
	SourceAudit   SourceKind = "audit"
)

// MetricPoint is a single timestamped sample.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSeries groups samples for one named metric.
type MetricSeries struct {
	Name   string        `json:"name"`
	Unit   string        `json:"unit"`
	Points []MetricPoint `json:"points"`
}

// EventRecord is a structured event emitted by a monitored resource.
type EventRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// AuditRecord captures a control-plane action from the audit trail.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
}

// TimeRange bounds a collection window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Snapshot is a correlated bundle of telemetry for one scope. A new
// collection always produces a new Snapshot; cached snapshots are shared
// by pointer and must never be mutated after creation.
type Snapshot struct {
	Scope       string         `json:"scope"`
	CollectedAt time.Time      `json:"collected_at"`
	Window      TimeRange      `json:"window"`
	Metrics     []MetricSeries `json:"metrics,omitempty"`
	Events      []EventRecord  `json:"events,omitempty"`
	Audit       []AuditRecord  `json:"audit,omitempty"`
	// Degraded lists sources that failed during collection. A degraded
	// snapshot is still usable; only total source failure is an error.
	Degraded []SourceKind `json:"degraded,omitempty"`
}

// Series returns the named metric series, if present.
func (s *Snapshot) Series(name string) (MetricSeries, bool) {
	for _, series := range s.Metrics {
		if series.Name == name {
			return series, true
		}
	}
	return MetricSeries{}, false
}

// IsDegraded reports whether the given source failed during collection.
func (s *Snapshot) IsDegraded(kind SourceKind) bool {
	for _, d := range s.Degraded {
		if d == kind {
			return true
		}
	}
	return false
}

// Age returns the snapshot age relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CollectedAt)
}
