package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels incidents that closed cleanly.
	OutcomeSuccess = "success"
	// OutcomeError labels incidents that ended in the failed state.
	OutcomeError = "error"
)

var (
	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "incidents_total",
			Help:      "Total number of incidents processed, partitioned by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	incidentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "incident_seconds",
			Help:      "End-to-end incident latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "stage_seconds",
			Help:      "Per-stage latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	inferenceTierTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "inference_tier_total",
			Help:      "Inference results by the tier that produced them.",
		},
		[]string{"tier"},
	)

	safetyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "safety_decisions_total",
			Help:      "Safety-gate decisions by outcome.",
		},
		[]string{"decision"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "sop_executions_total",
			Help:      "SOP executions by summary status.",
		},
		[]string{"status"},
	)

	knowledgeSearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "knowledge_search_total",
			Help:      "Knowledge-store searches by the tier that satisfied them.",
		},
		[]string{"tier"},
	)

	snapshotCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "snapshot_cache_total",
			Help:      "Snapshot lookups by cache outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches incident-engine collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		incidentsTotal,
		incidentDurationSeconds,
		stageDurationSeconds,
		inferenceTierTotal,
		safetyDecisionsTotal,
		executionsTotal,
		knowledgeSearchTotal,
		snapshotCacheTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIncident records a finished incident's duration and outcome.
func ObserveIncident(trigger string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	incidentsTotal.WithLabelValues(trigger, label).Inc()
	if duration < 0 {
		duration = 0
	}
	incidentDurationSeconds.Observe(duration.Seconds())
}

// ObserveStage records one pipeline stage's latency.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// CountInferenceTier records which tier produced the accepted RCA result.
func CountInferenceTier(tier string) {
	inferenceTierTotal.WithLabelValues(tier).Inc()
}

// CountSafetyDecision records a safety-gate outcome.
func CountSafetyDecision(decision string) {
	safetyDecisionsTotal.WithLabelValues(decision).Inc()
}

// CountExecution records a SOP execution summary status.
func CountExecution(status string) {
	executionsTotal.WithLabelValues(status).Inc()
}

// CountKnowledgeSearch records which retrieval tier satisfied a search.
func CountKnowledgeSearch(tier string) {
	knowledgeSearchTotal.WithLabelValues(tier).Inc()
}

// CountSnapshotCache records a snapshot cache hit or miss.
func CountSnapshotCache(outcome string) {
	snapshotCacheTotal.WithLabelValues(outcome).Inc()
}
