package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/utils"
)

// MetricsBackend reads metric series for a scope.
type MetricsBackend interface {
	FetchMetricSeries(ctx context.Context, scope string, start, end time.Time) ([]models.MetricSeries, error)
}

// EventsBackend reads structured events for a scope.
type EventsBackend interface {
	FetchEvents(ctx context.Context, scope string, start, end time.Time) ([]models.EventRecord, error)
}

// AuditBackend reads audit-trail records for a scope.
type AuditBackend interface {
	FetchAuditRecords(ctx context.Context, scope string, start, end time.Time) ([]models.AuditRecord, error)
}

// Collector fetches metrics, events and audit records for a scope and
// normalizes them into a single correlated snapshot.
type Collector struct {
	logger     *slog.Logger
	metrics    MetricsBackend
	events     EventsBackend
	audit      AuditBackend
	maxRetries int
}

// New constructs a Collector. Any backend may be nil; a nil backend counts
// as a degraded source, not a failure.
func New(logger *slog.Logger, metrics MetricsBackend, events EventsBackend, audit AuditBackend, maxRetries int) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Collector{
		logger:     logger,
		metrics:    metrics,
		events:     events,
		audit:      audit,
		maxRetries: maxRetries,
	}
}

// Collect fans out to the three telemetry sources and assembles a snapshot.
// Partial backend failure degrades the snapshot; only total failure (all
// sources unreachable) returns an error.
func (c *Collector) Collect(ctx context.Context, scope string, window models.TimeRange) (*models.Snapshot, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope is required")
	}

	var (
		metrics []models.MetricSeries
		events  []models.EventRecord
		audit   []models.AuditRecord

		metricsErr error
		eventsErr  error
		auditErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if c.metrics == nil {
			metricsErr = fmt.Errorf("metrics backend not configured")
			return nil
		}
		metricsErr = c.retry(gctx, func() error {
			var err error
			metrics, err = c.metrics.FetchMetricSeries(gctx, scope, window.Start, window.End)
			return err
		})
		return nil
	})
	g.Go(func() error {
		if c.events == nil {
			eventsErr = fmt.Errorf("events backend not configured")
			return nil
		}
		eventsErr = c.retry(gctx, func() error {
			var err error
			events, err = c.events.FetchEvents(gctx, scope, window.Start, window.End)
			return err
		})
		return nil
	})
	g.Go(func() error {
		if c.audit == nil {
			auditErr = fmt.Errorf("audit backend not configured")
			return nil
		}
		auditErr = c.retry(gctx, func() error {
			var err error
			audit, err = c.audit.FetchAuditRecords(gctx, scope, window.Start, window.End)
			return err
		})
		return nil
	})
	_ = g.Wait()

	if metricsErr != nil && eventsErr != nil && auditErr != nil {
		return nil, utils.NewAppError("collector.Collect",
			fmt.Sprintf("all telemetry sources failed for scope %s", scope),
			fmt.Errorf("metrics: %v; events: %v; audit: %v", metricsErr, eventsErr, auditErr))
	}

	snapshot := &models.Snapshot{
		Scope:       scope,
		CollectedAt: time.Now().UTC(),
		Window:      window,
		Metrics:     metrics,
		Events:      events,
		Audit:       audit,
	}

	for _, failure := range []struct {
		kind models.SourceKind
		err  error
	}{
		{models.SourceMetrics, metricsErr},
		{models.SourceEvents, eventsErr},
		{models.SourceAudit, auditErr},
	} {
		if failure.err != nil {
			snapshot.Degraded = append(snapshot.Degraded, failure.kind)
			c.logger.Warn("telemetry source degraded",
				slog.String("scope", scope),
				slog.String("source", string(failure.kind)),
				slog.Any("error", failure.err))
		}
	}

	return snapshot, nil
}

// retry wraps a read-only backend call with bounded exponential backoff.
func (c *Collector) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	return backoff.Retry(op, policy)
}
