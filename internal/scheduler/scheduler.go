package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/orchestrator"
)

// Options tunes the heartbeat loop.
type Options struct {
	Interval    time.Duration
	Scopes      []string
	Concurrency int
	// ScansPerSec rate-limits scope scans across a sweep so a long scope
	// list cannot stampede the telemetry backends.
	ScansPerSec float64
}

// Scheduler runs periodic diagnostic sweeps across configured scopes and
// expires stale approval requests between sweeps.
type Scheduler struct {
	logger *slog.Logger
	orch   *orchestrator.Orchestrator
	opts   Options
}

// New builds a scheduler over the orchestrator.
func New(logger *slog.Logger, orch *orchestrator.Orchestrator, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ScansPerSec <= 0 {
		opts.ScansPerSec = 2
	}
	return &Scheduler{logger: logger, orch: orch, opts: opts}
}

// Run blocks until ctx is cancelled, sweeping all scopes every interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Duration("interval", s.opts.Interval),
		slog.Int("scopes", len(s.opts.Scopes)))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	limiter := rate.NewLimiter(rate.Limit(s.opts.ScansPerSec), 1)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx, limiter)
		}
	}
}

// sweep scans every scope concurrently, bounded by the concurrency limit and
// the scan rate limiter. One scope's failure never aborts the others.
func (s *Scheduler) sweep(ctx context.Context, limiter *rate.Limiter) {
	start := time.Now()

	if expired, err := s.orch.ExpireApprovals(ctx); err != nil {
		s.logger.Warn("approval expiry sweep failed", slog.Any("error", err))
	} else if expired > 0 {
		s.logger.Info("expired stale approvals", slog.Int("count", expired))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, scope := range s.opts.Scopes {
		scope := scope
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			incident, err := s.orch.Run(gctx, models.Trigger{
				Scope: scope,
				Type:  models.TriggerScheduled,
			})
			if err != nil {
				s.logger.Warn("scheduled scan failed",
					slog.String("scope", scope),
					slog.Any("error", err))
				return nil
			}
			if incident.State == models.StateFailed {
				s.logger.Warn("scheduled scan produced failed incident",
					slog.String("scope", scope),
					slog.String("incident_id", incident.ID))
			}
			return nil
		})
	}

	// Errors are only context cancellation; per-scope failures are logged
	// above and swallowed.
	_ = g.Wait()

	s.logger.Debug("sweep finished",
		slog.Int("scopes", len(s.opts.Scopes)),
		slog.Duration("took", time.Since(start)))
}
