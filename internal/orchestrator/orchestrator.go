package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelops/incident-engine/internal/collector"
	"github.com/sentinelops/incident-engine/internal/inference"
	"github.com/sentinelops/incident-engine/internal/knowledge"
	"github.com/sentinelops/incident-engine/internal/metrics"
	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/patterns"
	"github.com/sentinelops/incident-engine/internal/safety"
	"github.com/sentinelops/incident-engine/internal/sop"
	"github.com/sentinelops/incident-engine/internal/utils"
)

// IncidentStore persists incidents at stage boundaries.
type IncidentStore interface {
	Save(ctx context.Context, incident *models.Incident) error
	Get(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, state models.IncidentState, limit int) ([]*models.Incident, error)
}

// Notifier delivers operator-facing notifications. Delivery is best-effort;
// a failed notification never fails the incident.
type Notifier interface {
	Notify(ctx context.Context, incident *models.Incident, subject, message string)
}

// Options tunes the pipeline.
type Options struct {
	SnapshotTTL    time.Duration
	Window         time.Duration
	ApprovalExpiry time.Duration
}

// Orchestrator drives incidents through the five-stage pipeline:
// collect, infer, match, execute, learn. The incident record is persisted at
// every stage transition so a crash is auditable and failed incidents can be
// retried.
type Orchestrator struct {
	logger    *slog.Logger
	snapshots *collector.SnapshotCache
	inference *inference.Engine
	registry  *sop.Registry
	gate      *safety.Gate
	executor  *sop.Executor
	knowledge *knowledge.Store
	matcher   *patterns.Matcher
	store     IncidentStore
	notifier  Notifier
	latency   *utils.LatencyTracker
	opts      Options

	now func() time.Time
}

// New wires the pipeline stages together.
func New(
	logger *slog.Logger,
	snapshots *collector.SnapshotCache,
	engine *inference.Engine,
	registry *sop.Registry,
	gate *safety.Gate,
	executor *sop.Executor,
	store *knowledge.Store,
	matcher *patterns.Matcher,
	incidents IncidentStore,
	notifier Notifier,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = time.Minute
	}
	if opts.Window <= 0 {
		opts.Window = 15 * time.Minute
	}
	if opts.ApprovalExpiry <= 0 {
		opts.ApprovalExpiry = 30 * time.Minute
	}
	return &Orchestrator{
		logger:    logger,
		snapshots: snapshots,
		inference: engine,
		registry:  registry,
		gate:      gate,
		executor:  executor,
		knowledge: store,
		matcher:   matcher,
		store:     incidents,
		notifier:  notifier,
		latency:   utils.NewLatencyTracker(512),
		opts:      opts,
	}
}

// Run creates an incident from the trigger and drives it through the
// pipeline. It returns the incident in whatever state it reached: closed,
// awaiting approval, or failed.
func (o *Orchestrator) Run(ctx context.Context, trigger models.Trigger) (*models.Incident, error) {
	now := o.clock()
	incident := &models.Incident{
		ID:        uuid.NewString(),
		Scope:     trigger.Scope,
		Trigger:   trigger.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	incident.MarkStage(models.StateCollecting, now)
	if err := o.store.Save(ctx, incident); err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	o.logger.Info("incident opened",
		slog.String("incident_id", incident.ID),
		slog.String("scope", incident.Scope),
		slog.String("trigger", string(incident.Trigger)))

	return o.advance(ctx, incident, trigger.Window)
}

// advance runs the pipeline from the incident's current stage to a terminal
// or waiting state.
func (o *Orchestrator) advance(ctx context.Context, incident *models.Incident, window models.TimeRange) (*models.Incident, error) {
	if incident.State == models.StateCollecting {
		if err := o.collect(ctx, incident, window); err != nil {
			return o.fail(ctx, incident, models.StateCollecting, err)
		}
		incident.MarkStage(models.StateInferring, o.clock())
		o.persist(ctx, incident)
	}

	if incident.State == models.StateInferring {
		o.infer(ctx, incident)
		incident.MarkStage(models.StateMatching, o.clock())
		o.persist(ctx, incident)
	}

	if incident.State == models.StateMatching {
		waiting, err := o.match(ctx, incident)
		if err != nil {
			return o.fail(ctx, incident, models.StateMatching, err)
		}
		if waiting {
			o.persist(ctx, incident)
			return incident, nil
		}
	}

	if incident.State == models.StateExecuting {
		o.execute(ctx, incident)
		incident.MarkStage(models.StateLearning, o.clock())
		o.persist(ctx, incident)
	}

	if incident.State == models.StateLearning {
		o.learn(ctx, incident)
	}

	return o.close(ctx, incident)
}

func (o *Orchestrator) collect(ctx context.Context, incident *models.Incident, window models.TimeRange) error {
	start := o.clock()
	if window.End.IsZero() {
		windowStart, windowEnd := utils.WindowEndingNow(o.opts.Window, o.clock())
		window = models.TimeRange{Start: windowStart, End: windowEnd}
	}

	snapshot, cached, err := o.snapshots.GetOrCollect(ctx, incident.Scope, window, o.opts.SnapshotTTL, incident.Trigger)
	if err != nil {
		return fmt.Errorf("collect telemetry: %w", err)
	}
	if cached {
		metrics.CountSnapshotCache("hit")
	} else {
		metrics.CountSnapshotCache("miss")
	}

	incident.Snapshot = snapshot
	metrics.ObserveStage(string(models.StateCollecting), o.clock().Sub(start))
	return nil
}

// infer never fails the incident: when every tier errors out the incident
// continues with an unknown root cause at zero confidence, which routes it
// to the wildcard triage SOP.
func (o *Orchestrator) infer(ctx context.Context, incident *models.Incident) {
	start := o.clock()
	result, err := o.inference.Infer(ctx, incident.Snapshot)
	if err != nil {
		o.logger.Warn("inference exhausted, proceeding with unknown cause",
			slog.String("incident_id", incident.ID),
			slog.Any("error", err))
		result = models.RCAResult{
			RootCause:     models.RootCauseUnknown,
			Confidence:    0,
			LowConfidence: true,
		}
	}
	incident.RCA = &result
	metrics.CountInferenceTier(string(result.Tier))
	metrics.ObserveStage(string(models.StateInferring), o.clock().Sub(start))

	o.logger.Info("root cause inferred",
		slog.String("incident_id", incident.ID),
		slog.String("root_cause", result.RootCause),
		slog.Float64("confidence", result.Confidence),
		slog.String("tier", string(result.Tier)))
}

// match selects SOPs and grades the best candidate through the safety gate.
// Returns true when the incident is parked awaiting operator approval.
func (o *Orchestrator) match(ctx context.Context, incident *models.Incident) (bool, error) {
	start := o.clock()

	rootCause := models.RootCauseUnknown
	if incident.RCA != nil {
		rootCause = incident.RCA.RootCause
		// Low-confidence diagnoses are not acted on automatically; route
		// them to triage instead of the cause-specific procedure.
		if incident.RCA.LowConfidence {
			rootCause = models.RootCauseUnknown
		}
	}

	matched := o.registry.FindApplicable(rootCause)
	if len(matched) == 0 {
		return false, fmt.Errorf("no SOP applicable to root cause %q", rootCause)
	}
	incident.MatchedSOPs = matched

	decision := o.gate.Decide(incident.Scope, matched[0])
	incident.Decision = &decision
	metrics.CountSafetyDecision(string(decision.Decision))
	metrics.ObserveStage(string(models.StateMatching), o.clock().Sub(start))

	o.logger.Info("safety decision",
		slog.String("incident_id", incident.ID),
		slog.String("sop_id", decision.SOPID),
		slog.String("risk", decision.Risk.String()),
		slog.String("decision", string(decision.Decision)),
		slog.String("reason", decision.Reason))

	switch decision.Decision {
	case models.DecisionAutoExecute:
		incident.MarkStage(models.StateExecuting, o.clock())
		o.persist(ctx, incident)
		return false, nil
	case models.DecisionNotify:
		incident.ExecutionStatus = models.ExecutionSkipped
		o.notify(ctx, incident, "execution deferred",
			fmt.Sprintf("SOP %s not executed: %s", decision.SOPID, decision.Reason))
		incident.MarkStage(models.StateLearning, o.clock())
		o.persist(ctx, incident)
		return false, nil
	case models.DecisionRequireApproval:
		incident.ApprovalExpiresAt = o.clock().Add(o.opts.ApprovalExpiry)
		incident.MarkStage(models.StateAwaitingApproval, o.clock())
		o.notify(ctx, incident, "approval required",
			fmt.Sprintf("SOP %s (%s) needs approval: %s. Rollback: %s",
				decision.SOPID, decision.Risk, decision.Reason, decision.Rollback))
		return true, nil
	default: // deny
		incident.ExecutionStatus = models.ExecutionSkipped
		o.notify(ctx, incident, "execution denied",
			fmt.Sprintf("SOP %s denied: %s", decision.SOPID, decision.Reason))
		incident.MarkStage(models.StateLearning, o.clock())
		o.persist(ctx, incident)
		return false, nil
	}
}

func (o *Orchestrator) execute(ctx context.Context, incident *models.Incident) {
	start := o.clock()
	def := incident.MatchedSOPs[0]

	outcomes, status := o.executor.Execute(ctx, incident.Scope, def)
	incident.Execution = outcomes
	incident.ExecutionStatus = status
	metrics.CountExecution(string(status))
	metrics.ObserveStage(string(models.StateExecuting), o.clock().Sub(start))

	if status != models.ExecutionSucceeded {
		o.notify(ctx, incident, "remediation incomplete",
			fmt.Sprintf("SOP %s finished with status %s", def.ID, status))
	}

	o.logger.Info("SOP executed",
		slog.String("incident_id", incident.ID),
		slog.String("sop_id", def.ID),
		slog.String("status", string(status)))
}

// learn writes a validated incident summary into the knowledge store and
// refreshes the matcher's learned patterns. Learning failures are logged but
// never fail a remediated incident.
func (o *Orchestrator) learn(ctx context.Context, incident *models.Incident) {
	start := o.clock()
	defer func() {
		metrics.ObserveStage(string(models.StateLearning), o.clock().Sub(start))
	}()

	if incident.RCA == nil || incident.RCA.RootCause == models.RootCauseUnknown {
		return
	}

	o.reinforce(ctx, incident)

	quality := incident.RCA.Confidence
	if incident.ExecutionStatus == models.ExecutionSucceeded {
		// A successful remediation validates the diagnosis.
		quality = utils.Clamp01(quality + 0.1)
	}

	entry := models.KnowledgeEntry{
		Kind:      models.EntryIncidentSummary,
		Title:     fmt.Sprintf("%s in %s", incident.RCA.RootCause, incident.Scope),
		Summary:   o.summarize(incident),
		RootCause: incident.RCA.RootCause,
		Scope:     incident.Scope,
		Keywords:  keywordsFor(incident),
		Quality:   quality,
	}

	stored, err := o.knowledge.Index(ctx, entry)
	if err != nil {
		o.logger.Warn("learning skipped",
			slog.String("incident_id", incident.ID),
			slog.Any("error", err))
		return
	}
	incident.LearnedEntryID = stored.ID

	if learned, err := o.knowledge.LearnedPatterns(ctx); err == nil {
		o.matcher.SetLearned(learned)
	} else {
		o.logger.Warn("learned-pattern refresh failed", slog.Any("error", err))
	}
}

// reinforce feeds the execution outcome back into the artifacts behind the
// diagnosis: cited knowledge entries gain an occurrence or lose quality, and
// the matched pattern's confidence is nudged in the same direction.
func (o *Orchestrator) reinforce(ctx context.Context, incident *models.Incident) {
	succeeded := incident.ExecutionStatus == models.ExecutionSucceeded
	failed := incident.ExecutionStatus == models.ExecutionFailed ||
		incident.ExecutionStatus == models.ExecutionPartial
	if !succeeded && !failed {
		return
	}

	for _, ev := range incident.RCA.Evidence {
		if ev.Ref == "" {
			continue
		}
		switch ev.Kind {
		case models.EvidenceKnowledge:
			var err error
			if succeeded {
				err = o.knowledge.RecordOccurrence(ctx, ev.Ref)
			} else {
				err = o.knowledge.DecayQuality(ctx, ev.Ref)
			}
			if err != nil {
				o.logger.Warn("knowledge feedback failed",
					slog.String("incident_id", incident.ID),
					slog.String("entry_id", ev.Ref),
					slog.Any("error", err))
			}
		case models.EvidencePattern:
			delta := 0.02
			if failed {
				delta = -0.05
			}
			o.matcher.AdjustConfidence(ev.Ref, delta, o.clock())
		}
	}
}

func (o *Orchestrator) close(ctx context.Context, incident *models.Incident) (*models.Incident, error) {
	incident.MarkStage(models.StateClosed, o.clock())
	o.persist(ctx, incident)

	duration := incident.UpdatedAt.Sub(incident.CreatedAt)
	o.latency.Observe(duration)
	metrics.ObserveIncident(string(incident.Trigger), duration, metrics.OutcomeSuccess)

	o.logger.Info("incident closed",
		slog.String("incident_id", incident.ID),
		slog.String("execution_status", string(incident.ExecutionStatus)),
		slog.Duration("duration", duration))
	return incident, nil
}

func (o *Orchestrator) fail(ctx context.Context, incident *models.Incident, stage models.IncidentState, cause error) (*models.Incident, error) {
	incident.FailedStage = stage
	incident.Error = cause.Error()
	incident.MarkStage(models.StateFailed, o.clock())
	o.persist(ctx, incident)

	metrics.ObserveIncident(string(incident.Trigger), incident.UpdatedAt.Sub(incident.CreatedAt), metrics.OutcomeError)
	o.logger.Error("incident failed",
		slog.String("incident_id", incident.ID),
		slog.String("stage", string(stage)),
		slog.Any("error", cause))
	return incident, nil
}

// Approve resumes an incident parked for approval. The approver id is
// recorded in the decision reason for the audit trail.
func (o *Orchestrator) Approve(ctx context.Context, id, approver string) (*models.Incident, error) {
	incident, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.State != models.StateAwaitingApproval {
		return nil, fmt.Errorf("incident %s is %s, not awaiting approval", id, incident.State)
	}
	if !incident.ApprovalExpiresAt.IsZero() && o.clock().After(incident.ApprovalExpiresAt) {
		incident.MarkStage(models.StateClosedExpired, o.clock())
		o.persist(ctx, incident)
		return nil, fmt.Errorf("approval window for incident %s expired", id)
	}

	incident.Decision.Reason = fmt.Sprintf("approved by %s (%s)", approver, incident.Decision.Reason)
	incident.MarkStage(models.StateExecuting, o.clock())
	o.persist(ctx, incident)

	o.logger.Info("incident approved",
		slog.String("incident_id", id),
		slog.String("approver", approver))
	return o.advance(ctx, incident, models.TimeRange{})
}

// Deny closes an incident parked for approval without executing.
func (o *Orchestrator) Deny(ctx context.Context, id, denier, reason string) (*models.Incident, error) {
	incident, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.State != models.StateAwaitingApproval {
		return nil, fmt.Errorf("incident %s is %s, not awaiting approval", id, incident.State)
	}

	incident.Decision.Decision = models.DecisionDeny
	incident.Decision.Reason = fmt.Sprintf("denied by %s: %s", denier, reason)
	incident.ExecutionStatus = models.ExecutionSkipped
	incident.MarkStage(models.StateLearning, o.clock())
	o.persist(ctx, incident)

	return o.advance(ctx, incident, models.TimeRange{})
}

// Retry re-runs a failed incident from its failed stage.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*models.Incident, error) {
	incident, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident.State != models.StateFailed {
		return nil, fmt.Errorf("incident %s is %s, only failed incidents can be retried", id, incident.State)
	}

	stage := incident.FailedStage
	if stage == "" {
		stage = models.StateCollecting
	}
	incident.FailedStage = ""
	incident.Error = ""
	incident.MarkStage(stage, o.clock())
	o.persist(ctx, incident)

	o.logger.Info("incident retried",
		slog.String("incident_id", id),
		slog.String("stage", string(stage)))
	return o.advance(ctx, incident, models.TimeRange{})
}

// ExpireApprovals closes every incident whose approval window has lapsed.
// Called periodically by the scheduler.
func (o *Orchestrator) ExpireApprovals(ctx context.Context) (int, error) {
	waiting, err := o.store.List(ctx, models.StateAwaitingApproval, 0)
	if err != nil {
		return 0, err
	}

	expired := 0
	now := o.clock()
	for _, incident := range waiting {
		if incident.ApprovalExpiresAt.IsZero() || now.Before(incident.ApprovalExpiresAt) {
			continue
		}
		incident.ExecutionStatus = models.ExecutionSkipped
		incident.MarkStage(models.StateClosedExpired, now)
		o.persist(ctx, incident)
		o.notify(ctx, incident, "approval expired",
			fmt.Sprintf("incident %s closed: approval not granted within the window", incident.ID))
		expired++
	}
	return expired, nil
}

// Latency exposes pipeline latency percentiles for the status endpoint.
func (o *Orchestrator) Latency(p float64) time.Duration {
	return o.latency.Percentile(p)
}

func (o *Orchestrator) persist(ctx context.Context, incident *models.Incident) {
	if err := o.store.Save(ctx, incident); err != nil {
		o.logger.Error("persist incident failed",
			slog.String("incident_id", incident.ID),
			slog.Any("error", err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, incident *models.Incident, subject, message string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, incident, subject, message)
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) summarize(incident *models.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Root cause %s diagnosed at confidence %.2f via %s.",
		incident.RCA.RootCause, incident.RCA.Confidence, incident.RCA.Tier)
	if len(incident.MatchedSOPs) > 0 {
		fmt.Fprintf(&b, " Remediation: %s (%s).",
			incident.MatchedSOPs[0].Title, incident.ExecutionStatus)
	}
	if incident.Snapshot != nil && len(incident.Snapshot.Degraded) > 0 {
		fmt.Fprintf(&b, " Collected with %d degraded sources.", len(incident.Snapshot.Degraded))
	}
	return b.String()
}

func keywordsFor(incident *models.Incident) []string {
	keywords := []string{incident.Scope}
	if incident.RCA != nil {
		keywords = append(keywords, strings.Split(incident.RCA.RootCause, "-")...)
		keywords = append(keywords, incident.RCA.RootCause)
	}
	if len(incident.MatchedSOPs) > 0 {
		keywords = append(keywords, incident.MatchedSOPs[0].ID)
	}
	return keywords
}
