package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/sentinelops/incident-engine/internal/models"
	"github.com/sentinelops/incident-engine/internal/patterns"
	"github.com/sentinelops/incident-engine/internal/repo"
)

// Reasoner calls a reasoning model at a named cost/capability tier.
type Reasoner interface {
	Infer(ctx context.Context, model, prompt string) (repo.InferenceOutput, error)
}

// KnowledgeSearcher retrieves similar historical cases for evidence.
type KnowledgeSearcher interface {
	SimilarEntries(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error)
}

// Tier is one escalation level: a stateless strategy record, iterated in
// cost order until a confidence threshold is met.
type Tier struct {
	Name     models.InferenceTier
	CostRank int
	Run      func(ctx context.Context, snapshot *models.Snapshot, evidence []models.Evidence) (models.RCAResult, error)
}

// Options configures the escalation behaviour.
type Options struct {
	HighThreshold float64
	Tier1Model    string
	Tier2Model    string
	EvidenceLimit int
	MaxRetries    int
}

// Engine escalates root-cause inference through cheap deterministic
// matching and, when confidence is insufficient, increasingly capable
// reasoning models.
type Engine struct {
	logger    *slog.Logger
	matcher   *patterns.Matcher
	knowledge KnowledgeSearcher
	tiers     []Tier
	opts      Options
}

// NewEngine builds the tier list. reasoner may be nil, in which case only
// the deterministic tier is available.
func NewEngine(logger *slog.Logger, matcher *patterns.Matcher, knowledge KnowledgeSearcher, reasoner Reasoner, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HighThreshold <= 0 {
		opts.HighThreshold = 0.85
	}
	if opts.EvidenceLimit <= 0 {
		opts.EvidenceLimit = 3
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}

	e := &Engine{
		logger:    logger,
		matcher:   matcher,
		knowledge: knowledge,
		opts:      opts,
	}

	e.tiers = []Tier{
		{Name: models.TierDeterministic, CostRank: 0, Run: e.runDeterministic},
	}
	if reasoner != nil {
		if opts.Tier1Model != "" {
			e.tiers = append(e.tiers, Tier{
				Name:     models.TierModel1,
				CostRank: 1,
				Run:      e.modelTier(reasoner, opts.Tier1Model, models.TierModel1),
			})
		}
		if opts.Tier2Model != "" {
			e.tiers = append(e.tiers, Tier{
				Name:     models.TierModel2,
				CostRank: 2,
				Run:      e.modelTier(reasoner, opts.Tier2Model, models.TierModel2),
			})
		}
	}

	return e
}

// Infer runs the escalation until a tier clears the high threshold or tiers
// exhaust. The last tier's result is always returned, flagged low-confidence
// when below threshold; an error is returned only when every tier failed.
func (e *Engine) Infer(ctx context.Context, snapshot *models.Snapshot) (models.RCAResult, error) {
	start := time.Now()

	var (
		evidence    []models.Evidence
		lastResult  models.RCAResult
		lastErr     error
		haveResult  bool
		evidenceSet bool
	)

	for i, tier := range e.tiers {
		if ctx.Err() != nil {
			return models.RCAResult{}, ctx.Err()
		}

		// Historical evidence is fetched once, before the first model tier.
		if tier.CostRank > 0 && !evidenceSet {
			evidence = e.fetchEvidence(ctx, snapshot)
			evidenceSet = true
		}

		result, err := tier.Run(ctx, snapshot, evidence)
		if err != nil {
			lastErr = err
			e.logger.Warn("inference tier failed",
				slog.String("tier", string(tier.Name)),
				slog.Any("error", err))
			continue
		}

		result.Tier = tier.Name
		result.Latency = time.Since(start)
		lastResult = result
		haveResult = true

		if result.Confidence >= e.opts.HighThreshold {
			return result, nil
		}
		if i == len(e.tiers)-1 {
			break
		}
	}

	if !haveResult {
		if lastErr == nil {
			lastErr = fmt.Errorf("no inference tier produced a result")
		}
		return models.RCAResult{}, fmt.Errorf("inference exhausted: %w", lastErr)
	}

	lastResult.LowConfidence = lastResult.Confidence < e.opts.HighThreshold
	return lastResult, nil
}

func (e *Engine) runDeterministic(_ context.Context, snapshot *models.Snapshot, _ []models.Evidence) (models.RCAResult, error) {
	matches := e.matcher.Match(snapshot)
	if len(matches) == 0 {
		return models.RCAResult{
			RootCause:  models.RootCauseUnknown,
			Confidence: 0,
		}, nil
	}

	best := matches[0]
	evidence := append([]models.Evidence{{
		Kind:   models.EvidencePattern,
		Ref:    best.Pattern.ID,
		Detail: best.Pattern.Title,
		Score:  best.Confidence,
	}}, best.Evidence...)

	return models.RCAResult{
		RootCause:  best.Pattern.RootCause,
		Confidence: best.Confidence,
		Evidence:   evidence,
	}, nil
}

// modelTier wraps one reasoning model as an escalation tier with bounded
// retries on transient errors.
func (e *Engine) modelTier(reasoner Reasoner, model string, name models.InferenceTier) func(context.Context, *models.Snapshot, []models.Evidence) (models.RCAResult, error) {
	return func(ctx context.Context, snapshot *models.Snapshot, evidence []models.Evidence) (models.RCAResult, error) {
		prompt := buildPrompt(snapshot, evidence)

		var output repo.InferenceOutput
		op := func() error {
			var err error
			output, err = reasoner.Infer(ctx, model, prompt)
			return err
		}
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.opts.MaxRetries)),
			ctx,
		)
		if err := backoff.Retry(op, policy); err != nil {
			return models.RCAResult{}, fmt.Errorf("%s: %w", name, err)
		}

		resultEvidence := append([]models.Evidence(nil), evidence...)
		resultEvidence = append(resultEvidence, models.Evidence{
			Kind:   models.EvidenceModel,
			Ref:    model,
			Detail: output.Rationale,
			Score:  output.Confidence,
		})

		return models.RCAResult{
			RootCause:  output.RootCause,
			Confidence: output.Confidence,
			Rationale:  output.Rationale,
			Evidence:   resultEvidence,
		}, nil
	}
}

func (e *Engine) fetchEvidence(ctx context.Context, snapshot *models.Snapshot) []models.Evidence {
	if e.knowledge == nil {
		return nil
	}

	hits, err := e.knowledge.SimilarEntries(ctx, snapshotQuery(snapshot), e.opts.EvidenceLimit)
	if err != nil {
		e.logger.Warn("knowledge evidence lookup failed", slog.Any("error", err))
		return nil
	}

	evidence := make([]models.Evidence, 0, len(hits))
	for _, hit := range hits {
		evidence = append(evidence, models.Evidence{
			Kind:   models.EvidenceKnowledge,
			Ref:    hit.Entry.ID,
			Detail: fmt.Sprintf("%s: %s", hit.Entry.RootCause, hit.Entry.Summary),
			Score:  hit.Score,
		})
	}
	return evidence
}

// snapshotQuery condenses a snapshot into a retrieval query.
func snapshotQuery(snapshot *models.Snapshot) string {
	parts := []string{snapshot.Scope}
	for _, series := range snapshot.Metrics {
		parts = append(parts, series.Name)
	}
	errorCount := 0
	for _, ev := range snapshot.Events {
		if strings.EqualFold(ev.Severity, "error") {
			errorCount++
		}
	}
	if errorCount > 0 {
		parts = append(parts, "errors")
	}
	return strings.Join(parts, " ")
}

// buildPrompt renders the snapshot and historical evidence for the model.
func buildPrompt(snapshot *models.Snapshot, evidence []models.Evidence) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scope: %s\nWindow: %s to %s\n",
		snapshot.Scope,
		snapshot.Window.Start.Format(time.RFC3339),
		snapshot.Window.End.Format(time.RFC3339))

	if len(snapshot.Degraded) > 0 {
		degraded := make([]string, 0, len(snapshot.Degraded))
		for _, d := range snapshot.Degraded {
			degraded = append(degraded, string(d))
		}
		fmt.Fprintf(&b, "Degraded sources: %s\n", strings.Join(degraded, ", "))
	}

	b.WriteString("\nMetric series:\n")
	for _, series := range snapshot.Metrics {
		if len(series.Points) == 0 {
			continue
		}
		min, max, last := seriesStats(series)
		fmt.Fprintf(&b, "- %s (%s): min=%.2f max=%.2f last=%.2f over %d points\n",
			series.Name, series.Unit, min, max, last, len(series.Points))
	}

	b.WriteString("\nRecent events:\n")
	limit := len(snapshot.Events)
	if limit > 10 {
		limit = 10
	}
	for _, ev := range snapshot.Events[len(snapshot.Events)-limit:] {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", ev.Severity, ev.Source, ev.Message)
	}

	if len(snapshot.Audit) > 0 {
		b.WriteString("\nAudit trail:\n")
		for _, rec := range snapshot.Audit {
			fmt.Fprintf(&b, "- %s %s on %s\n", rec.Actor, rec.Action, rec.Resource)
		}
	}

	if len(evidence) > 0 {
		b.WriteString("\nSimilar historical incidents:\n")
		for _, ev := range evidence {
			fmt.Fprintf(&b, "- (score %.2f) %s\n", ev.Score, ev.Detail)
		}
	}

	return b.String()
}

func seriesStats(series models.MetricSeries) (min, max, last float64) {
	min = series.Points[0].Value
	max = series.Points[0].Value
	for _, p := range series.Points {
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
	}
	last = series.Points[len(series.Points)-1].Value
	return min, max, last
}
