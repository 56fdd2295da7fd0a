package patterns

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

// MatchResult pairs a pattern with the confidence of its match against one
// snapshot.
type MatchResult struct {
	Pattern    models.Pattern
	Confidence float64
	Matched    int
	Total      int
	Evidence   []models.Evidence
}

// Matcher is the deterministic rule engine: it evaluates every built-in and
// learned pattern against a snapshot with no external calls.
type Matcher struct {
	logger *slog.Logger

	mu      sync.RWMutex
	catalog []models.Pattern
	learned []models.Pattern
}

// NewMatcher constructs a matcher over the built-in catalog plus any
// pack-loaded patterns.
func NewMatcher(logger *slog.Logger, packPatterns []models.Pattern) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := Builtins()
	catalog = append(catalog, packPatterns...)
	return &Matcher{logger: logger, catalog: catalog}
}

// SetLearned replaces the learned-pattern set, typically refreshed from the
// knowledge store after the learning stage validates new patterns.
func (m *Matcher) SetLearned(patterns []models.Pattern) {
	m.mu.Lock()
	m.learned = append([]models.Pattern(nil), patterns...)
	m.mu.Unlock()
}

// Patterns returns a copy of the full catalog (built-in + pack + learned).
func (m *Matcher) Patterns() []models.Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]models.Pattern, 0, len(m.catalog)+len(m.learned))
	all = append(all, m.catalog...)
	all = append(all, m.learned...)
	return all
}

// AdjustConfidence applies feedback to a pattern: positive delta reinforces,
// negative decays. Confidence stays within [0.05, 0.99] so a pattern is
// never fully trusted nor fully silenced.
func (m *Matcher) AdjustConfidence(id string, delta float64, validatedAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range [][]models.Pattern{m.catalog, m.learned} {
		for i := range set {
			if set[i].ID != id {
				continue
			}
			set[i].BaseConfidence += delta
			if set[i].BaseConfidence > 0.99 {
				set[i].BaseConfidence = 0.99
			}
			if set[i].BaseConfidence < 0.05 {
				set[i].BaseConfidence = 0.05
			}
			if delta > 0 {
				set[i].ValidatedAt = validatedAt
			}
			return true
		}
	}
	return false
}

// Match evaluates every pattern against the snapshot and returns ranked
// results. Partial matches are allowed; only a full match reaches the
// pattern's base confidence. Returns an empty slice when nothing matches.
func (m *Matcher) Match(snapshot *models.Snapshot) []MatchResult {
	if snapshot == nil {
		return nil
	}

	results := make([]MatchResult, 0)
	for _, pattern := range m.Patterns() {
		if len(pattern.Conditions) == 0 {
			continue
		}
		matched := 0
		evidence := make([]models.Evidence, 0, len(pattern.Conditions))
		for _, cond := range pattern.Conditions {
			ok, detail := evalCondition(cond, snapshot)
			if !ok {
				continue
			}
			matched++
			evidence = append(evidence, models.Evidence{
				Kind:   models.EvidenceSnapshot,
				Ref:    pattern.ID,
				Detail: detail,
			})
		}
		if matched == 0 {
			continue
		}
		confidence := pattern.BaseConfidence * float64(matched) / float64(len(pattern.Conditions))
		results = append(results, MatchResult{
			Pattern:    pattern,
			Confidence: confidence,
			Matched:    matched,
			Total:      len(pattern.Conditions),
			Evidence:   evidence,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		if results[i].Pattern.BaseConfidence != results[j].Pattern.BaseConfidence {
			return results[i].Pattern.BaseConfidence > results[j].Pattern.BaseConfidence
		}
		return results[i].Pattern.ValidatedAt.After(results[j].Pattern.ValidatedAt)
	})

	return results
}

// evalCondition is a pure function of the snapshot: deterministic, no side
// effects.
func evalCondition(cond models.Condition, snapshot *models.Snapshot) (bool, string) {
	switch cond.Signal {
	case models.SourceMetrics:
		return evalMetricCondition(cond, snapshot)
	case models.SourceEvents:
		return evalEventCondition(cond, snapshot)
	case models.SourceAudit:
		return evalAuditCondition(cond, snapshot)
	case "degraded":
		if snapshot.IsDegraded(cond.Source) {
			return true, fmt.Sprintf("source %s degraded during collection", cond.Source)
		}
		return false, ""
	default:
		return false, ""
	}
}

func evalMetricCondition(cond models.Condition, snapshot *models.Snapshot) (bool, string) {
	series, ok := snapshot.Series(cond.Metric)
	if !ok {
		return false, ""
	}
	needed := cond.Consecutive
	if needed <= 0 {
		needed = 1
	}

	run := 0
	for _, point := range series.Points {
		if compare(point.Value, cond.Op, cond.Threshold) {
			run++
			if run >= needed {
				return true, fmt.Sprintf("%s %s %.2f for %d consecutive points", cond.Metric, cond.Op, cond.Threshold, needed)
			}
		} else {
			run = 0
		}
	}
	return false, ""
}

func evalEventCondition(cond models.Condition, snapshot *models.Snapshot) (bool, string) {
	needed := cond.MinCount
	if needed <= 0 {
		needed = 1
	}
	count := 0
	for _, ev := range snapshot.Events {
		if cond.Severity != "" && !strings.EqualFold(ev.Severity, cond.Severity) {
			continue
		}
		if cond.Contains != "" && !strings.Contains(strings.ToLower(ev.Message), strings.ToLower(cond.Contains)) {
			continue
		}
		count++
		if count >= needed {
			return true, fmt.Sprintf("%d events matched severity=%q contains=%q", count, cond.Severity, cond.Contains)
		}
	}
	return false, ""
}

func evalAuditCondition(cond models.Condition, snapshot *models.Snapshot) (bool, string) {
	needed := cond.MinCount
	if needed <= 0 {
		needed = 1
	}
	count := 0
	for _, rec := range snapshot.Audit {
		if cond.Action != "" && !strings.EqualFold(rec.Action, cond.Action) {
			continue
		}
		if cond.Contains != "" &&
			!strings.Contains(strings.ToLower(rec.Action), strings.ToLower(cond.Contains)) &&
			!strings.Contains(strings.ToLower(rec.Resource), strings.ToLower(cond.Contains)) {
			continue
		}
		count++
		if count >= needed {
			return true, fmt.Sprintf("%d audit records matched action=%q contains=%q", count, cond.Action, cond.Contains)
		}
	}
	return false, ""
}

func compare(value float64, op models.ConditionOp, threshold float64) bool {
	switch op {
	case models.OpGreaterThan:
		return value > threshold
	case models.OpGreaterEq:
		return value >= threshold
	case models.OpLessThan:
		return value < threshold
	case models.OpLessEq:
		return value <= threshold
	default:
		return false
	}
}
