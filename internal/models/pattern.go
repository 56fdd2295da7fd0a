package models

import "time"

// PatternSource records how a pattern entered the catalog.
type PatternSource string

const (
	PatternBuiltIn PatternSource = "built-in"
	PatternLearned PatternSource = "learned"
)

// ConditionOp enumerates comparison operators for metric conditions.
type ConditionOp string

const (
	OpGreaterThan ConditionOp = "gt"
	OpGreaterEq   ConditionOp = "gte"
	OpLessThan    ConditionOp = "lt"
	OpLessEq      ConditionOp = "lte"
)

// Condition is one serializable sub-predicate of a pattern. Evaluation is a
// pure function of a snapshot: no side effects, no external calls.
//
// The populated fields depend on Signal:
//   - metrics:  Metric, Op, Threshold, Consecutive
//   - events:   Severity and/or Contains, MinCount
//   - audit:    Action and/or Contains, MinCount
//   - degraded: Source
type Condition struct {
	Signal      SourceKind  `json:"signal" yaml:"signal"`
	Metric      string      `json:"metric,omitempty" yaml:"metric,omitempty"`
	Op          ConditionOp `json:"op,omitempty" yaml:"op,omitempty"`
	Threshold   float64     `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Consecutive int         `json:"consecutive,omitempty" yaml:"consecutive,omitempty"`
	Severity    string      `json:"severity,omitempty" yaml:"severity,omitempty"`
	Contains    string      `json:"contains,omitempty" yaml:"contains,omitempty"`
	Action      string      `json:"action,omitempty" yaml:"action,omitempty"`
	MinCount    int         `json:"min_count,omitempty" yaml:"min_count,omitempty"`
	Source      SourceKind  `json:"source,omitempty" yaml:"source,omitempty"`
}

// Pattern is a declarative root-cause signature matched against snapshots.
// Patterns are immutable during a match; only the Learning stage adjusts
// BaseConfidence and ValidatedAt between runs.
type Pattern struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	RootCause      string        `json:"root_cause" yaml:"root_cause"`
	BaseConfidence float64       `json:"base_confidence" yaml:"base_confidence"`
	Source         PatternSource `json:"source" yaml:"source"`
	Conditions     []Condition   `json:"conditions" yaml:"conditions"`
	ValidatedAt    time.Time     `json:"validated_at,omitempty" yaml:"validated_at,omitempty"`
}
