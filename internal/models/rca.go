package models

import "time"

// InferenceTier identifies which escalation level produced an RCA result.
type InferenceTier string

const (
	TierDeterministic InferenceTier = "deterministic"
	TierModel1        InferenceTier = "model-tier-1"
	TierModel2        InferenceTier = "model-tier-2"
)

// RootCauseUnknown is the placeholder label used when every inference tier
// fails; it keeps the SOP stage able to offer manual triage.
const RootCauseUnknown = "unknown"

// EvidenceKind classifies a piece of supporting evidence.
type EvidenceKind string

const (
	EvidencePattern   EvidenceKind = "pattern"
	EvidenceSnapshot  EvidenceKind = "snapshot"
	EvidenceKnowledge EvidenceKind = "knowledge"
	EvidenceModel     EvidenceKind = "model"
)

// Evidence justifies a root-cause label: a snapshot excerpt, a matched
// pattern, or a knowledge-store hit.
type Evidence struct {
	Kind   EvidenceKind `json:"kind"`
	Ref    string       `json:"ref,omitempty"`
	Detail string       `json:"detail"`
	Score  float64      `json:"score,omitempty"`
}

// RCAResult is the outcome of root-cause inference. Confidence is reported
// from the highest-confidence tier actually reached, never averaged across
// tiers.
type RCAResult struct {
	RootCause     string        `json:"root_cause"`
	Confidence    float64       `json:"confidence"`
	Evidence      []Evidence    `json:"evidence,omitempty"`
	Tier          InferenceTier `json:"tier"`
	Rationale     string        `json:"rationale,omitempty"`
	Latency       time.Duration `json:"latency"`
	LowConfidence bool          `json:"low_confidence,omitempty"`
}
