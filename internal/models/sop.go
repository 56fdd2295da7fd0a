package models

import (
	"fmt"
	"time"
)

// RiskLevel is the ordinal classification of a SOP's potential for harm,
// from read-only diagnostics (L0) through irreversible/destructive (L4).
type RiskLevel int

const (
	RiskL0 RiskLevel = iota
	RiskL1
	RiskL2
	RiskL3
	RiskL4
)

func (r RiskLevel) String() string {
	if r < RiskL0 || r > RiskL4 {
		return fmt.Sprintf("L?(%d)", int(r))
	}
	return fmt.Sprintf("L%d", int(r))
}

// SOPStep is one ordered step of a remediation procedure. Steps without an
// Action are manual instructions and are never auto-executed.
type SOPStep struct {
	Description string            `json:"description" yaml:"description"`
	Action      string            `json:"action,omitempty" yaml:"action,omitempty"`
	Params      map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// SOPDefinition is a standard operating procedure from the registry.
type SOPDefinition struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	// AppliesTo lists root-cause labels this SOP remediates. A trailing
	// "*" makes an entry a prefix glob ("cpu-*").
	AppliesTo []string  `json:"applies_to" yaml:"applies_to"`
	Steps     []SOPStep `json:"steps" yaml:"steps"`
	Risk      RiskLevel `json:"risk" yaml:"risk"`
	Rollback  string    `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// Decision enumerates safety-gate outcomes for a matched SOP.
type Decision string

const (
	DecisionAutoExecute     Decision = "auto-execute"
	DecisionNotify          Decision = "notify"
	DecisionRequireApproval Decision = "require-approval"
	DecisionDeny            Decision = "deny"
)

// SafetyDecision maps a SOP and its risk level to an execution decision.
// It is a pure function of risk level, recent execution history for the
// same (scope, SOP) pair, and circuit-breaker state.
type SafetyDecision struct {
	SOPID         string    `json:"sop_id"`
	Risk          RiskLevel `json:"risk"`
	Decision      Decision  `json:"decision"`
	Reason        string    `json:"reason"`
	Rollback      string    `json:"rollback,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}
