package models

import "time"

// TriggerType records how an incident entered the pipeline.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerAlarm     TriggerType = "alarm"
	TriggerManual    TriggerType = "manual"
)

// IncidentState enumerates the orchestrator's five-stage state machine.
type IncidentState string

const (
	StateCollecting       IncidentState = "collecting"
	StateInferring        IncidentState = "inferring"
	StateMatching         IncidentState = "matching"
	StateAwaitingApproval IncidentState = "awaiting_approval"
	StateExecuting        IncidentState = "executing"
	StateLearning         IncidentState = "learning"
	StateClosed           IncidentState = "closed"
	StateClosedExpired    IncidentState = "closed_expired"
	StateFailed           IncidentState = "failed"
)

// Terminal reports whether the state ends the incident lifecycle.
func (s IncidentState) Terminal() bool {
	return s == StateClosed || s == StateClosedExpired || s == StateFailed
}

// StepStatus is the recorded outcome of one executed SOP step.
type StepStatus string

const (
	StepSucceeded StepStatus = "success"
	StepFailed    StepStatus = "failure"
	StepSkipped   StepStatus = "skipped"
)

// StepOutcome records the result of a single SOP step so partial
// remediation stays auditable.
type StepOutcome struct {
	Index       int        `json:"index"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Detail      string     `json:"detail,omitempty"`
	At          time.Time  `json:"at"`
}

// ExecutionStatus summarises the Execute stage.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "success"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failure"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// Trigger carries the inbound request that creates an incident.
type Trigger struct {
	Scope        string      `json:"scope"`
	Type         TriggerType `json:"type"`
	AlarmPayload string      `json:"alarm_payload,omitempty"`
	Window       TimeRange   `json:"window,omitempty"`
}

// Incident is the unit of work owned by the orchestrator. It is persisted
// at every stage boundary so a crash mid-pipeline can be resumed or
// audited.
type Incident struct {
	ID      string        `json:"id"`
	Scope   string        `json:"scope"`
	Trigger TriggerType   `json:"trigger"`
	State   IncidentState `json:"state"`

	Snapshot    *Snapshot       `json:"snapshot,omitempty"`
	RCA         *RCAResult      `json:"rca,omitempty"`
	MatchedSOPs []SOPDefinition `json:"matched_sops,omitempty"`
	Decision    *SafetyDecision `json:"decision,omitempty"`

	Execution       []StepOutcome   `json:"execution,omitempty"`
	ExecutionStatus ExecutionStatus `json:"execution_status,omitempty"`
	LearnedEntryID  string          `json:"learned_entry_id,omitempty"`

	// FailedStage and Error are set when State is failed; the incident is
	// eligible for manual retry from that stage.
	FailedStage IncidentState `json:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty"`

	ApprovalExpiresAt time.Time                   `json:"approval_expires_at,omitempty"`
	StageTimes        map[IncidentState]time.Time `json:"stage_times,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// MarkStage stamps the transition into the given state.
func (i *Incident) MarkStage(state IncidentState, now time.Time) {
	if i.StageTimes == nil {
		i.StageTimes = make(map[IncidentState]time.Time)
	}
	i.State = state
	i.StageTimes[state] = now
	i.UpdatedAt = now
}
