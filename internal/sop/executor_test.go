package sop

import (
	"context"
	"fmt"
	"testing"

	"github.com/sentinelops/incident-engine/internal/models"
)

type scriptedRunner struct {
	failOn map[string]bool
	calls  []string
}

func (r *scriptedRunner) RunAction(_ context.Context, _ string, action string, _ map[string]string) (string, error) {
	r.calls = append(r.calls, action)
	if r.failOn[action] {
		return "", fmt.Errorf("action %s failed", action)
	}
	return "done", nil
}

func threeStepSOP() models.SOPDefinition {
	return models.SOPDefinition{
		ID:   "three-step",
		Risk: models.RiskL1,
		Steps: []models.SOPStep{
			{Description: "inspect", Action: "inspect"},
			{Description: "scale", Action: "scale"},
			{Description: "verify", Action: "verify"},
		},
	}
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	runner := &scriptedRunner{}
	e := NewExecutor(nil, runner)

	outcomes, status := e.Execute(context.Background(), "checkout", threeStepSOP())
	if status != models.ExecutionSucceeded {
		t.Fatalf("expected success, got %s", status)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Status != models.StepSucceeded {
			t.Fatalf("step %d: expected success, got %s", o.Index, o.Status)
		}
	}
}

func TestExecuteStopsOnFailure(t *testing.T) {
	runner := &scriptedRunner{failOn: map[string]bool{"scale": true}}
	e := NewExecutor(nil, runner)

	outcomes, status := e.Execute(context.Background(), "checkout", threeStepSOP())
	if status != models.ExecutionPartial {
		t.Fatalf("expected partial, got %s", status)
	}
	if outcomes[0].Status != models.StepSucceeded {
		t.Fatalf("step 0: expected success, got %s", outcomes[0].Status)
	}
	if outcomes[1].Status != models.StepFailed {
		t.Fatalf("step 1: expected failure, got %s", outcomes[1].Status)
	}
	if outcomes[2].Status != models.StepSkipped {
		t.Fatalf("step 2: expected skipped, got %s", outcomes[2].Status)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("runner must stop after the failing step, got calls %v", runner.calls)
	}
}

func TestExecuteFirstStepFails(t *testing.T) {
	runner := &scriptedRunner{failOn: map[string]bool{"inspect": true}}
	e := NewExecutor(nil, runner)

	_, status := e.Execute(context.Background(), "checkout", threeStepSOP())
	if status != models.ExecutionFailed {
		t.Fatalf("expected failure when nothing succeeded, got %s", status)
	}
}

func TestExecuteManualStepsWithoutRunner(t *testing.T) {
	e := NewExecutor(nil, nil)
	def := models.SOPDefinition{
		ID:    "manual-only",
		Steps: []models.SOPStep{{Description: "page the on-call"}},
	}
	outcomes, status := e.Execute(context.Background(), "checkout", def)
	if status != models.ExecutionSucceeded {
		t.Fatalf("manual steps need no runner, got %s", status)
	}
	if outcomes[0].Status != models.StepSucceeded {
		t.Fatalf("expected success, got %s", outcomes[0].Status)
	}
}
