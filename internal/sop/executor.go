package sop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

// ActionRunner performs one remediation action against the managed
// environment. Implementations live at the edge; the executor only sequences
// them.
type ActionRunner interface {
	RunAction(ctx context.Context, scope, action string, params map[string]string) (string, error)
}

// Executor walks a SOP's steps in order, recording a StepOutcome per step.
// The first failing step aborts the run; remaining steps are marked skipped
// so the audit trail shows exactly how far remediation got.
type Executor struct {
	logger *slog.Logger
	runner ActionRunner
}

// NewExecutor builds an executor over the given action runner.
func NewExecutor(logger *slog.Logger, runner ActionRunner) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger, runner: runner}
}

// Execute runs every step of def within scope. It returns the per-step
// outcomes and a summary status: success when all steps passed, partial when
// at least one passed before a failure, failure otherwise.
func (e *Executor) Execute(ctx context.Context, scope string, def models.SOPDefinition) ([]models.StepOutcome, models.ExecutionStatus) {
	outcomes := make([]models.StepOutcome, 0, len(def.Steps))
	succeeded := 0
	failedAt := -1

	for i, step := range def.Steps {
		if failedAt >= 0 || ctx.Err() != nil {
			outcomes = append(outcomes, models.StepOutcome{
				Index:       i,
				Description: step.Description,
				Status:      models.StepSkipped,
				At:          time.Now(),
			})
			continue
		}

		outcome := e.runStep(ctx, scope, i, step)
		outcomes = append(outcomes, outcome)
		switch outcome.Status {
		case models.StepSucceeded:
			succeeded++
		case models.StepFailed:
			failedAt = i
			e.logger.Error("SOP step failed",
				slog.String("sop_id", def.ID),
				slog.String("scope", scope),
				slog.Int("step", i),
				slog.String("detail", outcome.Detail))
		}
	}

	switch {
	case failedAt < 0 && ctx.Err() == nil:
		return outcomes, models.ExecutionSucceeded
	case succeeded > 0:
		return outcomes, models.ExecutionPartial
	default:
		return outcomes, models.ExecutionFailed
	}
}

func (e *Executor) runStep(ctx context.Context, scope string, index int, step models.SOPStep) models.StepOutcome {
	outcome := models.StepOutcome{
		Index:       index,
		Description: step.Description,
		At:          time.Now(),
	}

	// Steps without an action are manual instructions; they count as done
	// once surfaced in the incident record.
	if step.Action == "" {
		outcome.Status = models.StepSucceeded
		outcome.Detail = "manual step, no action executed"
		return outcome
	}

	if e.runner == nil {
		outcome.Status = models.StepFailed
		outcome.Detail = fmt.Sprintf("no action runner configured for %q", step.Action)
		return outcome
	}

	detail, err := e.runner.RunAction(ctx, scope, step.Action, step.Params)
	if err != nil {
		outcome.Status = models.StepFailed
		outcome.Detail = err.Error()
		return outcome
	}
	outcome.Status = models.StepSucceeded
	outcome.Detail = detail
	return outcome
}

// LogRunner is the default ActionRunner: it records what would have been
// done without touching the environment. Real deployments plug in a runner
// backed by their automation plane.
type LogRunner struct {
	Logger *slog.Logger
}

func (l *LogRunner) RunAction(_ context.Context, scope, action string, params map[string]string) (string, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("action recorded",
		slog.String("scope", scope),
		slog.String("action", action),
		slog.Any("params", params))
	return fmt.Sprintf("recorded action %q", action), nil
}
