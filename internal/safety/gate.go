package safety

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

// Options tunes the gate's history-based checks.
type Options struct {
	// Cooldown is the minimum interval between automatic executions of the
	// same SOP against the same scope.
	Cooldown time.Duration
	// BreakerThreshold trips the circuit breaker when more than this many
	// triggers of one (scope, SOP) pair land within BreakerWindow,
	// regardless of whether the executions succeed.
	BreakerThreshold int
	BreakerWindow    time.Duration
}

type pairState struct {
	lastExecuted time.Time
	triggers     []time.Time
	tripped      bool
}

// Gate grades every candidate execution by SOP risk level and recent
// history. All state is keyed by (scope, SOP id) and mutated under one lock
// so concurrent incidents against the same pair see a consistent decision.
type Gate struct {
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex
	pairs map[string]*pairState

	now func() time.Time
}

// NewGate constructs a gate with the given policy knobs.
func NewGate(logger *slog.Logger, opts Options) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 3
	}
	if opts.BreakerWindow <= 0 {
		opts.BreakerWindow = time.Minute
	}
	return &Gate{
		logger: logger,
		opts:   opts,
		pairs:  make(map[string]*pairState),
		now:    time.Now,
	}
}

func pairKey(scope, sopID string) string {
	return scope + "\x00" + sopID
}

// Decide grades one candidate execution. The decision is a pure function of
// the SOP's risk level, cooldown state, and circuit-breaker state for the
// (scope, SOP) pair:
//
//	L0    auto-execute, always
//	L1    auto-execute, downgraded to notify while the pair is cooling down
//	L2-L3 require-approval, with rollback guidance attached
//	L4    deny, unconditionally
//
// Every call counts as one trigger of the pair; more triggers within the
// breaker window than the threshold allows open the breaker, and an open
// breaker denies regardless of risk until Reset. An auto-execute decision
// also starts the pair's cooldown here, in the same critical section, so a
// second incident racing the same pair observes it.
func (g *Gate) Decide(scope string, def models.SOPDefinition) models.SafetyDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	decision := models.SafetyDecision{
		SOPID:    def.ID,
		Risk:     def.Risk,
		Rollback: def.Rollback,
	}

	state := g.pairLocked(scope, def.ID)
	state.triggers = append(state.triggers, now)
	if g.breakerOpenLocked(scope, def.ID, state, now) {
		decision.Decision = models.DecisionDeny
		decision.Reason = fmt.Sprintf("circuit breaker open: more than %d triggers within %s", g.opts.BreakerThreshold, g.opts.BreakerWindow)
		return decision
	}

	switch def.Risk {
	case models.RiskL0:
		decision.Decision = models.DecisionAutoExecute
		decision.Reason = "read-only procedure"
	case models.RiskL1:
		if !state.lastExecuted.IsZero() {
			until := state.lastExecuted.Add(g.opts.Cooldown)
			if now.Before(until) {
				decision.Decision = models.DecisionNotify
				decision.Reason = fmt.Sprintf("cooldown active until %s", until.Format(time.RFC3339))
				decision.CooldownUntil = until
				return decision
			}
		}
		decision.Decision = models.DecisionAutoExecute
		decision.Reason = "low-risk procedure, no recent execution"
	case models.RiskL2, models.RiskL3:
		decision.Decision = models.DecisionRequireApproval
		decision.Reason = fmt.Sprintf("risk %s requires operator approval", def.Risk)
	default:
		decision.Decision = models.DecisionDeny
		decision.Reason = "destructive procedures are never executed automatically"
	}

	if decision.Decision == models.DecisionAutoExecute {
		state.lastExecuted = now
	}
	return decision
}

// Reset clears breaker and cooldown state for the pair. Exposed to operators
// for explicit recovery.
func (g *Gate) Reset(scope, sopID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pairs, pairKey(scope, sopID))
	g.logger.Info("safety state reset",
		slog.String("scope", scope),
		slog.String("sop_id", sopID))
}

func (g *Gate) pairLocked(scope, sopID string) *pairState {
	key := pairKey(scope, sopID)
	state, ok := g.pairs[key]
	if !ok {
		state = &pairState{}
		g.pairs[key] = state
	}
	return state
}

// breakerOpenLocked: once tripped the breaker holds open until an explicit
// Reset, never auto-closing on window expiry.
func (g *Gate) breakerOpenLocked(scope, sopID string, state *pairState, now time.Time) bool {
	if state.tripped {
		return true
	}
	cutoff := now.Add(-g.opts.BreakerWindow)
	kept := state.triggers[:0]
	for _, t := range state.triggers {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	state.triggers = kept

	if len(state.triggers) > g.opts.BreakerThreshold {
		state.tripped = true
		g.logger.Warn("circuit breaker tripped",
			slog.String("scope", scope),
			slog.String("sop_id", sopID),
			slog.Int("triggers", len(state.triggers)))
		return true
	}
	return false
}
