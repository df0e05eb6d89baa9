package orchestrator

import (
	"context"

	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/plan"
)

// ReplanningArbiter is an Arbiter that also accepts re-planning
// guidance built from a failed resolution pass (spec.md §4.12:
// DiscoveryHints is "the sole currency between the orchestrator's
// failure path and the external arbiter's re-plan request"). Attaching
// one is optional; an Arbiter that only implements ProposeSteps still
// works, it just never receives re-plan guidance.
type ReplanningArbiter interface {
	Arbiter
	Replan(ctx context.Context, goal, intent string, hints discovery.DiscoveryHints) (string, error)
}

// notifyReplan builds Re-planning Hint Emitter output from resolved
// steps that ended up stubbed and, if the configured arbiter accepts
// re-plan guidance, hands it over. The arbiter's guidance is logged for
// an operator or a follow-up propose_steps call to act on; automatically
// splicing it back into the current resolution pass is out of scope —
// DiscoveryHints is the orchestrator's half of this contract, consuming
// the guidance is the arbiter's.
func (o *Orchestrator) notifyReplan(ctx context.Context, goal, intent string, resolved []plan.ResolvedStep) {
	replanner, ok := o.arbiter.(ReplanningArbiter)
	if !ok {
		return
	}

	var ids []string
	descriptions := map[string]string{}
	anyStubbed := false
	for _, step := range resolved {
		ids = append(ids, step.CapabilityID)
		if step.Strategy == plan.StrategyStubbedForLater {
			anyStubbed = true
			descriptions[step.CapabilityID] = step.Description
		}
	}
	if !anyStubbed {
		return
	}

	hints := discovery.EmitHints(o.mk, ids, descriptions)
	guidance, err := replanner.Replan(ctx, goal, intent, hints)
	if err != nil {
		o.logger.Warn("re-plan request failed", map[string]interface{}{"goal": goal, "error": err.Error()})
		return
	}
	o.logger.Info("received re-plan guidance from arbiter", map[string]interface{}{"goal": goal, "guidance": guidance})
}
