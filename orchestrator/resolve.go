package orchestrator

import (
	"context"
	"fmt"

	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/plan"
)

// placeholderOutputValue is what a stubbed capability's handler always
// returns, until a real implementation replaces it (spec.md §4.10's
// resolve_and_stub contract).
const placeholderOutputValue = "not yet implemented"

// ResolveAndStub binds every proposed step to a concrete capability id:
// an explicit prior-discovery match wins first, then the discovery
// engine is consulted, and anything the engine can't find is stubbed
// with a placeholder-returning manifest so the plan can still be
// emitted (spec.md §4.10). matches maps a step id or capability class to
// a capability id already known to satisfy it. interactive is currently
// unused by the stub path itself; it is threaded through for callers
// that want to gate stubbing behind operator confirmation.
func ResolveAndStub(ctx context.Context, mk *marketplace.Marketplace, engine *discovery.Engine, steps []plan.ProposedStep, matches map[string]string, interactive bool) []plan.ResolvedStep {
	resolved := make([]plan.ResolvedStep, 0, len(steps))
	for _, step := range steps {
		resolved = append(resolved, resolveStep(ctx, mk, engine, step, matches))
	}
	return resolved
}

func resolveStep(ctx context.Context, mk *marketplace.Marketplace, engine *discovery.Engine, step plan.ProposedStep, matches map[string]string) plan.ResolvedStep {
	if id, ok := explicitMatch(step, matches); ok {
		return plan.ResolvedStep{ProposedStep: step, CapabilityID: id, Strategy: plan.StrategyFoundInMarketplace}
	}

	for _, candidate := range step.CandidateIDs {
		if _, ok := mk.Get(candidate); ok {
			return plan.ResolvedStep{ProposedStep: step, CapabilityID: candidate, Strategy: plan.StrategyFoundInMarketplace}
		}
	}

	need := ExtractNeed(step)
	result := engine.Resolve(ctx, need)
	switch result.Outcome {
	case discovery.OutcomeFound, discovery.OutcomeIncomplete:
		return plan.ResolvedStep{ProposedStep: step, CapabilityID: result.Manifest.ID, Strategy: plan.StrategyFoundInMarketplace}
	default:
		stubID := stubCapabilityID(step.CapabilityClass)
		registerStub(mk, stubID, step)
		return plan.ResolvedStep{ProposedStep: step, CapabilityID: stubID, Strategy: plan.StrategyStubbedForLater}
	}
}

func explicitMatch(step plan.ProposedStep, matches map[string]string) (string, bool) {
	if matches == nil {
		return "", false
	}
	if id, ok := matches[step.StepID]; ok && id != "" {
		return id, true
	}
	if id, ok := matches[step.CapabilityClass]; ok && id != "" {
		return id, true
	}
	return "", false
}

// stubCapabilityID derives a stable id for a stubbed capability from
// its capability class.
func stubCapabilityID(class string) string {
	if class == "" {
		class = "unnamed"
	}
	return fmt.Sprintf("%s.stub", class)
}

func registerStub(mk *marketplace.Marketplace, id string, step plan.ProposedStep) {
	if _, exists := mk.Get(id); exists {
		return
	}
	handler := func(ctx context.Context, inputs interface{}) (interface{}, error) {
		return map[string]interface{}{
			"status":  placeholderOutputValue,
			"note":    "stubbed capability, awaiting synthesis for " + step.CapabilityClass,
			"inputs":  inputs,
			"outputs": step.ExpectedOutputs,
		}, nil
	}
	stub := &manifest.CapabilityManifest{
		ID:          id,
		Name:        step.Name,
		Description: "stub for " + step.CapabilityClass,
		Version:     manifest.ParseVersion("0.0.1"),
		Provider:    manifest.LocalProvider{Handler: manifest.LocalHandler(handler)},
		Metadata:    map[string]string{"status": "incomplete"},
	}
	mk.RegisterCapabilityManifest(stub)
}
