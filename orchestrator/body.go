package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ccos-project/ccos-core/plan"
	"github.com/ccos-project/ccos-core/schema"
)

// semanticTypeLexicon maps known external-input name fragments to an
// inferred schema type, the heuristic spec.md §4.10's generate_plan_body
// names; anything unmatched infers as "any".
var semanticTypeLexicon = []struct {
	fragments []string
	build     func() *schema.Expr
}{
	{[]string{"id", "name", "email", "url", "token", "owner", "repository", "repo", "title", "description", "status", "message", "text"}, schema.String},
	{[]string{"count", "limit", "offset", "page", "year", "age", "index"}, schema.Integer},
	{[]string{"amount", "price", "score", "rate", "ratio", "percent"}, schema.Number},
	{[]string{"ids", "items", "results", "list", "tags", "labels"}, func() *schema.Expr { return schema.Vector(schema.Any()) }},
	{[]string{"enabled", "active", "flag", "is_"}, schema.Boolean},
}

// inferType applies the semantic-name heuristic to one external input.
func inferType(name string) *schema.Expr {
	lower := strings.ToLower(name)
	for _, entry := range semanticTypeLexicon {
		for _, frag := range entry.fragments {
			if strings.Contains(lower, frag) {
				return entry.build()
			}
		}
	}
	return schema.Any()
}

// EmitCallArgs wires one step's required inputs: a prior step's output
// of the same keyword name if any earlier step produced it, else an
// external-input symbol of that name (spec.md §4.10's emit_call_args
// contract).
func EmitCallArgs(step plan.ProposedStep, priorOutputs map[string]string) map[string]plan.ArgSource {
	args := make(map[string]plan.ArgSource, len(step.RequiredInputs))
	for _, in := range step.RequiredInputs {
		if producingStepID, ok := priorOutputs[in]; ok {
			args[in] = plan.ArgSource{FromStepOutput: producingStepID, OutputKey: in}
		} else {
			args[in] = plan.ArgSource{ExternalInput: in}
		}
	}
	return args
}

// GeneratePlanBody wires resolvedSteps into a structured plan body:
// required capability ids, an input schema over every external input,
// an output schema over every produced output, and an ordered sequence
// of step bindings (spec.md §4.10). Inputs are wired strictly left to
// right — a step can only ever be wired from a step that precedes it —
// which by construction forbids referencing a later step's output.
func GeneratePlanBody(goal string, resolvedSteps []plan.ResolvedStep) (plan.Body, error) {
	producedBy := map[string]string{} // output keyword -> producing step id, first producer wins
	seenStepIDs := map[string]bool{}

	externalInputsSeen := map[string]bool{}
	var externalInputsOrdered []string

	capSeen := map[string]bool{}
	var requiredCapabilityIDs []string

	bindings := make([]plan.StepBinding, 0, len(resolvedSteps))

	for _, step := range resolvedSteps {
		if step.StepID == "" {
			return plan.Body{}, fmt.Errorf("generate_plan_body: step for capability class %q has no step id", step.CapabilityClass)
		}
		if seenStepIDs[step.StepID] {
			return plan.Body{}, fmt.Errorf("generate_plan_body: duplicate step id %q", step.StepID)
		}
		seenStepIDs[step.StepID] = true

		if step.CapabilityID == "" {
			return plan.Body{}, fmt.Errorf("generate_plan_body: step %q has no resolved capability id", step.StepID)
		}

		args := EmitCallArgs(step.ProposedStep, producedBy)
		bindings = append(bindings, plan.StepBinding{StepID: step.StepID, CapabilityID: step.CapabilityID, Args: args})

		if !capSeen[step.CapabilityID] {
			capSeen[step.CapabilityID] = true
			requiredCapabilityIDs = append(requiredCapabilityIDs, step.CapabilityID)
		}

		for _, in := range step.RequiredInputs {
			if args[in].IsExternal() && !externalInputsSeen[in] {
				externalInputsSeen[in] = true
				externalInputsOrdered = append(externalInputsOrdered, in)
			}
		}

		for _, out := range step.ExpectedOutputs {
			if _, exists := producedBy[out]; !exists {
				producedBy[out] = step.StepID
			}
		}
	}

	sort.Strings(requiredCapabilityIDs)

	inputSchema := make(map[string]*schema.Expr, len(externalInputsOrdered))
	for _, in := range externalInputsOrdered {
		inputSchema[in] = inferType(in)
	}

	outputSchema := make(map[string]*schema.Expr, len(producedBy))
	for out := range producedBy {
		outputSchema[out] = schema.Any()
	}

	return plan.Body{
		RequiredCapabilityIDs: requiredCapabilityIDs,
		InputSchema:           inputSchema,
		OutputSchema:          outputSchema,
		Steps:                 bindings,
	}, nil
}
