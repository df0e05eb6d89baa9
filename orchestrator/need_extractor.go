// Package orchestrator implements the Plan Orchestrator and Need
// Extractor: proposing steps via an external arbiter, resolving each
// against the discovery engine, wiring a runnable plan body, and
// recording its provenance (spec.md §4.10, §4.11).
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ccos-project/ccos-core/plan"
)

// actionVerbLexicon is the small lexicon the need extractor uses to turn
// a bare capability-class terminal segment into a readable rationale
// (spec.md §4.11).
var actionVerbLexicon = []string{"list", "get", "retrieve", "create", "update", "delete", "search", "filter"}

// ExtractNeed derives a CapabilityNeed from a ProposedStep. This is a
// pure function: same step in, same need out.
func ExtractNeed(step plan.ProposedStep) plan.CapabilityNeed {
	return plan.CapabilityNeed{
		CapabilityClass: step.CapabilityClass,
		RequiredInputs:  step.RequiredInputs,
		ExpectedOutputs: step.ExpectedOutputs,
		Rationale:       rationaleFor(step),
	}
}

// rationaleFor enhances a generic placeholder rationale (a need derived
// purely from the capability class label, with no planner-supplied
// description) into a functional description built from the step's
// name and the terminal segment of its capability class.
func rationaleFor(step plan.ProposedStep) string {
	if step.Description != "" {
		return step.Description
	}
	terminal := terminalSegment(step.CapabilityClass)
	verb := verbFor(terminal)
	if step.Name != "" {
		return fmt.Sprintf("%s %s (%s)", verb, step.Name, terminal)
	}
	return fmt.Sprintf("%s %s", verb, terminal)
}

// terminalSegment returns the last dot-delimited segment of a
// capability class, e.g. "github.issues.list" -> "list".
func terminalSegment(class string) string {
	parts := strings.Split(class, ".")
	return parts[len(parts)-1]
}

// verbFor picks the lexicon verb the terminal segment names, or falls
// back to a generic "invoke" when none applies.
func verbFor(terminal string) string {
	lower := strings.ToLower(terminal)
	for _, v := range actionVerbLexicon {
		if strings.Contains(lower, v) {
			return v
		}
	}
	return "invoke"
}
