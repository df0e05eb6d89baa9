// Package plan defines the data types shared between the discovery
// engine and the plan orchestrator: the abstract capability need a step
// produces, the planner's proposed and resolved steps, and the emitted
// plan itself (spec.md §3).
package plan

import (
	"time"

	"github.com/ccos-project/ccos-core/schema"
)

// ResolutionStrategy tags how a step ended up bound to a capability id.
type ResolutionStrategy string

const (
	StrategyFoundInMarketplace       ResolutionStrategy = "found-in-marketplace"
	StrategySynthesisedByExternal    ResolutionStrategy = "synthesised-by-external-process"
	StrategyStubbedForLater          ResolutionStrategy = "stubbed-for-later"
)

// CapabilityNeed is the abstract description of what a plan step
// requires, produced by the need extractor from a ProposedStep and
// consumed by the discovery engine.
type CapabilityNeed struct {
	CapabilityClass string // dotted label, primary lookup key
	RequiredInputs  []string
	ExpectedOutputs []string
	Rationale       string
	Annotations     map[string]string
	InputSchema     *schema.Expr // optional
	OutputSchema    *schema.Expr // optional
}

// ProposedStep is one unit proposed by the planner before resolution.
type ProposedStep struct {
	StepID          string // stable within the plan
	Name            string
	CapabilityClass string
	CandidateIDs    []string // hints from the planner, tried before discovery
	RequiredInputs  []string
	ExpectedOutputs []string
	Description     string
}

// ResolvedStep is a ProposedStep bound to a concrete capability id.
type ResolvedStep struct {
	ProposedStep
	CapabilityID string
	Strategy     ResolutionStrategy
}

// Status is the plan lifecycle state (spec.md §3's state machine).
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReady     Status = "ready"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepBinding is one entry of a plan body's ordered step sequence: a
// call to CapabilityID with arguments wired either from a prior step's
// output or from an external input symbol of the same name (spec.md
// §4.10's emit_call_args contract).
type StepBinding struct {
	StepID       string
	CapabilityID string
	Args         map[string]ArgSource
}

// ArgSource names where one call argument's value comes from.
type ArgSource struct {
	// FromStepOutput is the producing step's id, set when this argument
	// is wired from a prior step's output rather than an external input.
	FromStepOutput string
	// OutputKey is the keyword name of the prior step's output field.
	OutputKey string
	// ExternalInput is the external-input symbol name, set when this
	// argument is not produced by any earlier step.
	ExternalInput string
}

// IsExternal reports whether this argument is wired from an external
// input rather than a prior step's output.
func (a ArgSource) IsExternal() bool { return a.FromStepOutput == "" }

// Body is the structured plan body emitted by generate_plan_body:
// required capability ids, a schema for every external input, a schema
// for every produced output, and the ordered step-binding sequence.
type Body struct {
	RequiredCapabilityIDs []string // de-duplicated, sorted
	InputSchema           map[string]*schema.Expr
	OutputSchema          map[string]*schema.Expr
	Steps                 []StepBinding
}

// ResolutionSummary counts resolved steps by strategy, attached to a
// plan's provenance metadata (spec.md §4.10's capture_provenance).
type ResolutionSummary map[ResolutionStrategy]int

// Provenance is the plan-level metadata attached by capture_provenance.
type Provenance struct {
	GeneratedAt          time.Time
	ResolutionSummary     ResolutionSummary
	ResolvedSteps         []ResolvedStep
	OrchestratorCapabilityID string
}

// Plan is the unit produced by the orchestrator and executed by the
// marketplace (spec.md §3).
type Plan struct {
	ID          string
	Name        string
	IntentIDs   []string
	Body        Body
	Status      Status
	CreatedAt   time.Time
	Metadata    map[string]interface{}
	Annotations []string
	Provenance  *Provenance
}
