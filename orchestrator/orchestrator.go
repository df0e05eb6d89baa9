package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/plan"
)

var tracer = otel.Tracer("github.com/ccos-project/ccos-core/orchestrator")

// Orchestrator is the Plan Orchestrator: it proposes steps through an
// external arbiter, resolves and stubs them against the marketplace and
// discovery engine, wires a runnable plan body, and registers the
// result as a reusable synthesised capability.
type Orchestrator struct {
	mk      *marketplace.Marketplace
	engine  *discovery.Engine
	arbiter Arbiter
	logger  ccoslog.Logger
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithArbiter(a Arbiter) Option { return func(o *Orchestrator) { o.arbiter = a } }

// New builds an Orchestrator over mk and engine. An arbiter can be
// attached with WithArbiter; without one, propose_steps always falls
// back to the default step list.
func New(mk *marketplace.Marketplace, engine *discovery.Engine, logger ccoslog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	o := &Orchestrator{mk: mk, engine: engine, logger: logger.WithComponent("orchestrator")}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate runs the full propose -> resolve -> wire -> register ->
// provenance pipeline for one goal and returns the emitted plan.
func (o *Orchestrator) Orchestrate(ctx context.Context, goal, intent string, answers map[string]string, matches map[string]string, interactive bool) (*plan.Plan, error) {
	snapshot := o.mk.Snapshot()

	proposeCtx, span := tracer.Start(ctx, "orchestrator.propose_steps",
		trace.WithAttributes(
			attribute.String("ccos.goal", goal),
			attribute.String("ccos.intent", intent),
		),
	)
	steps, warnings := ProposeSteps(proposeCtx, o.arbiter, goal, intent, answers, snapshot)
	for _, w := range warnings {
		o.logger.Warn(w, map[string]interface{}{"goal": goal})
		span.RecordError(fmt.Errorf("%s", w))
	}
	if len(warnings) > 0 {
		span.SetStatus(codes.Error, "propose_steps fell back to defaults")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	resolvedSteps := ResolveAndStub(ctx, o.mk, o.engine, steps, matches, interactive)
	o.notifyReplan(ctx, goal, intent, resolvedSteps)

	body, err := GeneratePlanBody(goal, resolvedSteps)
	if err != nil {
		return nil, fmt.Errorf("orchestrate: %w", err)
	}

	orchestratorCapabilityID := o.RegisterOrchestrator(body)

	p := &plan.Plan{
		ID:        uuid.NewString(),
		Name:      goal,
		IntentIDs: []string{intent},
		Body:      body,
		Status:    plan.StatusReady,
		CreatedAt: time.Now(),
	}
	o.CaptureProvenance(p, resolvedSteps, orchestratorCapabilityID)

	return p, nil
}

// RegisterOrchestrator registers the emitted plan body as a new,
// synthesised capability whose execution returns the body verbatim,
// enabling reuse. Returns the registered capability id.
func (o *Orchestrator) RegisterOrchestrator(body plan.Body) string {
	id := fmt.Sprintf("plan.synthesized.%s", uuid.NewString())
	handler := func(ctx context.Context, inputs interface{}) (interface{}, error) {
		return body, nil
	}
	m := &manifest.CapabilityManifest{
		ID:          id,
		Name:        "synthesized plan",
		Description: "replays a previously orchestrated plan body",
		Version:     manifest.ParseVersion("1.0.0"),
		Provider:    manifest.LocalProvider{Handler: manifest.LocalHandler(handler)},
		Metadata:    map[string]string{"kind": "synthesized-plan"},
		Provenance:  &manifest.Provenance{Source: "orchestrator", RegisteredAt: time.Now()},
	}
	o.mk.RegisterCapabilityManifest(m)
	return id
}

// CaptureProvenance attaches generation metadata to p: a timestamp, a
// resolution-strategy summary, the resolved step records, and the
// orchestrator capability id.
func (o *Orchestrator) CaptureProvenance(p *plan.Plan, resolvedSteps []plan.ResolvedStep, orchestratorCapabilityID string) {
	summary := plan.ResolutionSummary{}
	for _, step := range resolvedSteps {
		summary[step.Strategy]++
	}
	p.Provenance = &plan.Provenance{
		GeneratedAt:              time.Now(),
		ResolutionSummary:        summary,
		ResolvedSteps:            resolvedSteps,
		OrchestratorCapabilityID: orchestratorCapabilityID,
	}
}
