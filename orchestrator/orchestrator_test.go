package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/discovery"
	"github.com/ccos-project/ccos-core/executor"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/plan"
	"github.com/ccos-project/ccos-core/session"
)

func newTestMarketplace(t *testing.T) *marketplace.Marketplace {
	t.Helper()
	registry := executor.NewDefaultRegistry(nil, nil)
	pool := session.NewPool(func(string, string) []string { return nil }, nil)
	c := chain.New(nil)
	emitter := chain.NewEmitter(c, nil)
	return marketplace.New(registry, pool, emitter, nil)
}

type stubArbiter struct {
	response string
	err      error
}

func (a stubArbiter) ProposeSteps(ctx context.Context, goal, intent string, answers map[string]string, snapshot []*manifest.CapabilityManifest) (string, error) {
	return a.response, a.err
}

func TestExtractNeedEnhancesGenericRationale(t *testing.T) {
	step := plan.ProposedStep{Name: "find open issues", CapabilityClass: "github.issues.list"}
	need := ExtractNeed(step)
	assert.Contains(t, need.Rationale, "list")
	assert.Contains(t, need.Rationale, "find open issues")
}

func TestExtractNeedPrefersExplicitDescription(t *testing.T) {
	step := plan.ProposedStep{Name: "x", CapabilityClass: "github.issues.list", Description: "already explicit"}
	need := ExtractNeed(step)
	assert.Equal(t, "already explicit", need.Rationale)
}

func TestParseProposedStepsJSON(t *testing.T) {
	response := "```json\n[{\"name\":\"list issues\",\"capability_class\":\"github.issues.list\",\"required_inputs\":[\"repo\"],\"expected_outputs\":[\"issues\"]},{\"name\":\"what repo?\",\"description\":\"which repository?\"}]\n```"
	steps := ParseProposedSteps(response)
	require.Len(t, steps, 1, "the question-like second entry must be dropped")
	assert.Equal(t, "github.issues.list", steps[0].CapabilityClass)
	assert.Equal(t, []string{"repo"}, steps[0].RequiredInputs)
}

func TestParseProposedStepsFreeformDropsQuestions(t *testing.T) {
	response := "1. List open issues (github.issues.list)\nWhich repository should I use?\n2. Create a summary (github.issues.summarize)\n"
	steps := ParseProposedSteps(response)
	require.Len(t, steps, 2)
	assert.Equal(t, "github.issues.list", steps[0].CapabilityClass)
	assert.Equal(t, "github.issues.summarize", steps[1].CapabilityClass)
}

func TestProposeStepsFallsBackWithoutArbiter(t *testing.T) {
	steps, warnings := ProposeSteps(context.Background(), nil, "goal", "intent", nil, nil)
	require.Len(t, steps, 1)
	assert.Equal(t, "plan.manual_review", steps[0].CapabilityClass)
	assert.NotEmpty(t, warnings)
}

func TestProposeStepsFallsBackOnUnparsableResponse(t *testing.T) {
	steps, warnings := ProposeSteps(context.Background(), stubArbiter{response: "???\n???"}, "goal", "intent", nil, nil)
	require.Len(t, steps, 1)
	assert.Equal(t, "plan.manual_review", steps[0].CapabilityClass)
	assert.NotEmpty(t, warnings)
}

func TestResolveAndStubPrefersExplicitMatch(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("github.issues.list.v1", "list issues", "lists issues", nil, nil)
	engine := discovery.New(mk, nil)

	steps := []plan.ProposedStep{{StepID: "step-1", CapabilityClass: "github.issues.list"}}
	matches := map[string]string{"step-1": "github.issues.list.v1"}

	resolved := ResolveAndStub(context.Background(), mk, engine, steps, matches, false)
	require.Len(t, resolved, 1)
	assert.Equal(t, "github.issues.list.v1", resolved[0].CapabilityID)
	assert.Equal(t, plan.StrategyFoundInMarketplace, resolved[0].Strategy)
}

func TestResolveAndStubStubsUnresolvedStep(t *testing.T) {
	mk := newTestMarketplace(t)
	engine := discovery.New(mk, nil)

	steps := []plan.ProposedStep{{StepID: "step-1", Name: "synthesize report", CapabilityClass: "reports.synthesize", ExpectedOutputs: []string{"report"}}}
	resolved := ResolveAndStub(context.Background(), mk, engine, steps, nil, false)

	require.Len(t, resolved, 1)
	assert.Equal(t, plan.StrategyStubbedForLater, resolved[0].Strategy)
	stubbed, ok := mk.Get(resolved[0].CapabilityID)
	require.True(t, ok)
	assert.Equal(t, "incomplete", stubbed.Metadata["status"])
}

func TestGeneratePlanBodyWiresSequentialSteps(t *testing.T) {
	resolvedSteps := []plan.ResolvedStep{
		{
			ProposedStep: plan.ProposedStep{StepID: "step-1", RequiredInputs: []string{"repo"}, ExpectedOutputs: []string{"issues"}},
			CapabilityID: "github.issues.list.v1",
			Strategy:     plan.StrategyFoundInMarketplace,
		},
		{
			ProposedStep: plan.ProposedStep{StepID: "step-2", RequiredInputs: []string{"issues"}, ExpectedOutputs: []string{"summary"}},
			CapabilityID: "reports.synthesize.v1",
			Strategy:     plan.StrategyFoundInMarketplace,
		},
	}

	body, err := GeneratePlanBody("summarize issues", resolvedSteps)
	require.NoError(t, err)

	assert.Equal(t, []string{"github.issues.list.v1", "reports.synthesize.v1"}, body.RequiredCapabilityIDs)
	require.Contains(t, body.InputSchema, "repo")
	assert.NotContains(t, body.InputSchema, "issues", "issues is produced internally, not an external input")
	assert.Contains(t, body.OutputSchema, "issues")
	assert.Contains(t, body.OutputSchema, "summary")

	require.Len(t, body.Steps, 2)
	assert.True(t, body.Steps[0].Args["repo"].IsExternal())
	assert.False(t, body.Steps[1].Args["issues"].IsExternal())
	assert.Equal(t, "step-1", body.Steps[1].Args["issues"].FromStepOutput)
}

func TestGeneratePlanBodyRejectsDuplicateStepID(t *testing.T) {
	resolvedSteps := []plan.ResolvedStep{
		{ProposedStep: plan.ProposedStep{StepID: "step-1"}, CapabilityID: "a"},
		{ProposedStep: plan.ProposedStep{StepID: "step-1"}, CapabilityID: "b"},
	}
	_, err := GeneratePlanBody("goal", resolvedSteps)
	assert.Error(t, err)
}

func TestOrchestrateEndToEnd(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("github.issues.list.v1", "list issues", "lists issues in a repository", nil, nil)
	engine := discovery.New(mk, nil)

	arbiterResponse := "[{\"name\":\"list issues\",\"capability_class\":\"github.issues.list\",\"required_inputs\":[\"repo\"],\"expected_outputs\":[\"issues\"]}]"
	o := New(mk, engine, nil, WithArbiter(stubArbiter{response: arbiterResponse}))

	p, err := o.Orchestrate(context.Background(), "summarize open issues", "intent-1", nil, nil, false)
	require.NoError(t, err)

	require.NotNil(t, p.Provenance)
	assert.Equal(t, 1, p.Provenance.ResolutionSummary[plan.StrategyFoundInMarketplace])
	assert.NotEmpty(t, p.Provenance.OrchestratorCapabilityID)
	_, ok := mk.Get(p.Provenance.OrchestratorCapabilityID)
	assert.True(t, ok)
}
