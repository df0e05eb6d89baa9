package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/executor"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/plan"
	"github.com/ccos-project/ccos-core/schema"
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

func TestResolveExactMatch(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("github.issues.list.v1", "list issues", "lists GitHub issues for a repository", nil, nil)

	engine := New(mk, nil)
	result := engine.Resolve(context.Background(), plan.CapabilityNeed{CapabilityClass: "github.issues.list.v1"})

	require.Equal(t, OutcomeFound, result.Outcome)
	assert.Equal(t, TierMarketplaceExact, result.Tier)
	assert.Equal(t, "github.issues.list.v1", result.Manifest.ID)
}

func TestResolveTokenMatch(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("github.issue_lister", "issue lister", "lists open issues in a repository", nil, nil)

	engine := New(mk, nil)
	result := engine.Resolve(context.Background(), plan.CapabilityNeed{CapabilityClass: "github.issues.list"})

	require.Equal(t, OutcomeFound, result.Outcome)
	assert.Equal(t, TierMarketplaceToken, result.Tier)
}

func TestResolveSemanticMatchRespectsActionVerbMismatch(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("tasks.assign", "assign task", "assigns a task to a user", nil, nil)

	engine := New(mk, nil, WithThreshold(0.1))
	result := engine.Resolve(context.Background(), plan.CapabilityNeed{
		CapabilityClass: "tasks.filter",
		Rationale:       "filter tasks by status",
	})

	assert.Equal(t, OutcomeNotFound, result.Outcome, "a need to filter must not match a manifest that only assigns")
}

func TestResolveReturnsIncompleteForFlaggedManifest(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterCapabilityManifest(&manifest.CapabilityManifest{
		ID:       "demo.partial",
		Name:     "partial",
		Version:  manifest.ParseVersion("1.0.0"),
		Provider: manifest.LocalProvider{},
		Metadata: map[string]string{"status": "incomplete"},
	})

	engine := New(mk, nil)
	result := engine.Resolve(context.Background(), plan.CapabilityNeed{CapabilityClass: "demo.partial"})
	assert.Equal(t, OutcomeIncomplete, result.Outcome)
}

func TestResolveNotFoundWithNoCandidates(t *testing.T) {
	mk := newTestMarketplace(t)
	engine := New(mk, nil)
	result := engine.Resolve(context.Background(), plan.CapabilityNeed{CapabilityClass: "nothing.here"})
	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.Equal(t, TierDeferredSynthesis, result.Tier)
}

func TestIsCompatibleChecksInputSubsetAndOutputOverlap(t *testing.T) {
	m := &manifest.CapabilityManifest{
		InputSchema:  schema.MapExpr(map[string]*schema.Expr{"user_id": schema.String()}, []string{"user_id"}, false),
		OutputSchema: schema.MapExpr(map[string]*schema.Expr{"name": schema.String()}, []string{"name"}, false),
	}
	need := plan.CapabilityNeed{RequiredInputs: []string{"user-id"}, ExpectedOutputs: []string{"NAME"}}
	assert.True(t, IsCompatible(need, m), "hyphen/underscore and case normalisation must both be applied")

	incompatible := plan.CapabilityNeed{RequiredInputs: []string{"other_field"}}
	assert.False(t, IsCompatible(incompatible, m))
}

func TestEmitHintsClassifiesAndCrossSuggests(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("github.issues.list.v1", "list issues", "lists issues in a GitHub repository", nil, nil)

	hints := EmitHints(mk, []string{"github.issues.list.v1", "github.issues.create.v1"}, map[string]string{
		"github.issues.create.v1": "create a new issue in a repository",
	})

	require.Len(t, hints.Found, 1)
	assert.Equal(t, "github.issues.list.v1", hints.Found[0].ID)
	require.Len(t, hints.Missing, 1)
	assert.Equal(t, "github.issues.create.v1", hints.Missing[0])
	assert.Contains(t, hints.CrossSuggestions["github.issues.create.v1"], "github.issues.list.v1")
}
