package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccos-project/ccos-core/ccoserr"
	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/executor"
	"github.com/ccos-project/ccos-core/isolation"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/schema"
	"github.com/ccos-project/ccos-core/session"
)

func newTestMarketplace(t *testing.T, opts ...Option) *Marketplace {
	t.Helper()
	mk, _ := newTestMarketplaceWithChain(t, opts...)
	return mk
}

func newTestMarketplaceWithChain(t *testing.T, opts ...Option) (*Marketplace, *chain.Chain) {
	t.Helper()
	registry := executor.NewDefaultRegistry(nil, nil)
	pool := session.NewPool(func(string, string) []string { return nil }, nil)
	c := chain.New(nil)
	emitter := chain.NewEmitter(c, nil)
	return New(registry, pool, emitter, nil, opts...), c
}

func TestRegisterCapabilityManifestIsIdempotent(t *testing.T) {
	mk := newTestMarketplace(t)
	calls := 0
	mk.RegisterLocalCapability("demo.echo", "echo", "echoes its input",
		func(ctx context.Context, inputs interface{}) (interface{}, error) {
			calls++
			return inputs, nil
		}, nil)

	m, ok := mk.store.Get("demo.echo")
	require.True(t, ok)
	assert.Equal(t, "echo", m.Name)

	// Registering the same id again is a silent no-op, not an overwrite.
	mk.RegisterLocalCapability("demo.echo", "echo-renamed", "different description", nil, nil)
	m2, _ := mk.store.Get("demo.echo")
	assert.Equal(t, "echo", m2.Name)
}

func TestExecuteCapabilityUnknownID(t *testing.T) {
	mk := newTestMarketplace(t)
	_, err := mk.ExecuteCapability(context.Background(), "does.not.exist", nil)
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.UnknownCapability))
}

func TestExecuteCapabilityDeniedByIsolationPolicy(t *testing.T) {
	mk := newTestMarketplace(t, WithPolicy(&isolation.Policy{
		Deny: []string{"restricted.*"},
	}))
	mk.RegisterLocalCapability("restricted.tool", "tool", "",
		func(ctx context.Context, inputs interface{}) (interface{}, error) { return "ok", nil }, nil)

	_, err := mk.ExecuteCapability(context.Background(), "restricted.tool", nil)
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.AccessDenied))
}

func TestExecuteCapabilityHappyPath(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("demo.add", "add", "adds two numbers",
		func(ctx context.Context, inputs interface{}) (interface{}, error) {
			m := inputs.(map[string]interface{})
			return m["a"].(float64) + m["b"].(float64), nil
		}, nil)

	result, err := mk.ExecuteCapability(context.Background(), "demo.add", map[string]interface{}{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result)
}

func TestExecuteCapabilityInputSchemaViolation(t *testing.T) {
	mk := newTestMarketplace(t)
	handler := func(ctx context.Context, inputs interface{}) (interface{}, error) { return "ok", nil }
	mk.RegisterCapabilityManifest(&manifest.CapabilityManifest{
		ID:          "demo.strict",
		Name:        "strict",
		Version:     manifest.ParseVersion("1.0.0"),
		Provider:    manifest.LocalProvider{Handler: handler},
		InputSchema: schema.MapExpr(map[string]*schema.Expr{"name": schema.String()}, []string{"name"}, false),
	})

	_, err := mk.ExecuteCapability(context.Background(), "demo.strict", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.SchemaViolation))
}

func TestExecuteCapabilityInputEnvelopeNormalization(t *testing.T) {
	mk := newTestMarketplace(t)
	var received interface{}
	mk.RegisterLocalCapability("demo.capture", "capture", "",
		func(ctx context.Context, inputs interface{}) (interface{}, error) {
			received = inputs
			return nil, nil
		}, nil)

	_, err := mk.ExecuteCapability(context.Background(), "demo.capture", []interface{}{map[string]interface{}{"x": 1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"x": 1}, received)
}

func TestUpdateCapabilityRejectsBreakingChangeWithoutForce(t *testing.T) {
	mk := newTestMarketplace(t)
	old := &manifest.CapabilityManifest{
		ID:          "demo.versioned",
		Version:     manifest.ParseVersion("1.0.0"),
		Provider:    manifest.LocalProvider{},
		InputSchema: schema.MapExpr(map[string]*schema.Expr{"a": schema.String()}, []string{"a"}, false),
	}
	mk.RegisterCapabilityManifest(old)

	breaking := &manifest.CapabilityManifest{
		ID:          "demo.versioned",
		Version:     manifest.ParseVersion("2.0.0"),
		Provider:    manifest.LocalProvider{},
		InputSchema: schema.MapExpr(map[string]*schema.Expr{"a": schema.String(), "b": schema.String()}, []string{"a", "b"}, false),
	}
	err := mk.UpdateCapability(breaking, false)
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.BreakingChange))

	// Original registration is untouched.
	current, _ := mk.store.Get("demo.versioned")
	assert.Equal(t, "1.0.0", current.Version.String())

	// Forcing accepts it and records the replaced version in history.
	require.NoError(t, mk.UpdateCapability(breaking, true))
	current, _ = mk.store.Get("demo.versioned")
	assert.Equal(t, "2.0.0", current.Version.String())
	require.Len(t, current.VersionHistory, 1)
	assert.Equal(t, "1.0.0", current.VersionHistory[0].Version.String())
}

func TestRemoveCapability(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("demo.temp", "temp", "", nil, nil)
	_, ok := mk.store.Get("demo.temp")
	require.True(t, ok)

	mk.RemoveCapability("demo.temp")
	_, ok = mk.store.Get("demo.temp")
	assert.False(t, ok)

	// Removing again is a no-op, not an error.
	mk.RemoveCapability("demo.temp")
}

func TestExecuteCapabilityUsesMissingResolver(t *testing.T) {
	resolved := &manifest.CapabilityManifest{
		ID:       "demo.lazy",
		Version:  manifest.ParseVersion("1.0.0"),
		Provider: manifest.LocalProvider{Handler: func(ctx context.Context, inputs interface{}) (interface{}, error) { return "resolved", nil }},
	}
	mk := newTestMarketplace(t, WithMissingResolver(func(ctx context.Context, id string) (*manifest.CapabilityManifest, error) {
		if id == "demo.lazy" {
			return resolved, nil
		}
		return nil, assert.AnError
	}))

	result, err := mk.ExecuteCapability(context.Background(), "demo.lazy", nil)
	require.NoError(t, err)
	assert.Equal(t, "resolved", result)
}

func TestExecuteCapabilityResourceHardViolationBlocksExecution(t *testing.T) {
	executed := false
	mk := newTestMarketplace(t,
		WithPolicy(&isolation.Policy{
			Allow: []string{"*"},
			Resources: &isolation.ResourceConstraints{
				MemoryBytes: &isolation.Limit{Max: 100, Enforcement: isolation.EnforcementHard},
			},
		}),
		WithResourceMonitor(func() isolation.Reading { return isolation.Reading{MemoryBytes: 200} }),
	)
	mk.RegisterLocalCapability("demo.heavy", "heavy", "",
		func(ctx context.Context, inputs interface{}) (interface{}, error) { executed = true; return nil, nil }, nil)

	_, err := mk.ExecuteCapability(context.Background(), "demo.heavy", nil)
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.ResourceViolation))
	assert.False(t, executed)
}

func TestExportImportRoundTrip(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterCapabilityManifest(&manifest.CapabilityManifest{
		ID:       "demo.http",
		Name:     "http-tool",
		Version:  manifest.ParseVersion("1.0.0"),
		Provider: manifest.HTTPProvider{BaseURL: "https://example.test", Timeout: 5 * time.Second},
	})
	// Local providers are not serialisable: confirm they're skipped.
	mk.RegisterLocalCapability("demo.local", "local", "", nil, nil)

	dir := t.TempDir()
	require.NoError(t, mk.ExportCapabilityScript(dir))

	mk2 := newTestMarketplace(t)
	require.NoError(t, mk2.ImportCapabilityScript(dir+"/demo_http.yaml"))
	m, ok := mk2.store.Get("demo.http")
	require.True(t, ok)
	assert.Equal(t, "http-tool", m.Name)
	httpProvider, ok := m.Provider.(manifest.HTTPProvider)
	require.True(t, ok)
	assert.Equal(t, "https://example.test", httpProvider.BaseURL)

	_, ok = mk2.store.Get("demo.local")
	assert.False(t, ok, "non-serialisable providers must not be exported")
}

func TestExecuteCapabilityEmitsOrderedChainActions(t *testing.T) {
	mk, c := newTestMarketplaceWithChain(t)
	mk.RegisterLocalCapability("demo.add", "add", "adds two numbers",
		func(ctx context.Context, inputs interface{}) (interface{}, error) {
			m := inputs.(map[string]interface{})
			return m["a"].(float64) + m["b"].(float64), nil
		}, nil)

	result, err := mk.ExecuteCapability(context.Background(), "demo.add", map[string]interface{}{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result)

	actions := c.GetAllActions()
	require.Len(t, actions, 2, "expected a registration action followed by a call action")

	registered := actions[0]
	assert.Equal(t, chain.ActionCapabilityRegistered, registered.Type)
	assert.Equal(t, "demo.add", registered.CapabilityID())

	call := actions[1]
	assert.Equal(t, chain.ActionCapabilityCall, call.Type)
	assert.Equal(t, "demo.add", call.CapabilityID())
	require.NotNil(t, call.DurationMs)
	assert.GreaterOrEqual(t, *call.DurationMs, int64(0))
	assert.NotContains(t, call.Metadata, "error")

	fm := c.FunctionMetricsFor("demo.add", "")
	assert.Equal(t, int64(1), fm.Count)
	assert.Equal(t, int64(1), fm.SuccessCount)
	assert.Equal(t, int64(0), fm.FailureCount)
}

func TestExecuteCapabilityEmitsErrorMetadataOnFailure(t *testing.T) {
	mk, c := newTestMarketplaceWithChain(t)
	mk.RegisterLocalCapability("demo.explode", "explode", "",
		func(ctx context.Context, inputs interface{}) (interface{}, error) {
			return nil, assert.AnError
		}, nil)

	_, err := mk.ExecuteCapability(context.Background(), "demo.explode", nil)
	require.Error(t, err)

	actions := c.GetAllActions()
	require.Len(t, actions, 2)
	call := actions[1]
	assert.Equal(t, chain.ActionCapabilityCall, call.Type)
	require.Contains(t, call.Metadata, "error")
	assert.Equal(t, err.Error(), call.Metadata["error"])

	fm := c.FunctionMetricsFor("demo.explode", "")
	assert.Equal(t, int64(1), fm.Count)
	assert.Equal(t, int64(0), fm.SuccessCount)
	assert.Equal(t, int64(1), fm.FailureCount)
}

func TestExecuteCapabilityClassifiesContextErrorKinds(t *testing.T) {
	mk := newTestMarketplace(t)
	mk.RegisterLocalCapability("demo.slow", "slow", "",
		func(ctx context.Context, inputs interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil)

	deadlineCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := mk.ExecuteCapability(deadlineCtx, "demo.slow", nil)
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.ExecutionTimeout))

	cancelCtx, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = mk.ExecuteCapability(cancelCtx, "demo.slow", nil)
	require.Error(t, err)
	assert.True(t, ccoserr.IsKind(err, ccoserr.Cancelled))
}
