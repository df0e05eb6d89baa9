package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccos-project/ccos-core/ccoslog"
)

func TestEmitterEmitsRegisteredUpdatedRemovedInOrder(t *testing.T) {
	c := New(nil)
	e := NewEmitter(c, ccoslog.NoOp())

	e.EmitRegistered("demo.cap", map[string]interface{}{"name": "demo"})
	e.EmitUpdated("demo.cap", "1.0.0", "1.1.0", []string{"added field x"}, "minor")
	e.EmitRemoved("demo.cap", nil)

	actions := c.GetAllActions()
	require.Len(t, actions, 3)
	assert.Equal(t, ActionCapabilityRegistered, actions[0].Type)
	assert.Equal(t, "demo", actions[0].Metadata["name"])

	assert.Equal(t, ActionCapabilityUpdated, actions[1].Type)
	assert.Equal(t, "1.0.0", actions[1].Metadata["previous_version"])
	assert.Equal(t, "1.1.0", actions[1].Metadata["new_version"])
	assert.Contains(t, actions[1].Metadata["breaking_changes"], "added field x")

	assert.Equal(t, ActionCapabilityRemoved, actions[2].Type)
}

func TestEmitterEmitCallRecordsErrorMetadata(t *testing.T) {
	c := New(nil)
	e := NewEmitter(c, ccoslog.NoOp())

	durationMs := int64(5)
	e.EmitCall("demo.cap", "fn", map[string]interface{}{"a": 1}, nil, nil, &durationMs, errors.New("dispatch failed"))

	actions := c.GetAllActions()
	require.Len(t, actions, 1)
	call := actions[0]
	assert.Equal(t, ActionCapabilityCall, call.Type)
	assert.Equal(t, "fn", call.FunctionName)
	require.NotNil(t, call.DurationMs)
	assert.Equal(t, int64(5), *call.DurationMs)
	assert.Equal(t, "dispatch failed", call.Metadata["error"])
}

func TestEmitterEmitCallOmitsErrorMetadataOnSuccess(t *testing.T) {
	c := New(nil)
	e := NewEmitter(c, ccoslog.NoOp())

	e.EmitCall("demo.cap", "fn", nil, "ok", nil, nil, nil)

	actions := c.GetAllActions()
	require.Len(t, actions, 1)
	assert.NotContains(t, actions[0].Metadata, "error")
}

func TestEmitterEmitDiscoveryCompleted(t *testing.T) {
	c := New(nil)
	e := NewEmitter(c, ccoslog.NoOp())

	e.EmitDiscoveryCompleted("demo.cap", map[string]interface{}{"matched": true})

	actions := c.GetAllActions()
	require.Len(t, actions, 1)
	assert.Equal(t, ActionCapabilityDiscoveryCompleted, actions[0].Type)
	assert.Equal(t, true, actions[0].Metadata["matched"])
}
