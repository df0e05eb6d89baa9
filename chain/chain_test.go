package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPreservesOrder(t *testing.T) {
	c := New(nil)

	for i, typ := range []ActionType{ActionCapabilityRegistered, ActionCapabilityCall, ActionCapabilityRemoved} {
		a := NewAction(typ, "demo.cap")
		a.FunctionName = "f"
		require.NoError(t, c.Append(a))
		_ = i
	}

	actions := c.GetAllActions()
	require.Len(t, actions, 3)
	assert.Equal(t, ActionCapabilityRegistered, actions[0].Type)
	assert.Equal(t, ActionCapabilityCall, actions[1].Type)
	assert.Equal(t, ActionCapabilityRemoved, actions[2].Type)
}

func TestGetAllActionsReturnsDefensiveCopy(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Append(NewAction(ActionCapabilityRegistered, "demo.cap")))

	actions := c.GetAllActions()
	actions[0].Type = "tampered"

	fresh := c.GetAllActions()
	assert.Equal(t, ActionCapabilityRegistered, fresh[0].Type, "mutating the snapshot must not affect the log")
}

func TestUpdateMetricsCountsSuccessAndFailure(t *testing.T) {
	c := New(nil)

	ok := NewAction(ActionCapabilityCall, "demo.cap")
	ok.FunctionName = "f"
	durOK := int64(10)
	ok.DurationMs = &durOK
	require.NoError(t, c.Append(ok))

	failed := NewAction(ActionCapabilityCall, "demo.cap")
	failed.FunctionName = "f"
	failed.Metadata["error"] = "boom"
	durFail := int64(20)
	failed.DurationMs = &durFail
	require.NoError(t, c.Append(failed))

	fm := c.FunctionMetricsFor("demo.cap", "f")
	assert.Equal(t, int64(2), fm.Count)
	assert.Equal(t, int64(1), fm.SuccessCount)
	assert.Equal(t, int64(1), fm.FailureCount)
	assert.Equal(t, 0.5, fm.ReliabilityScore())
	assert.Equal(t, float64(15), fm.AvgDurationMs())
}

func TestUpdateMetricsIgnoresNonCallActionsForCounts(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Append(NewAction(ActionCapabilityRegistered, "demo.cap")))

	fm := c.FunctionMetricsFor("demo.cap", "")
	assert.Equal(t, int64(0), fm.Count, "registration actions must not be counted as calls")
}

func TestReliabilityScoreDefaultsOptimisticWithNoData(t *testing.T) {
	c := New(nil)
	fm := c.FunctionMetricsFor("never.called", "")
	assert.Equal(t, float64(1), fm.ReliabilityScore())
}

func TestCostTrackingGroupedByIntentPlanAndCapability(t *testing.T) {
	c := New(nil)

	a := NewAction(ActionCapabilityCall, "demo.cap")
	a.IntentID = "intent-1"
	a.PlanID = "plan-1"
	cost := 2.5
	a.Cost = &cost
	require.NoError(t, c.Append(a))

	b := NewAction(ActionCapabilityCall, "demo.cap")
	b.IntentID = "intent-1"
	b.PlanID = "plan-2"
	cost2 := 1.5
	b.Cost = &cost2
	require.NoError(t, c.Append(b))

	assert.Equal(t, 4.0, c.CostByIntent("intent-1"))
	assert.Equal(t, 2.5, c.CostByPlan("plan-1"))
	assert.Equal(t, 1.5, c.CostByPlan("plan-2"))
	assert.Equal(t, 4.0, c.CostByCapability("demo.cap"))
}

func TestActionCapabilityIDRoundTrips(t *testing.T) {
	a := NewAction(ActionCapabilityCall, "demo.cap")
	assert.Equal(t, "demo.cap", a.CapabilityID())
}
