package chain

import (
	"encoding/json"

	"github.com/ccos-project/ccos-core/ccoslog"
)

// Emitter is the single audit emitter every marketplace state change and
// capability invocation passes through (spec.md §4.5). It builds an
// action record from event-specific fields and appends it to a Chain
// under the chain's own lock; a failure to append is logged but never
// fails the caller.
//
// The ordering guarantee in spec.md §4.5 ("for a given capability id,
// register/update/remove events are emitted in the order they are
// applied") depends on the marketplace holding its manifest-store lock
// across the mutation and the Emit call; the emitter itself does not
// acquire any lock of its own.
type Emitter struct {
	chain  *Chain
	logger ccoslog.Logger
}

// NewEmitter wraps a Chain with the audit emission contract.
func NewEmitter(chain *Chain, logger ccoslog.Logger) *Emitter {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	return &Emitter{chain: chain, logger: logger.WithComponent("chain/audit")}
}

// EmitRegistered records a capability registration.
func (e *Emitter) EmitRegistered(capabilityID string, metadata map[string]interface{}) {
	e.emit(NewAction(ActionCapabilityRegistered, capabilityID), metadata)
}

// EmitRemoved records a capability removal.
func (e *Emitter) EmitRemoved(capabilityID string, metadata map[string]interface{}) {
	e.emit(NewAction(ActionCapabilityRemoved, capabilityID), metadata)
}

// EmitUpdated records a capability update, including the previous/new
// version and breaking-change list, serialised to JSON as the spec's
// "version comparison tag, breaking-changes list serialised to JSON"
// metadata fields.
func (e *Emitter) EmitUpdated(capabilityID, previousVersion, newVersion string, breakages []string, versionComparisonTag string) {
	breakagesJSON, err := json.Marshal(breakages)
	if err != nil {
		breakagesJSON = []byte("[]")
	}
	e.emit(NewAction(ActionCapabilityUpdated, capabilityID), map[string]interface{}{
		"previous_version":       previousVersion,
		"new_version":            newVersion,
		"version_comparison_tag": versionComparisonTag,
		"breaking_changes":       string(breakagesJSON),
	})
}

// EmitCall records a capability invocation outcome.
func (e *Emitter) EmitCall(capabilityID, functionName string, input, result interface{}, cost *float64, durationMs *int64, callErr error) {
	action := NewAction(ActionCapabilityCall, capabilityID)
	action.FunctionName = functionName
	action.Input = input
	action.Result = result
	action.Cost = cost
	action.DurationMs = durationMs
	metadata := map[string]interface{}{}
	if callErr != nil {
		metadata["error"] = callErr.Error()
	}
	e.emit(action, metadata)
}

// EmitDiscoveryCompleted records a discovery resolution outcome.
func (e *Emitter) EmitDiscoveryCompleted(capabilityID string, metadata map[string]interface{}) {
	e.emit(NewAction(ActionCapabilityDiscoveryCompleted, capabilityID), metadata)
}

func (e *Emitter) emit(action Action, metadata map[string]interface{}) {
	for k, v := range metadata {
		action.Metadata[k] = v
	}
	if err := e.chain.Append(action); err != nil {
		// A failure to append never fails the caller (spec.md §4.5 step 3);
		// it is only ever surfaced as a diagnostic.
		e.logger.Error("failed to append causal chain action", map[string]interface{}{
			"capability_id": action.CapabilityID(),
			"action_type":   string(action.Type),
			"error":         err.Error(),
		})
	}
}
