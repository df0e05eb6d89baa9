package executor

import (
	"context"
	"fmt"

	"github.com/ccos-project/ccos-core/manifest"
)

// RegistryForwarder is the external collaborator hook for the
// lower-level capability registry's own execute path (spec.md §4.3:
// "forward to the lower-level capability registry's execute path").
type RegistryForwarder func(ctx context.Context, registryRef string, inputs interface{}) (interface{}, error)

// RegistryExecutor forwards to a lower-level capability registry.
type RegistryExecutor struct {
	Forwarder RegistryForwarder
}

func (e RegistryExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	reg, ok := provider.(manifest.RegistryProvider)
	if !ok {
		return nil, fmt.Errorf("executor: RegistryExecutor received non-registry provider %T", provider)
	}
	if e.Forwarder == nil {
		return nil, fmt.Errorf("executor: registry capability %s: no registry forwarder configured", ec.CapabilityID)
	}
	result, err := e.Forwarder(ctx, reg.RegistryRef, inputs)
	if err != nil {
		return nil, fmt.Errorf("executor: registry capability %s: %w", ec.CapabilityID, err)
	}
	return result, nil
}

// SandboxDispatcher is the external collaborator hook for a sandbox
// runtime identified by tag (spec.md §4.3: "the sandbox runtime is an
// external collaborator").
type SandboxDispatcher func(ctx context.Context, runtime, source, entryPoint string, inputs interface{}) (interface{}, error)

// SandboxedExecutor dispatches to a runtime identified by a tag.
type SandboxedExecutor struct {
	Dispatcher SandboxDispatcher
}

func (e SandboxedExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	sb, ok := provider.(manifest.SandboxedProvider)
	if !ok {
		return nil, fmt.Errorf("executor: SandboxedExecutor received non-sandboxed provider %T", provider)
	}
	if e.Dispatcher == nil {
		return nil, fmt.Errorf("executor: sandboxed capability %s: no sandbox dispatcher configured", ec.CapabilityID)
	}
	result, err := e.Dispatcher(ctx, sb.Runtime, sb.Source, sb.EntryPoint, inputs)
	if err != nil {
		return nil, fmt.Errorf("executor: sandboxed capability %s (runtime %s): %w", ec.CapabilityID, sb.Runtime, err)
	}
	return result, nil
}
