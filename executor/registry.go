// Package executor implements the Executor Registry: a mapping from
// provider-kind discriminant to the single executor that knows how to
// dispatch that kind (spec.md §4.3).
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/resilience"
	"github.com/ccos-project/ccos-core/session"
)

// Context carries everything an executor needs beyond the provider
// variant and inputs: the capability id (for error wrapping), manifest
// metadata, the session pool handle, and the namespace used for
// namespace-scoped auth token resolution.
type Context struct {
	CapabilityID string
	Metadata     map[string]string
	Sessions     *session.Pool
	Namespace    string
	Logger       ccoslog.Logger
}

// Executor dispatches execution for exactly one provider kind.
type Executor interface {
	Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error)
}

// Registry is the provider-kind -> Executor mapping.
type Registry struct {
	mu        sync.RWMutex
	executors map[manifest.ProviderKindTag]Executor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[manifest.ProviderKindTag]Executor)}
}

// Register wires the executor for kind. Registering a second executor
// for a kind that already has one is a registration error — the
// registry holds exactly one executor per provider kind (spec.md §4.3).
func (r *Registry) Register(kind manifest.ProviderKindTag, ex Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[kind]; exists {
		return fmt.Errorf("executor: provider kind %s already has a registered executor", kind)
	}
	r.executors[kind] = ex
	return nil
}

// Lookup returns the executor for kind, or false if none is registered.
// A manifest whose provider kind has no executor is legal to register
// in the marketplace; it simply cannot be executed (spec.md §4.3).
func (r *Registry) Lookup(kind manifest.ProviderKindTag) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[kind]
	return ex, ok
}

// Execute resolves provider.Kind() to its executor and dispatches, or
// returns an error if no executor is registered for that kind.
func (r *Registry) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	ex, ok := r.Lookup(provider.Kind())
	if !ok {
		return nil, fmt.Errorf("executor: no executor registered for provider kind %s", provider.Kind())
	}
	return ex.Execute(ctx, provider, inputs, ec)
}

// NewDefaultRegistry builds a Registry with every executor named in
// spec.md §4.3 wired in: Local, HTTP, OpenAPI, Remote-Tool,
// Agent-to-Agent, Stream, Registry, Sandboxed and Native. RemoteRTFS
// shares the HTTP executor's transport shape (a timeout-bounded call to
// an endpoint) since spec.md §1 excludes concrete transport
// implementations beyond the executor registry's contract with them.
// NewDefaultRegistry wraps every executor that crosses a process
// boundary (HTTP, OpenAPI, Remote-Tool, Agent-to-Agent, Remote-RTFS,
// Registry) in resilience.Resilient, giving each capability its own
// circuit breaker keyed by capability id. Local/Native/Sandboxed never
// leave the process, and a long-lived Stream executor's failure modes
// don't fit a per-call retry, so none of the three are wrapped.
func NewDefaultRegistry(sandboxDispatch SandboxDispatcher, registryForward RegistryForwarder) *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err) // only reachable on a programming error (duplicate registration)
		}
	}
	breakers := resilience.NewRegistry(nil)
	retryCfg := resilience.DefaultRetryConfig()
	resilient := func(inner Executor) Executor { return NewResilient(inner, breakers, retryCfg) }

	must(r.Register(manifest.ProviderLocal, LocalExecutor{}))
	must(r.Register(manifest.ProviderHTTP, resilient(HTTPExecutor{})))
	must(r.Register(manifest.ProviderOpenAPI, resilient(OpenAPIExecutor{})))
	must(r.Register(manifest.ProviderRemoteTool, resilient(RemoteToolExecutor{})))
	must(r.Register(manifest.ProviderAgentToAgent, resilient(AgentToAgentExecutor{})))
	must(r.Register(manifest.ProviderRemoteRTFS, resilient(RemoteRTFSExecutor{})))
	must(r.Register(manifest.ProviderStream, StreamExecutor{}))
	must(r.Register(manifest.ProviderRegistry, resilient(RegistryExecutor{Forwarder: registryForward})))
	must(r.Register(manifest.ProviderSandboxed, SandboxedExecutor{Dispatcher: sandboxDispatch}))
	must(r.Register(manifest.ProviderNative, NativeExecutor{}))
	// ProviderPlugin intentionally has no executor: in-process plugin
	// loading is excluded from this core's scope, same non-goal class as
	// sandboxed code execution "beyond the hooks required to dispatch to
	// a sandbox executor" (spec.md §1). A manifest with this kind is
	// still legal to register; it cannot be executed.
	return r
}
