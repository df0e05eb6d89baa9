// Package manifest defines the capability manifest, its provider-kind
// variants, and the pure helper functions (version algebra, breaking-
// change detection, source-category inference) that operate over them.
//
// The provider-kind tagged union is grounded on the teacher's
// core.Capability shape (a plain struct carrying a discriminating set of
// fields) generalised into one interface per variant, the idiomatic Go
// way to express a closed tagged union without a sum-type language
// feature.
package manifest

import (
	"context"
	"time"
)

// ProviderKindTag discriminates which concrete Provider a manifest carries.
type ProviderKindTag string

const (
	ProviderLocal        ProviderKindTag = "local"
	ProviderHTTP         ProviderKindTag = "http"
	ProviderOpenAPI      ProviderKindTag = "openapi"
	ProviderRemoteTool   ProviderKindTag = "remote_tool"
	ProviderAgentToAgent ProviderKindTag = "agent_to_agent"
	ProviderRemoteRTFS   ProviderKindTag = "remote_rtfs"
	ProviderStream       ProviderKindTag = "stream"
	ProviderPlugin       ProviderKindTag = "plugin"
	ProviderRegistry     ProviderKindTag = "registry"
	ProviderNative       ProviderKindTag = "native"
	ProviderSandboxed    ProviderKindTag = "sandboxed"
)

// Provider is implemented by every provider-kind payload.
type Provider interface {
	Kind() ProviderKindTag
}

// LocalHandler is the synchronous, in-process handler signature for
// ProviderLocal.
type LocalHandler func(ctx context.Context, inputs interface{}) (interface{}, error)

// LocalProvider invokes an in-process handler directly.
type LocalProvider struct {
	Handler LocalHandler
}

func (LocalProvider) Kind() ProviderKindTag { return ProviderLocal }

// HTTPProvider dispatches over plain HTTP.
type HTTPProvider struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string // optional, resolved at registration time or left empty for env resolution
}

func (HTTPProvider) Kind() ProviderKindTag { return ProviderHTTP }

// AuthMode names where an OpenAPI operation expects its credential.
type AuthMode string

const (
	AuthModeHeader AuthMode = "header"
	AuthModeQuery  AuthMode = "query"
	AuthModeCookie AuthMode = "cookie"
)

// OpenAPIOperation describes one operation of an OpenAPI-backed provider.
type OpenAPIOperation struct {
	OperationID string
	Method      string
	Path        string
	AuthMode    AuthMode
	AuthParam   string // header/query/cookie name carrying the credential
}

// OpenAPIProvider routes calls through a declared operation table.
type OpenAPIProvider struct {
	BaseURL    string
	SpecURL    string // optional
	Operations map[string]OpenAPIOperation
	AuthToken  string // optional
}

func (OpenAPIProvider) Kind() ProviderKindTag { return ProviderOpenAPI }

// RemoteToolProvider calls a tool hosted by a remote tool server.
type RemoteToolProvider struct {
	ServerURL string
	ToolID    string
	Timeout   time.Duration
	AuthToken string // optional
}

func (RemoteToolProvider) Kind() ProviderKindTag { return ProviderRemoteTool }

// AgentToAgentProvider dispatches to a peer agent's endpoint.
type AgentToAgentProvider struct {
	AgentID  string
	Endpoint string
	Protocol string
	Timeout  time.Duration
}

func (AgentToAgentProvider) Kind() ProviderKindTag { return ProviderAgentToAgent }

// RemoteRTFSProvider dispatches to a remote RTFS-speaking endpoint.
type RemoteRTFSProvider struct {
	Endpoint  string
	Timeout   time.Duration
	AuthToken string // optional
}

func (RemoteRTFSProvider) Kind() ProviderKindTag { return ProviderRemoteRTFS }

// StreamKind tags the directionality of a ProviderStream variant.
type StreamKind string

const (
	StreamUnidirectional StreamKind = "unidirectional"
	StreamBidirectional  StreamKind = "bidirectional"
	StreamDuplex         StreamKind = "duplex"
)

// StreamProvider produces a stream handle rather than a single value.
type StreamProvider struct {
	ProducerType string
	StreamKind   StreamKind
}

func (StreamProvider) Kind() ProviderKindTag { return ProviderStream }

// PluginProvider loads an in-process plugin by path and entry symbol.
type PluginProvider struct {
	Path        string
	EntrySymbol string
}

func (PluginProvider) Kind() ProviderKindTag { return ProviderPlugin }

// RegistryProvider forwards to the lower-level capability registry.
type RegistryProvider struct {
	RegistryRef string
}

func (RegistryProvider) Kind() ProviderKindTag { return ProviderRegistry }

// NativeHandler is an asynchronous handler awaited to completion.
type NativeHandler func(ctx context.Context) (interface{}, error)

// NativeProvider invokes an async in-process handler.
type NativeProvider struct {
	Handler NativeHandler
}

func (NativeProvider) Kind() ProviderKindTag { return ProviderNative }

// SandboxedProvider dispatches to an external sandbox runtime.
type SandboxedProvider struct {
	Runtime      string
	Source       string
	EntryPoint   string // optional
	ProviderHint string // optional
}

func (SandboxedProvider) Kind() ProviderKindTag { return ProviderSandboxed }

// exportableKinds are the provider kinds the marketplace is willing to
// serialise to JSON or a capability script file (spec §4.7 export).
var exportableKinds = map[ProviderKindTag]bool{
	ProviderHTTP:         true,
	ProviderOpenAPI:      true,
	ProviderRemoteTool:   true,
	ProviderAgentToAgent: true,
	ProviderRemoteRTFS:   true,
	ProviderSandboxed:    true,
}

// IsSerializable reports whether a provider kind may be exported. Local,
// Stream, Plugin, Native and Registry are excluded: the first four are
// intrinsically in-process or live, and Registry is a forwarding
// reference with nothing of its own to serialise.
func IsSerializable(kind ProviderKindTag) bool {
	return exportableKinds[kind]
}
