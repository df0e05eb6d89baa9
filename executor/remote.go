package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/session"
)

// sessionTransport is the minimal transport handle pooled sessions carry
// for the HTTP-shaped stateful providers (remote-tool, agent-to-agent,
// RTFS). A single shared *http.Client is multiplexing-safe, matching Go's
// own http.Client concurrency guarantees.
type sessionTransport struct {
	client *http.Client
}

func newSessionFactory() session.Factory {
	return func(ctx context.Context, key session.Key, authToken string) (interface{}, error) {
		return &sessionTransport{client: &http.Client{}}, nil
	}
}

// RemoteToolExecutor dispatches to a remote tool server, borrowing a
// pooled session keyed by (ProviderRemoteTool, server URL) and applying
// an auth header resolved via the session pool's precedence chain
// (spec.md §4.3/§4.4).
type RemoteToolExecutor struct{}

func (RemoteToolExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	rt, ok := provider.(manifest.RemoteToolProvider)
	if !ok {
		return nil, fmt.Errorf("executor: RemoteToolExecutor received non-remote-tool provider %T", provider)
	}
	if ec.Sessions == nil {
		return nil, fmt.Errorf("executor: remote-tool capability %s: no session pool configured", ec.CapabilityID)
	}

	key := session.Key{Kind: manifest.ProviderRemoteTool, Endpoint: rt.ServerURL}
	sess, release, err := ec.Sessions.Acquire(ctx, key, ec.CapabilityID, ec.Namespace)
	if err != nil {
		return nil, fmt.Errorf("executor: remote-tool capability %s: acquiring session: %w", ec.CapabilityID, err)
	}
	defer release()

	start := time.Now()
	result, err := dispatchSessionCall(ctx, sess, rt.ServerURL+"/tools/"+rt.ToolID, rt.Timeout, inputs)
	sess.Touch()
	_ = time.Since(start) // latency recording is delegated to the audit emitter, which wraps this call
	if err != nil {
		return nil, fmt.Errorf("executor: remote-tool capability %s: %w", ec.CapabilityID, err)
	}
	return result, nil
}

// AgentToAgentExecutor dispatches to a peer agent's endpoint, using the
// same pooled-session/auth-header idiom as RemoteToolExecutor.
type AgentToAgentExecutor struct{}

func (AgentToAgentExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	a2a, ok := provider.(manifest.AgentToAgentProvider)
	if !ok {
		return nil, fmt.Errorf("executor: AgentToAgentExecutor received non-agent-to-agent provider %T", provider)
	}
	if ec.Sessions == nil {
		return nil, fmt.Errorf("executor: agent-to-agent capability %s: no session pool configured", ec.CapabilityID)
	}

	key := session.Key{Kind: manifest.ProviderAgentToAgent, Endpoint: a2a.Endpoint}
	sess, release, err := ec.Sessions.Acquire(ctx, key, ec.CapabilityID, ec.Namespace)
	if err != nil {
		return nil, fmt.Errorf("executor: agent-to-agent capability %s: acquiring session: %w", ec.CapabilityID, err)
	}
	defer release()

	result, err := dispatchSessionCall(ctx, sess, a2a.Endpoint, a2a.Timeout, inputs)
	sess.Touch()
	if err != nil {
		return nil, fmt.Errorf("executor: agent-to-agent capability %s (protocol %s): %w", ec.CapabilityID, a2a.Protocol, err)
	}
	return result, nil
}

// RemoteRTFSExecutor dispatches to a remote RTFS-speaking endpoint. It
// shares the HTTP-shaped session transport since spec.md §1 excludes the
// concrete RTFS wire format from this core's scope.
type RemoteRTFSExecutor struct{}

func (RemoteRTFSExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	rtfs, ok := provider.(manifest.RemoteRTFSProvider)
	if !ok {
		return nil, fmt.Errorf("executor: RemoteRTFSExecutor received non-rtfs provider %T", provider)
	}
	if ec.Sessions == nil {
		return nil, fmt.Errorf("executor: rtfs capability %s: no session pool configured", ec.CapabilityID)
	}

	key := session.Key{Kind: manifest.ProviderRemoteRTFS, Endpoint: rtfs.Endpoint}
	sess, release, err := ec.Sessions.Acquire(ctx, key, ec.CapabilityID, ec.Namespace)
	if err != nil {
		return nil, fmt.Errorf("executor: rtfs capability %s: acquiring session: %w", ec.CapabilityID, err)
	}
	defer release()

	result, err := dispatchSessionCall(ctx, sess, rtfs.Endpoint, rtfs.Timeout, inputs)
	sess.Touch()
	if err != nil {
		return nil, fmt.Errorf("executor: rtfs capability %s: %w", ec.CapabilityID, err)
	}
	return result, nil
}

// dispatchSessionCall marshals inputs as JSON, POSTs them to endpoint
// using the session's pooled *http.Client, and unmarshals the response.
func dispatchSessionCall(ctx context.Context, sess *session.Session, endpoint string, timeout time.Duration, inputs interface{}) (interface{}, error) {
	transport, ok := sess.Transport.(*sessionTransport)
	if !ok {
		return nil, fmt.Errorf("unexpected session transport type %T", sess.Transport)
	}

	data, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("marshaling inputs: %w", err)
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sess.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AuthToken)
	}

	resp, err := transport.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}
