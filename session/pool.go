// Package session implements the process-wide session pool: typed
// session handles keyed by (provider-kind tag, canonical endpoint key),
// with auth tokens resolved through an environment precedence chain.
//
// Grounded on the teacher's core.RedisRegistry/core.RedisClient:
// connection-scoped state keyed by a canonical identifier, production
// connection settings set once at construction, and graceful handling of
// transport errors rather than panics.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/manifest"
)

var tracer = otel.Tracer("github.com/ccos-project/ccos-core/session")

// Key identifies a pooled session: the provider kind plus a canonical
// endpoint string (server URL, agent endpoint, etc.).
type Key struct {
	Kind     manifest.ProviderKindTag
	Endpoint string
}

func (k Key) String() string { return string(k.Kind) + "|" + k.Endpoint }

// Session is one pooled, provider-typed session handle.
type Session struct {
	Key       Key
	Transport interface{} // opaque transport handle, created by a Factory
	AuthToken string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

// Touch records activity on the session for idle-sweeper bookkeeping.
// The sweeper itself is out of scope (spec.md §4.4); callers must
// tolerate a fresh session for any call regardless.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Factory constructs the transport handle for a new session of a given
// key. Concrete transports (HTTP client, remote-tool client, agent
// client) are supplied by the executor registry at wiring time — this
// core only specifies the contract (spec.md §1 explicitly excludes the
// concrete transport implementations).
type Factory func(ctx context.Context, key Key, authToken string) (interface{}, error)

// kindConfig records per-provider-kind pool behavior.
type kindConfig struct {
	factory         Factory
	multiplexSafe   bool // false => each call borrows the session exclusively
}

// Pool is the process-wide session store.
type Pool struct {
	authEnvVars func(capabilityID, namespace string) []string

	mu       sync.RWMutex
	sessions map[Key]*Session
	kinds    map[manifest.ProviderKindTag]*kindConfig
	locks    map[Key]*sync.Mutex

	logger ccoslog.Logger
}

// NewPool builds an empty pool. authEnvVars supplies the precedence
// chain of environment variable names to check for an auth token
// (capability-specific -> namespace-scoped -> generic), mirroring
// ccosconfig.Config.AuthTokenEnvVars without creating an import cycle.
func NewPool(authEnvVars func(capabilityID, namespace string) []string, logger ccoslog.Logger) *Pool {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	return &Pool{
		authEnvVars: authEnvVars,
		sessions:    make(map[Key]*Session),
		kinds:       make(map[manifest.ProviderKindTag]*kindConfig),
		locks:       make(map[Key]*sync.Mutex),
		logger:      logger.WithComponent("session/pool"),
	}
}

// RegisterFactory wires the transport constructor for a provider kind.
// multiplexSafe marks whether sessions of this kind may be shared
// between concurrent calls without exclusive borrowing (spec.md §4.4).
func (p *Pool) RegisterFactory(kind manifest.ProviderKindTag, factory Factory, multiplexSafe bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds[kind] = &kindConfig{factory: factory, multiplexSafe: multiplexSafe}
}

// resolveAuthToken walks the precedence chain and returns the first
// non-empty environment value, or "" if none is set.
func (p *Pool) resolveAuthToken(capabilityID, namespace string) string {
	if p.authEnvVars == nil {
		return ""
	}
	for _, name := range p.authEnvVars(capabilityID, namespace) {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Acquire returns the session for key, lazily creating it on first need.
// For non-multiplex-safe provider kinds, the returned release function
// must be called when the caller is done; the call borrows the session
// exclusively for its duration.
func (p *Pool) Acquire(ctx context.Context, key Key, capabilityID, namespace string) (*Session, func(), error) {
	p.mu.RLock()
	kc, known := p.kinds[key.Kind]
	p.mu.RUnlock()
	if !known {
		return nil, nil, fmt.Errorf("session: no factory registered for provider kind %s", key.Kind)
	}

	p.mu.Lock()
	sess, ok := p.sessions[key]
	if !ok {
		token := p.resolveAuthToken(capabilityID, namespace)
		initCtx, span := tracer.Start(ctx, "session.acquire_init",
			trace.WithAttributes(attribute.String("ccos.session_key", key.String())))
		transport, err := kc.factory(initCtx, key, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			p.mu.Unlock()
			return nil, nil, fmt.Errorf("session: creating session for %s: %w", key, err)
		}
		span.SetStatus(codes.Ok, "")
		span.End()
		sess = &Session{Key: key, Transport: transport, AuthToken: token, CreatedAt: time.Now(), lastActivity: time.Now()}
		p.sessions[key] = sess
		p.logger.Info("session created", map[string]interface{}{"key": key.String()})
	}
	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	p.mu.Unlock()

	sess.Touch()

	if kc.multiplexSafe {
		return sess, func() {}, nil
	}

	lock.Lock()
	return sess, lock.Unlock, nil
}

// Teardown removes and discards the session for key, if any. Intended
// for explicit pool lifecycle transitions ("teardown per kind"); the
// idle-sweeper eviction path itself is out of scope.
func (p *Pool) Teardown(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, key)
	delete(p.locks, key)
}

// TeardownAll clears every pooled session, used on process shutdown.
func (p *Pool) TeardownAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[Key]*Session)
	p.locks = make(map[Key]*sync.Mutex)
}
