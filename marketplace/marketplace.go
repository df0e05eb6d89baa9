package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ccos-project/ccos-core/ccoserr"
	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/executor"
	"github.com/ccos-project/ccos-core/isolation"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/schema"
	"github.com/ccos-project/ccos-core/session"
)

var tracer = otel.Tracer("github.com/ccos-project/ccos-core/marketplace")

// MissingCapabilityResolver is invoked on an execute_capability miss;
// it may attempt to resolve the id through an external process and
// return a manifest, or return an error (typically wrapping
// ccoserr.UnknownCapability) if it cannot.
type MissingCapabilityResolver func(ctx context.Context, id string) (*manifest.CapabilityManifest, error)

// CatalogService receives every successful registration/update/removal
// for indexing, refreshed on demand. Attaching one is optional.
type CatalogService interface {
	OnRegistered(m *manifest.CapabilityManifest)
	OnUpdated(old, new *manifest.CapabilityManifest)
	OnRemoved(id string)
	Refresh()
}

// ResourceMonitor samples current resource usage for the isolation
// policy's resource-constraint gate.
type ResourceMonitor func() isolation.Reading

// Marketplace is the central coordinator of capability registration,
// lookup, and execution.
type Marketplace struct {
	store     *Store
	policy    *isolation.Policy
	executors *executor.Registry
	sessions  *session.Pool
	emitter   *chain.Emitter

	resourceMonitor ResourceMonitor
	missingResolver MissingCapabilityResolver
	catalog         CatalogService

	namespace     string
	schemaConfig  schema.Config
	logger        ccoslog.Logger
}

// Option configures a Marketplace at construction time.
type Option func(*Marketplace)

func WithPolicy(p *isolation.Policy) Option { return func(m *Marketplace) { m.policy = p } }
func WithResourceMonitor(rm ResourceMonitor) Option {
	return func(m *Marketplace) { m.resourceMonitor = rm }
}
func WithMissingResolver(r MissingCapabilityResolver) Option {
	return func(m *Marketplace) { m.missingResolver = r }
}
func WithCatalog(c CatalogService) Option { return func(m *Marketplace) { m.catalog = c } }
func WithNamespace(ns string) Option       { return func(m *Marketplace) { m.namespace = ns } }
func WithSchemaConfig(cfg schema.Config) Option {
	return func(m *Marketplace) { m.schemaConfig = cfg }
}

// New builds a Marketplace wired to its supporting components and an
// empty store of its own. All of executors/sessions/emitter are
// required; the rest are optional.
func New(executors *executor.Registry, sessions *session.Pool, emitter *chain.Emitter, logger ccoslog.Logger, opts ...Option) *Marketplace {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	m := &Marketplace{
		store:        NewStore(),
		executors:    executors,
		sessions:     sessions,
		emitter:      emitter,
		schemaConfig: schema.DefaultConfig(),
		logger:       logger.WithComponent("marketplace"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterLocalCapability builds a Local-provider manifest and registers
// it: atomic insert-if-absent-then-emit-audit; a duplicate id is a
// silent no-op logged at debug.
func (mk *Marketplace) RegisterLocalCapability(id, name, description string, handler manifest.LocalHandler, effects []string) {
	m := &manifest.CapabilityManifest{
		ID:          id,
		Name:        name,
		Description: description,
		Version:     manifest.ParseVersion("1.0.0"),
		Provider:    manifest.LocalProvider{Handler: handler},
		Effects:     manifest.NormalizeEffects(manifest.ProviderLocal, effects),
		EffectClass: effectClass(effects),
		Metadata:    map[string]string{},
	}
	mk.RegisterCapabilityManifest(m)
}

func effectClass(effects []string) string {
	if len(effects) == 0 {
		return "pure"
	}
	return "effectful"
}

// RegisterCapabilityManifest registers a manifest with the same
// idempotency as RegisterLocalCapability.
func (mk *Marketplace) RegisterCapabilityManifest(m *manifest.CapabilityManifest) {
	var registered bool
	mk.store.withLock(func(manifests map[string]*manifest.CapabilityManifest) {
		if _, exists := manifests[m.ID]; exists {
			return
		}
		manifests[m.ID] = m
		registered = true
		mk.emitter.EmitRegistered(m.ID, map[string]interface{}{"name": m.Name, "version": m.Version.String()})
	})
	if !registered {
		mk.logger.Debug("register: duplicate id, no-op", map[string]interface{}{"id": m.ID})
		return
	}
	if mk.catalog != nil {
		mk.catalog.OnRegistered(m)
	}
}

// RemoveCapability removes id if present, emitting audit on removal.
func (mk *Marketplace) RemoveCapability(id string) {
	var removed bool
	mk.store.withLock(func(manifests map[string]*manifest.CapabilityManifest) {
		if _, exists := manifests[id]; !exists {
			return
		}
		delete(manifests, id)
		removed = true
		mk.emitter.EmitRemoved(id, nil)
	})
	if removed && mk.catalog != nil {
		mk.catalog.OnRemoved(id)
	}
}

// UpdateCapability compares versions, detects breakages, and either
// rejects (breaking + !force), replaces, or registers-as-new when the
// id is absent.
func (mk *Marketplace) UpdateCapability(newManifest *manifest.CapabilityManifest, force bool) error {
	var (
		updateErr error
		updated   bool
		oldCopy   *manifest.CapabilityManifest
	)

	mk.store.withLock(func(manifests map[string]*manifest.CapabilityManifest) {
		old, exists := manifests[newManifest.ID]
		if !exists {
			manifests[newManifest.ID] = newManifest
			updated = true
			mk.emitter.EmitRegistered(newManifest.ID, map[string]interface{}{"name": newManifest.Name, "version": newManifest.Version.String()})
			return
		}

		breakages := manifest.DetectBreakingChanges(old, newManifest)
		cmp := manifest.Compare(old.Version, newManifest.Version)
		breaking := manifest.IsMajorBump(old.Version, newManifest.Version) || len(breakages) > 0

		if breaking && !force {
			updateErr = ccoserr.New(ccoserr.BreakingChange, newManifest.ID,
				fmt.Sprintf("update from %s to %s is breaking and force was not set", old.Version, newManifest.Version))
			updateErr.(*ccoserr.Error).Breakages = breakages
			return
		}

		oldVersion := old.Version
		newManifest.PreviousVersion = &oldVersion
		newManifest.VersionHistory = append([]manifest.VersionHistoryEntry{}, old.VersionHistory...)
		newManifest.AppendVersionHistory(oldVersion, breakages, time.Now())
		oldCopy = old
		manifests[newManifest.ID] = newManifest
		updated = true

		mk.emitter.EmitUpdated(newManifest.ID, oldVersion.String(), newManifest.Version.String(), breakages, versionCompareTag(cmp))
	})

	if updateErr != nil {
		return updateErr
	}
	if updated && mk.catalog != nil {
		if oldCopy != nil {
			mk.catalog.OnUpdated(oldCopy, newManifest)
		} else {
			mk.catalog.OnRegistered(newManifest)
		}
	}
	return nil
}

func versionCompareTag(cmp manifest.CompareOutcome) string {
	switch cmp.Result {
	case manifest.CompareLess:
		return "older"
	case manifest.CompareGreater:
		return "newer"
	default:
		return "equal"
	}
}

// ExecuteCapability is the hot path of the execute_capability
// contract: isolation gate, resource gate, manifest lookup (with
// missing-capability resolution), input envelope normalisation, input
// schema validation, executor dispatch, output schema validation, and a
// post-execution resource re-check.
func (mk *Marketplace) ExecuteCapability(ctx context.Context, id string, inputs interface{}) (interface{}, error) {
	decision := isolation.Validate(mk.policy, id, time.Now())
	if !decision.Allowed {
		err := ccoserr.New(ccoserr.AccessDenied, id, decision.Reason)
		mk.emitter.EmitCall(id, "", inputs, nil, nil, nil, err)
		return nil, err
	}

	if violations := mk.checkResources(); isolation.HasHardViolation(violations) {
		err := ccoserr.Newf(ccoserr.ResourceViolation, id, "hard resource violation before execution: %v", violations)
		mk.emitter.EmitCall(id, "", inputs, nil, nil, nil, err)
		return nil, err
	} else if len(violations) > 0 {
		mk.logger.Warn("soft resource violation before execution", map[string]interface{}{"id": id, "violations": fmt.Sprintf("%v", violations)})
	}

	m, ok := mk.store.Get(id)
	if !ok {
		if mk.missingResolver != nil {
			resolved, err := mk.missingResolver(ctx, id)
			if err != nil {
				lookupErr := ccoserr.New(ccoserr.UnknownCapability, id, err.Error())
				mk.emitter.EmitCall(id, "", inputs, nil, nil, nil, lookupErr)
				return nil, lookupErr
			}
			m = resolved
		} else {
			lookupErr := ccoserr.New(ccoserr.UnknownCapability, id, "no manifest registered and no missing-capability resolver configured")
			mk.emitter.EmitCall(id, "", inputs, nil, nil, nil, lookupErr)
			return nil, lookupErr
		}
	}

	normalized := normalizeInputEnvelope(inputs)

	if m.InputSchema != nil {
		if verr := schema.Validate(normalized, m.InputSchema, mk.schemaConfig, schema.BoundaryInput); verr != nil {
			verr.CapabilityID = id
			mk.emitter.EmitCall(id, "", normalized, nil, nil, nil, verr)
			return nil, verr
		}
	}

	execCtx := &executor.Context{
		CapabilityID: id,
		Metadata:     m.Metadata,
		Sessions:     mk.sessions,
		Namespace:    mk.namespace,
		Logger:       mk.logger,
	}

	execSpanCtx, span := tracer.Start(ctx, "marketplace.execute_capability",
		trace.WithAttributes(
			attribute.String("ccos.capability_id", id),
			attribute.String("ccos.provider", string(m.Provider.Kind())),
		),
	)
	start := time.Now()
	result, execErr := mk.executors.Execute(execSpanCtx, m.Provider, normalized, execCtx)
	duration := time.Since(start)
	durationMs := duration.Milliseconds()

	if execErr != nil {
		wrapped := wrapExecutionError(id, execErr)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		span.End()
		mk.emitter.EmitCall(id, "", normalized, nil, nil, &durationMs, wrapped)
		return nil, wrapped
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	if m.OutputSchema != nil {
		if verr := schema.Validate(result, m.OutputSchema, mk.schemaConfig, schema.BoundaryOutput); verr != nil {
			verr.CapabilityID = id
			mk.emitter.EmitCall(id, "", normalized, result, nil, &durationMs, verr)
			return nil, verr
		}
	}

	if violations := mk.checkResources(); isolation.HasHardViolation(violations) {
		err := ccoserr.Newf(ccoserr.ResourceViolation, id, "hard resource violation after execution: %v", violations)
		mk.emitter.EmitCall(id, "", normalized, result, nil, &durationMs, err)
		return nil, err
	} else if len(violations) > 0 {
		mk.logger.Warn("soft resource violation after execution", map[string]interface{}{"id": id, "violations": fmt.Sprintf("%v", violations)})
	}

	mk.emitter.EmitCall(id, "", normalized, result, nil, &durationMs, nil)
	return result, nil
}

// wrapExecutionError keeps a ResourceViolation (an open circuit breaker)
// as that kind and classifies other executor errors into the error
// taxonomy's distinct timeout/cancellation kinds before falling back
// to ExecutorFailure, so a deadline or a cancelled request surfaces
// differently than a genuine dispatch failure.
func wrapExecutionError(id string, execErr error) *ccoserr.Error {
	var cerr *ccoserr.Error
	switch {
	case errors.As(execErr, &cerr) && cerr.Kind == ccoserr.ResourceViolation:
		return ccoserr.New(ccoserr.ResourceViolation, id, execErr.Error())
	case errors.Is(execErr, context.DeadlineExceeded):
		return ccoserr.New(ccoserr.ExecutionTimeout, id, execErr.Error())
	case errors.Is(execErr, context.Canceled):
		return ccoserr.New(ccoserr.Cancelled, id, execErr.Error())
	default:
		return ccoserr.New(ccoserr.ExecutorFailure, id, execErr.Error())
	}
}

// Get returns the manifest for id, if registered.
func (mk *Marketplace) Get(id string) (*manifest.CapabilityManifest, bool) {
	return mk.store.Get(id)
}

func (mk *Marketplace) checkResources() []isolation.Violation {
	if mk.policy == nil || mk.policy.Resources == nil || mk.resourceMonitor == nil {
		return nil
	}
	return isolation.CheckResources(mk.policy.Resources, mk.resourceMonitor())
}

// normalizeInputEnvelope unwraps a single-element list wrapping a map
// into the map itself, smoothing over calling-convention differences
// without affecting schema validation.
func normalizeInputEnvelope(inputs interface{}) interface{} {
	list, ok := inputs.([]interface{})
	if !ok || len(list) != 1 {
		return inputs
	}
	if _, isMap := list[0].(map[string]interface{}); isMap {
		return list[0]
	}
	return inputs
}
