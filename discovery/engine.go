package discovery

import (
	"context"
	"fmt"

	"github.com/ccos-project/ccos-core/ccoslog"
	"github.com/ccos-project/ccos-core/chain"
	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/marketplace"
	"github.com/ccos-project/ccos-core/plan"
)

// DefaultSemanticThreshold is the acceptance threshold for both the
// marketplace semantic tier and the external-registry tier when no
// override is configured.
const DefaultSemanticThreshold = 0.35

// Engine is the Discovery Engine: a strictly ordered resolver chain
// (spec.md §4.9). Failures inside any tier are logged and the engine
// falls through to the next tier rather than aborting resolution.
type Engine struct {
	mk        *marketplace.Marketplace
	registry  ExternalRegistry
	threshold float64
	emitter   *chain.Emitter
	logger    ccoslog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithThreshold(t float64) Option          { return func(e *Engine) { e.threshold = t } }
func WithExternalRegistry(r ExternalRegistry) Option { return func(e *Engine) { e.registry = r } }
func WithEmitter(em *chain.Emitter) Option     { return func(e *Engine) { e.emitter = em } }

// New builds an Engine over mk's current manifest set.
func New(mk *marketplace.Marketplace, logger ccoslog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	e := &Engine{mk: mk, threshold: DefaultSemanticThreshold, logger: logger.WithComponent("discovery")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve matches need against the marketplace, then (if configured) an
// external tool registry, then gives up with NotFound (spec.md §4.9).
func (e *Engine) Resolve(ctx context.Context, need plan.CapabilityNeed) Result {
	if result, ok := e.tryMarketplace(need); ok {
		e.emitCompleted(need, result)
		return result
	}

	if e.registry != nil {
		if result, ok := e.tryExternalRegistry(ctx, need); ok {
			e.emitCompleted(need, result)
			return result
		}
	}

	result := Result{Outcome: OutcomeNotFound, Tier: TierDeferredSynthesis, Reason: "no marketplace or external registry match above threshold"}
	e.emitCompleted(need, result)
	return result
}

func (e *Engine) emitCompleted(need plan.CapabilityNeed, result Result) {
	if e.emitter == nil {
		return
	}
	capID := need.CapabilityClass
	if result.Manifest != nil {
		capID = result.Manifest.ID
	}
	e.emitter.EmitDiscoveryCompleted(capID, map[string]interface{}{
		"capability_class": need.CapabilityClass,
		"outcome":          string(result.Outcome),
		"tier":             string(result.Tier),
		"score":            result.Score,
	})
}

// tryMarketplace runs tier 1: exact, then token, then semantic match
// over the marketplace's current manifest snapshot.
func (e *Engine) tryMarketplace(need plan.CapabilityNeed) (result Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("marketplace search tier panicked, falling through", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
			ok = false
		}
	}()

	snapshot := sortedByID(e.mk.Snapshot())

	// 1a. Exact match.
	for _, m := range snapshot {
		if m.ID == need.CapabilityClass && IsCompatible(need, m) {
			return outcomeFor(m, TierMarketplaceExact, 1.0, "exact id match"), true
		}
	}

	// 1b. Token match.
	tokens := tokenize(need.CapabilityClass)
	if len(tokens) > 0 {
		for _, m := range snapshot {
			if matchesAllTokens(tokens, m) && IsCompatible(need, m) {
				return outcomeFor(m, TierMarketplaceToken, 1.0, "every token matched"), true
			}
		}
	}

	// 1c. Semantic match: highest combined score above threshold,
	// lexicographically smallest id breaking ties.
	var best *manifest.CapabilityManifest
	var bestScore float64
	for _, m := range snapshot {
		if !IsCompatible(need, m) {
			continue
		}
		descScore, nameScore := semanticScore(need, m)
		combined := (descScore + nameScore) / 2
		if combined >= e.threshold && combined > bestScore {
			best, bestScore = m, combined
		}
	}
	if best != nil {
		return outcomeFor(best, TierMarketplaceSemantic, bestScore, "highest-scoring semantic match above threshold"), true
	}

	return Result{}, false
}

// tryExternalRegistry runs tier 2 over the configured ExternalRegistry:
// curated overrides first, then the remote registry, scored the same
// way as the marketplace's semantic tier.
func (e *Engine) tryExternalRegistry(ctx context.Context, need plan.CapabilityNeed) (result Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("external registry tier panicked, falling through", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
			ok = false
		}
	}()

	candidates, err := e.registry.Candidates(ctx, need)
	if err != nil {
		e.logger.Warn("external registry candidate listing failed", map[string]interface{}{"error": err.Error()})
		return Result{}, false
	}

	var best *manifest.CapabilityManifest
	var bestScore float64
	for _, m := range sortedByID(candidates) {
		if !IsCompatible(need, m) {
			continue
		}
		descScore, nameScore := semanticScore(need, m)
		combined := (descScore + nameScore) / 2
		if combined >= e.threshold && combined > bestScore {
			best, bestScore = m, combined
		}
	}
	if best == nil {
		return Result{}, false
	}

	if err := e.mk.PersistManifest(e.registry.PersistDir(), best); err != nil {
		e.logger.Warn("failed to persist discovered external manifest", map[string]interface{}{"id": best.ID, "error": err.Error()})
	}

	return outcomeFor(best, TierExternalRegistry, bestScore, "highest-scoring external registry candidate above threshold"), true
}
