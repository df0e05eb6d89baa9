// Package discovery implements the Discovery Engine: a strictly ordered
// resolver chain (marketplace search -> external tool-registry search ->
// deferred synthesis) that matches a plan.CapabilityNeed to a concrete
// manifest, plus the re-planning hint emitter consumed on resolution
// failure (spec.md §4.9, §4.12).
//
// Grounded on orchestration/tiered_capability_provider.go's tiered
// fallback shape (cheap tier first, escalate only when it is
// insufficient, fall back rather than abort on tier failure) and
// orchestration/catalog.go's capability summarisation idiom.
package discovery

import "github.com/ccos-project/ccos-core/manifest"

// Outcome is the closed set of resolution results.
type Outcome string

const (
	OutcomeFound      Outcome = "found"
	OutcomeIncomplete Outcome = "incomplete"
	OutcomeNotFound   Outcome = "not_found"
)

// Tier names the resolver stage that produced a Result, used only for
// observability (audit metadata, resolution-summary counts).
type Tier string

const (
	TierMarketplaceExact     Tier = "marketplace_exact"
	TierMarketplaceToken     Tier = "marketplace_token"
	TierMarketplaceSemantic  Tier = "marketplace_semantic"
	TierExternalRegistry     Tier = "external_registry"
	TierDeferredSynthesis    Tier = "deferred_synthesis"
)

// Result is what Resolve returns for one CapabilityNeed.
type Result struct {
	Outcome  Outcome
	Manifest *manifest.CapabilityManifest // set when Outcome is Found or Incomplete
	Tier     Tier
	Score    float64
	Reason   string
}
