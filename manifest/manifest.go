package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ccos-project/ccos-core/schema"
)

// Provenance records where a manifest came from and its custody history.
type Provenance struct {
	Source        string
	SourceVersion string
	ContentHash   string
	CustodyChain  []string // appended to, never replaced
	RegisteredAt  time.Time
}

// AppendCustody records a new custody event without disturbing history
// already recorded — the custody chain is append-only per spec.md §3a.
func (p *Provenance) AppendCustody(event string) {
	p.CustodyChain = append(p.CustodyChain, event)
}

// VersionHistoryEntry is one chronological entry in a manifest's version
// history. The history itself is append-only (spec.md §3 invariants).
type VersionHistoryEntry struct {
	Version     Version
	ReplacedAt  time.Time
	Breakages   []string
}

// CapabilityManifest is the unit of registration in the marketplace.
type CapabilityManifest struct {
	ID          string // dotted namespace, globally unique, immutable once registered
	Name        string
	Description string
	Version     Version
	Provider    Provider

	InputSchema  *schema.Expr // optional
	OutputSchema *schema.Expr // optional

	Provenance *Provenance // optional

	Permissions []string // scope tags
	Effects     []string // effect tags; superset-closed over provider-intrinsic effects

	Metadata map[string]string // free-form

	Domains    []string
	Categories []string

	EffectClass string // "pure" | "effectful"

	PreviousVersion *Version
	VersionHistory  []VersionHistoryEntry

	// CallableFromChain records whether this manifest may be invoked as a
	// plan step body. No component in this module sets or reads it;
	// ExecuteCapability does not consult it.
	CallableFromChain bool
}

// ProviderIntrinsicEffects returns the effects a provider kind always
// carries regardless of what the manifest author declared, so the
// marketplace can enforce the superset-closed invariant at registration.
func ProviderIntrinsicEffects(kind ProviderKindTag) []string {
	switch kind {
	case ProviderStream:
		return []string{"streaming"}
	case ProviderHTTP, ProviderOpenAPI, ProviderRemoteTool, ProviderAgentToAgent, ProviderRemoteRTFS:
		return []string{"network"}
	case ProviderSandboxed:
		return []string{"sandboxed-execution"}
	default:
		return nil
	}
}

// NormalizeEffects returns effects with every provider-intrinsic effect
// folded in, de-duplicated, so the superset-closed invariant always
// holds regardless of what the caller passed in.
func NormalizeEffects(kind ProviderKindTag, declared []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range append(append([]string{}, declared...), ProviderIntrinsicEffects(kind)...) {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// AppendVersionHistory appends a history entry, preserving chronological,
// append-only order.
func (m *CapabilityManifest) AppendVersionHistory(old Version, breakages []string, at time.Time) {
	m.VersionHistory = append(m.VersionHistory, VersionHistoryEntry{
		Version:    old,
		ReplacedAt: at,
		Breakages:  breakages,
	})
}

// CanonicalProvenance renders a human-readable provenance string suitable
// for logs and audit metadata.
func (m *CapabilityManifest) CanonicalProvenance() string {
	if m.Provenance == nil {
		return fmt.Sprintf("%s@%s (no provenance)", m.ID, m.Version)
	}
	return fmt.Sprintf("%s@%s from %s (hash=%s, registered=%s)",
		m.ID, m.Version, m.Provenance.Source, m.Provenance.ContentHash,
		m.Provenance.RegisteredAt.UTC().Format(time.RFC3339))
}

// Category classifies where a manifest's definition originated.
type Category string

const (
	CategorySystem     Category = "System"
	CategoryUser       Category = "User"
	CategoryGenerated  Category = "Generated"
	CategoryDiscovered Category = "Discovered"
)

// InferSourceCategory maps a manifest's provider kind and metadata hints
// to one of {System, User, Generated, Discovered}.
//
// Metadata key "source_category", if present, always wins (an explicit
// author override). Otherwise: capabilities synthesised by the plan
// orchestrator (provenance source "orchestrator") are Generated;
// capabilities loaded via discovery's external-registry tier or
// Marketplace.LoadDiscovered (provenance source "discovery") are
// Discovered; Local/Native/Plugin providers with
// no provenance are System (compiled-in); everything else is User.
func InferSourceCategory(m *CapabilityManifest) Category {
	if m.Metadata != nil {
		if v, ok := m.Metadata["source_category"]; ok {
			switch Category(v) {
			case CategorySystem, CategoryUser, CategoryGenerated, CategoryDiscovered:
				return Category(v)
			}
		}
	}
	if m.Provenance != nil {
		switch m.Provenance.Source {
		case "orchestrator":
			return CategoryGenerated
		case "discovery":
			return CategoryDiscovered
		}
	}
	switch m.Provider.Kind() {
	case ProviderLocal, ProviderNative, ProviderPlugin:
		if m.Provenance == nil {
			return CategorySystem
		}
	}
	return CategoryUser
}

// Version is a parsed semantic version (MAJOR.MINOR.PATCH).
type Version struct {
	Major, Minor, Patch int
	raw                 string
	valid               bool
}

func (v Version) String() string {
	if !v.valid && v.raw != "" {
		return v.raw
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a MAJOR.MINOR.PATCH string. An unparseable string
// yields a Version with valid=false rather than an error — callers
// compare such versions conservatively as "equal" with a warning
// surfaced upstream (spec.md §4.2).
func ParseVersion(s string) Version {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return Version{raw: s, valid: false}
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	patch, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Version{raw: s, valid: false}
	}
	return Version{Major: major, Minor: minor, Patch: patch, raw: s, valid: true}
}

// CompareResult is the outcome of comparing two versions.
type CompareResult int

const (
	CompareLess CompareResult = iota - 1
	CompareEqual
	CompareGreater
)

// CompareOutcome pairs the ordering with whether it was a real comparison
// or the conservative unparseable fallback.
type CompareOutcome struct {
	Result  CompareResult
	Warning string // non-empty when either version failed to parse
}

// Compare orders a against b left-to-right over MAJOR.MINOR.PATCH.
// Unparseable input on either side yields CompareEqual with a warning,
// per spec.md §4.2's conservative policy.
func Compare(a, b Version) CompareOutcome {
	if !a.valid || !b.valid {
		return CompareOutcome{Result: CompareEqual, Warning: fmt.Sprintf("unparseable version(s): %q, %q — treating as equal", a.String(), b.String())}
	}
	if a.Major != b.Major {
		return CompareOutcome{Result: cmp(a.Major, b.Major)}
	}
	if a.Minor != b.Minor {
		return CompareOutcome{Result: cmp(a.Minor, b.Minor)}
	}
	return CompareOutcome{Result: cmp(a.Patch, b.Patch)}
}

func cmp(x, y int) CompareResult {
	switch {
	case x < y:
		return CompareLess
	case x > y:
		return CompareGreater
	default:
		return CompareEqual
	}
}

// IsMajorBump reports whether b is a major-version increase over a, or
// either version failed to parse (the conservative BreakingChange path
// named in spec.md §4.2: "any ... MAJOR or parse-failure comparison
// constitutes a breaking update").
func IsMajorBump(a, b Version) bool {
	if !a.valid || !b.valid {
		return true
	}
	return b.Major > a.Major
}

// DetectBreakingChanges compares two manifests of the same capability id
// and returns the list of breakage reasons. An empty slice means no
// breakage was detected by schema inspection; combined with IsMajorBump
// it decides whether update_capability treats the change as breaking.
func DetectBreakingChanges(old, new *CapabilityManifest) []string {
	var reasons []string

	reasons = append(reasons, diffRequiredFields(old.InputSchema, new.InputSchema, "input")...)
	reasons = append(reasons, diffOutputWidening(old.OutputSchema, new.OutputSchema)...)

	if old.Provider.Kind() != new.Provider.Kind() {
		reasons = append(reasons, fmt.Sprintf("provider kind changed from %s to %s", old.Provider.Kind(), new.Provider.Kind()))
	}

	for _, perm := range old.Permissions {
		if !containsStr(new.Permissions, perm) {
			reasons = append(reasons, fmt.Sprintf("permission %q removed", perm))
		}
	}

	return reasons
}

// diffRequiredFields flags required input fields that disappeared or
// became required where they were previously optional (input schema
// narrowing — callers who worked before may now fail validation).
func diffRequiredFields(old, new *schema.Expr, boundary string) []string {
	if old == nil || new == nil {
		return nil
	}
	if old.Kind != schema.KindMap || new.Kind != schema.KindMap {
		return nil
	}
	var reasons []string
	for _, req := range old.Required {
		if _, stillPresent := new.Fields[req]; !stillPresent {
			reasons = append(reasons, fmt.Sprintf("%s schema: required field %q removed", boundary, req))
		}
	}
	for _, req := range new.Required {
		if !containsStr(old.Required, req) {
			if _, existedBefore := old.Fields[req]; existedBefore {
				reasons = append(reasons, fmt.Sprintf("%s schema: field %q narrowed from optional to required", boundary, req))
			}
		}
	}
	return reasons
}

// diffOutputWidening flags output schema changes that remove a field a
// caller may have depended on (widening in a way that drops guarantees).
func diffOutputWidening(old, new *schema.Expr) []string {
	if old == nil || new == nil {
		return nil
	}
	if old.Kind != schema.KindMap || new.Kind != schema.KindMap {
		return nil
	}
	var reasons []string
	for field := range old.Fields {
		if _, stillPresent := new.Fields[field]; !stillPresent {
			reasons = append(reasons, fmt.Sprintf("output schema: field %q removed", field))
		}
	}
	return reasons
}

func containsStr(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
