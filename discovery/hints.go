package discovery

import (
	"sort"
	"strings"

	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/marketplace"
)

// FoundHint is one resolved capability's prompt-ready summary: enough
// for an external arbiter to call it without re-deriving its schema
// from scratch (spec.md §4.12).
type FoundHint struct {
	ID           string
	Name         string
	Description  string
	ProviderKind manifest.ProviderKindTag
	Parameters   []string // extracted from the input schema's declared fields
	UsageHints   []string // extracted from metadata/description
}

// DiscoveryHints is the sole currency between the orchestrator's
// failure path and the external arbiter's re-plan request (spec.md
// §4.12).
type DiscoveryHints struct {
	Found            []FoundHint
	Missing          []string
	CrossSuggestions map[string][]string // missing id -> suggested found ids
}

// EmitHints classifies every id in ids against mk's current manifest
// set (Found, Incomplete treated as Found for hint purposes since both
// are callable, Missing otherwise), then for every missing id searches
// the marketplace by namespace-prefix glob for related capabilities,
// and finally computes keyword-overlap cross-suggestions between found
// and missing ids (spec.md §4.9, §4.12).
func EmitHints(mk *marketplace.Marketplace, ids []string, descriptions map[string]string) DiscoveryHints {
	hints := DiscoveryHints{CrossSuggestions: map[string][]string{}}

	for _, id := range ids {
		if m, ok := mk.Get(id); ok {
			hints.Found = append(hints.Found, buildFoundHint(m))
			continue
		}
		hints.Missing = append(hints.Missing, id)
	}

	snapshot := mk.Snapshot()
	for _, missingID := range hints.Missing {
		prefix := namespacePrefix(missingID)
		var related []string
		for _, m := range sortedByID(snapshot) {
			if m.ID == missingID {
				continue
			}
			if prefix != "" && strings.HasPrefix(m.ID, prefix+".") {
				related = append(related, m.ID)
			}
		}
		missingText := missingID
		if d, ok := descriptions[missingID]; ok && d != "" {
			missingText = missingID + " " + d
		}
		for _, found := range hints.Found {
			if keywordIDOverlap(found.ID+" "+found.Description, missingText) {
				related = appendUnique(related, found.ID)
			}
		}
		if len(related) > 0 {
			sort.Strings(related)
			hints.CrossSuggestions[missingID] = related
		}
	}

	return hints
}

func buildFoundHint(m *manifest.CapabilityManifest) FoundHint {
	hint := FoundHint{ID: m.ID, Name: m.Name, Description: m.Description, ProviderKind: m.Provider.Kind()}
	if m.InputSchema != nil && m.InputSchema.Fields != nil {
		for k := range m.InputSchema.Fields {
			hint.Parameters = append(hint.Parameters, k)
		}
		sort.Strings(hint.Parameters)
	}
	if usage, ok := m.Metadata["usage"]; ok && usage != "" {
		hint.UsageHints = append(hint.UsageHints, usage)
	}
	if m.Description != "" {
		hint.UsageHints = append(hint.UsageHints, firstSentence(m.Description))
	}
	return hint
}

func firstSentence(text string) string {
	if idx := strings.IndexByte(text, '.'); idx != -1 {
		return strings.TrimSpace(text[:idx+1])
	}
	return text
}

// namespacePrefix returns everything before the last dot of a dotted id,
// the "namespace-prefix glob" spec.md §4.9 names for related-capability
// search.
func namespacePrefix(id string) string {
	if idx := strings.LastIndex(id, "."); idx != -1 {
		return id[:idx]
	}
	return ""
}

func keywordIDOverlap(a, b string) bool {
	setA := map[string]bool{}
	for _, t := range tokenizeText(a) {
		setA[t] = true
	}
	for _, t := range tokenizeText(b) {
		if setA[t] {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
