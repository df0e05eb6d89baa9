package discovery

import (
	"sort"
	"strings"

	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/plan"
)

// actionVerbs is the small lexicon of action verbs the semantic scorer
// reasons about (spec.md §4.9). The need extractor in package
// orchestrator keeps its own, shorter list (actionVerbLexicon).
var actionVerbs = []string{"list", "get", "retrieve", "create", "update", "delete", "search", "filter", "assign", "fetch", "query", "remove"}

func containsVerb(text string, verb string) bool {
	return strings.Contains(strings.ToLower(text), verb)
}

func verbsIn(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, v := range actionVerbs {
		if strings.Contains(lower, v) {
			found = append(found, v)
		}
	}
	return found
}

// tokenize splits a capability class into lowercase tokens of length >1,
// the exact rule spec.md §4.9's token-based match names.
func tokenize(class string) []string {
	fields := strings.FieldsFunc(class, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

// tokenizeText splits free text (names, descriptions, rationale) on any
// non-alphanumeric rune, unlike tokenize which only splits dotted
// capability-class labels.
func tokenizeText(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

// manifestText concatenates the fields the token and semantic matchers
// search over.
func manifestText(m *manifest.CapabilityManifest) string {
	return strings.ToLower(m.ID + " " + m.Name + " " + m.Description)
}

// matchesAllTokens reports whether every token appears in m's
// id+name+description concatenation.
func matchesAllTokens(tokens []string, m *manifest.CapabilityManifest) bool {
	text := manifestText(m)
	for _, t := range tokens {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// keywordOverlapScore scores the overlap between need-derived tokens
// and a target text, normalised to [0,1] by the number of need tokens.
func keywordOverlapScore(needTokens []string, text string) float64 {
	if len(needTokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range needTokens {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(needTokens))
}

// semanticScore computes the description-based and name-based scores in
// [0,1] for one manifest against a need, applying the action-verb
// mismatch penalty: a need to "filter" cannot match a manifest that
// "assigns" even when they share nouns (spec.md §4.9).
func semanticScore(need plan.CapabilityNeed, m *manifest.CapabilityManifest) (descriptionScore, nameScore float64) {
	tokens := tokenize(need.CapabilityClass)
	rationaleTokens := tokenizeText(need.Rationale)
	allTokens := append(append([]string{}, tokens...), rationaleTokens...)

	descriptionScore = keywordOverlapScore(allTokens, m.Description)
	nameScore = keywordOverlapScore(allTokens, m.Name)

	// Action-verb awareness: a need whose rationale names an action verb
	// (e.g. "filter") can never match a manifest whose own name/
	// description only names a different action verb (e.g. "assign"),
	// even when they share nouns — this vetoes the whole match rather
	// than just discounting one score (spec.md §4.9).
	needVerbs := verbsIn(need.Rationale)
	manifestVerbs := verbsIn(m.Name + " " + m.Description)
	if len(needVerbs) > 0 && len(manifestVerbs) > 0 && !verbSetsOverlap(needVerbs, manifestVerbs) {
		return 0, 0
	}
	return descriptionScore, nameScore
}

func verbSetsOverlap(a, b []string) bool {
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

// normaliseKey lowercases and collapses hyphens into underscores so
// "user-id" and "user_id" compare equal (spec.md §4.9's compatibility
// check).
func normaliseKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

// IsCompatible reports whether m's declared schemas can satisfy need:
// every required input must be a subset of m's declared input keys, and
// expected outputs must overlap m's declared outputs. A manifest that
// declares no schema on an axis is treated as unconstrained on that
// axis — there is nothing to check compatibility against, so it passes
// vacuously.
func IsCompatible(need plan.CapabilityNeed, m *manifest.CapabilityManifest) bool {
	if len(need.RequiredInputs) > 0 && m.InputSchema != nil && m.InputSchema.Fields != nil {
		declared := map[string]bool{}
		for k := range m.InputSchema.Fields {
			declared[normaliseKey(k)] = true
		}
		for _, in := range need.RequiredInputs {
			if !declared[normaliseKey(in)] {
				return false
			}
		}
	}
	if len(need.ExpectedOutputs) > 0 && m.OutputSchema != nil && m.OutputSchema.Fields != nil {
		declaredOut := map[string]bool{}
		for k := range m.OutputSchema.Fields {
			declaredOut[normaliseKey(k)] = true
		}
		overlap := false
		for _, out := range need.ExpectedOutputs {
			if declaredOut[normaliseKey(out)] {
				overlap = true
				break
			}
		}
		if !overlap {
			return false
		}
	}
	return true
}

// isIncomplete reports whether a manifest is tagged incomplete in its
// metadata, in which case a match is returned as Incomplete rather than
// Found (spec.md §4.9 edge case).
func isIncomplete(m *manifest.CapabilityManifest) bool {
	return m.Metadata != nil && m.Metadata["status"] == "incomplete"
}

// outcomeFor builds a Result for a matched manifest, applying the
// incomplete-status edge case.
func outcomeFor(m *manifest.CapabilityManifest, tier Tier, score float64, reason string) Result {
	if isIncomplete(m) {
		return Result{Outcome: OutcomeIncomplete, Manifest: m, Tier: tier, Score: score, Reason: reason}
	}
	return Result{Outcome: OutcomeFound, Manifest: m, Tier: tier, Score: score, Reason: reason}
}

// sortedByID returns manifests ordered by id, the deterministic
// iteration order tie-breaking depends on (spec.md §4.9: "lexicographically
// smallest id wins").
func sortedByID(manifests []*manifest.CapabilityManifest) []*manifest.CapabilityManifest {
	out := append([]*manifest.CapabilityManifest{}, manifests...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
