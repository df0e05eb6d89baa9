// Package isolation implements CapabilityIsolationPolicy: allow/deny glob
// matching over capability identifiers, namespace-scoped overrides, time
// constraints, and the resource-constraint gate.
//
// The pattern matcher is grounded on the teacher's core.isOriginAllowed
// (core/cors.go): plain strings.HasPrefix/HasSuffix splits rather than a
// regex engine, same "no library" idiom, generalised to the glob grammar
// named in spec.md §4.7 (exact, prefix*, *suffix, a*b split, * universal,
// and "ns.*" as a namespace-prefix form).
package isolation

import (
	"strings"
	"time"
)

// TimeConstraints gates a call to specific hours/days in a named timezone.
type TimeConstraints struct {
	AllowedHours []int // 0-23
	AllowedDays  []int // 1-7 (ISO: Monday=1 ... Sunday=7)
	Timezone     string
}

// allows reports whether t falls within the constraint. Empty
// AllowedHours/AllowedDays means "no restriction on that axis."
func (tc *TimeConstraints) allows(t time.Time) bool {
	loc := time.UTC
	if tc.Timezone != "" {
		if l, err := time.LoadLocation(tc.Timezone); err == nil {
			loc = l
		}
	}
	local := t.In(loc)

	if len(tc.AllowedHours) > 0 && !containsInt(tc.AllowedHours, local.Hour()) {
		return false
	}
	if len(tc.AllowedDays) > 0 {
		isoDay := int(local.Weekday())
		if isoDay == 0 {
			isoDay = 7 // time.Sunday == 0; spec uses 1-7 with Sunday=7
		}
		if !containsInt(tc.AllowedDays, isoDay) {
			return false
		}
	}
	return true
}

func containsInt(set []int, v int) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

// NamespacePolicy is a per-namespace override, evaluated before the
// global deny/allow lists when the capability id falls under its prefix.
type NamespacePolicy struct {
	NamespacePrefix string
	Allow           []string
	Deny            []string
	Resources       *ResourceConstraints
}

// Policy is CapabilityIsolationPolicy: allow-list, deny-list, optional
// per-namespace overrides, optional time constraints, optional resource
// constraints.
type Policy struct {
	Allow      []string
	Deny       []string
	Namespaces []NamespacePolicy
	Time       *TimeConstraints
	Resources  *ResourceConstraints
}

// Decision is the outcome of evaluating a capability id against a Policy.
type Decision struct {
	Allowed bool
	Reason  string
}

// deny and allow are small helpers to make Validate's branches read like
// the ordered algorithm in spec.md §4.7.
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }
func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

// Validate implements validate_capability_access (spec.md §4.7):
//  1. Time constraints: outside allowed hours/days -> deny.
//  2. Namespace policies: first matching namespace's allow-then-deny wins.
//  3. Global deny patterns: any match -> deny.
//  4. Global allow patterns: no match -> deny.
func Validate(policy *Policy, capabilityID string, now time.Time) Decision {
	if policy == nil {
		return allow("no policy attached")
	}

	if policy.Time != nil && !policy.Time.allows(now) {
		return deny("outside allowed time window")
	}

	for _, ns := range policy.Namespaces {
		if !matchesNamespacePrefix(ns.NamespacePrefix, capabilityID) {
			continue
		}
		if matchesAny(ns.Deny, capabilityID) {
			return deny("denied by namespace policy " + ns.NamespacePrefix)
		}
		if matchesAny(ns.Allow, capabilityID) {
			return allow("allowed by namespace policy " + ns.NamespacePrefix)
		}
		return deny("namespace policy " + ns.NamespacePrefix + " matched but no allow pattern matched")
	}

	if matchesAny(policy.Deny, capabilityID) {
		return deny("denied by global deny pattern")
	}
	if !matchesAny(policy.Allow, capabilityID) {
		return deny("no global allow pattern matched")
	}
	return allow("allowed by global allow pattern")
}

// matchesNamespacePrefix applies the "ns.*" namespace-prefix rule: a
// namespace prefix of "ns" matches both "ns" exactly and any id with the
// "ns." prefix.
func matchesNamespacePrefix(prefix, id string) bool {
	if id == prefix {
		return true
	}
	return strings.HasPrefix(id, prefix+".")
}

func matchesAny(patterns []string, id string) bool {
	for _, p := range patterns {
		if MatchesPattern(p, id) {
			return true
		}
	}
	return false
}

// MatchesPattern implements the glob grammar named in spec.md §4.7:
//   - "*" matches everything.
//   - A pattern ending in ".*" is a namespace-prefix match: "ns.*" matches
//     both "ns" and anything starting with "ns.".
//   - "<prefix>*" (wildcard elsewhere at the end): prefix match.
//   - "*<suffix>" (wildcard at the start): suffix match.
//   - "<a>*<b>" (wildcard in the middle): id must start with a and end
//     with b, without the two overlapping; the wildcard may match the
//     empty string.
//   - no wildcard: exact match.
func MatchesPattern(pattern, id string) bool {
	if pattern == "*" {
		return true
	}

	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		if matchesNamespacePrefix(prefix, id) {
			return true
		}
	}

	idx := strings.Index(pattern, "*")
	if idx == -1 {
		return pattern == id
	}

	prefix := pattern[:idx]
	suffix := pattern[idx+1:]

	if strings.Contains(suffix, "*") {
		// Only single-wildcard patterns are specified; treat any further
		// wildcard characters in the suffix as literal for robustness.
		suffix = strings.Replace(suffix, "*", "", -1)
	}

	switch {
	case prefix == "" && suffix == "":
		return true // bare "*" already handled above; defensive fallback
	case suffix == "":
		return strings.HasPrefix(id, prefix)
	case prefix == "":
		return strings.HasSuffix(id, suffix)
	default:
		return strings.HasPrefix(id, prefix) && strings.HasSuffix(id, suffix) && len(id) >= len(prefix)+len(suffix)
	}
}
