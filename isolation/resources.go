package isolation

import (
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v3/mem"
)

// Enforcement controls what a constraint violation does to the call.
type Enforcement string

const (
	EnforcementHard Enforcement = "hard" // deny
	EnforcementSoft Enforcement = "soft" // warn and continue
)

// Limit is a quantitative cap on one resource with its enforcement level.
type Limit struct {
	Max         float64
	Enforcement Enforcement
}

// ResourceConstraints names quantitative limits per resource type. GPU,
// CO2 and energy readings have no in-process instrumentation available
// to this core and are left as caller-supplied placeholders the monitor
// simply compares against (spec.md §9 sign-off).
type ResourceConstraints struct {
	MemoryBytes   *Limit
	GPUMemory     *Limit
	GPUUtilPct    *Limit
	CO2Grams      *Limit
	EnergyKWh     *Limit
	Custom        map[string]Limit
}

// Reading is a point-in-time sample of resource usage to compare against
// a ResourceConstraints set.
type Reading struct {
	MemoryBytes float64
	GPUMemory   float64
	GPUUtilPct  float64
	CO2Grams    float64
	EnergyKWh   float64
	Custom      map[string]float64
}

// Violation records one resource limit being exceeded.
type Violation struct {
	Resource    string
	Observed    float64
	Max         float64
	Enforcement Enforcement
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: observed %.2f exceeds limit %.2f (%s)", v.Resource, v.Observed, v.Max, v.Enforcement)
}

// CheckResources compares a reading against constraints and returns every
// violated limit, in a stable order. Callers abort on any hard violation
// and log-and-continue on soft ones, per spec.md §4.7's execute_capability
// contract.
func CheckResources(rc *ResourceConstraints, reading Reading) []Violation {
	if rc == nil {
		return nil
	}
	var violations []Violation
	check := func(name string, limit *Limit, observed float64) {
		if limit == nil {
			return
		}
		if observed > limit.Max {
			violations = append(violations, Violation{Resource: name, Observed: observed, Max: limit.Max, Enforcement: limit.Enforcement})
		}
	}

	check("memory_bytes", rc.MemoryBytes, reading.MemoryBytes)
	check("gpu_memory", rc.GPUMemory, reading.GPUMemory)
	check("gpu_util_pct", rc.GPUUtilPct, reading.GPUUtilPct)
	check("co2_grams", rc.CO2Grams, reading.CO2Grams)
	check("energy_kwh", rc.EnergyKWh, reading.EnergyKWh)

	customNames := make([]string, 0, len(rc.Custom))
	for name := range rc.Custom {
		customNames = append(customNames, name)
	}
	sort.Strings(customNames)
	for _, name := range customNames {
		l := rc.Custom[name]
		check(name, &l, reading.Custom[name])
	}

	return violations
}

// HasHardViolation reports whether any violation in the set is a hard
// (deny) violation.
func HasHardViolation(violations []Violation) bool {
	for _, v := range violations {
		if v.Enforcement == EnforcementHard {
			return true
		}
	}
	return false
}

// SampleMemoryReading captures a real process-visible memory reading
// using gopsutil, the only resource axis this core instruments for real;
// GPU/CO2/energy remain caller-supplied placeholders.
func SampleMemoryReading() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("isolation: sampling memory: %w", err)
	}
	return float64(vm.Used), nil
}
