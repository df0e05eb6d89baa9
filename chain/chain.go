// Package chain implements the Causal Chain Append Interface: a single-
// writer-per-mutation, strictly append-only log of capability lifecycle
// actions, with per-capability/per-function metric aggregation and the
// wm_ingest_latency histogram.
//
// The append path follows the teacher's single-mutex "hold the lock
// until the audit call returns" discipline (seen in core/redis_registry.go's
// state-mutex usage); the histogram is grounded on
// r3e-network/service_layer's prometheus/client_golang usage, since the
// teacher itself has no direct Prometheus dependency (it speaks to
// metrics through its own Telemetry interface instead).
package chain

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ActionType is the (open) taxonomy of causal-chain action kinds. Only
// the subset named in spec.md §3/§4.6 is enumerated as constants; the
// Type field accepts any string so a full taxonomy can grow without
// breaking the append contract.
type ActionType string

const (
	ActionCapabilityRegistered         ActionType = "CapabilityRegistered"
	ActionCapabilityRemoved            ActionType = "CapabilityRemoved"
	ActionCapabilityUpdated            ActionType = "CapabilityUpdated"
	ActionCapabilityDiscoveryCompleted ActionType = "CapabilityDiscoveryCompleted"
	ActionCapabilityCall               ActionType = "CapabilityCall"
	ActionPlanCreated                  ActionType = "PlanCreated"
	ActionPlanExecuted                 ActionType = "PlanExecuted"
	ActionSessionCreated               ActionType = "SessionCreated"
)

// Action is one append-only causal-chain record.
type Action struct {
	ID             string
	SessionID      string // optional
	IntentID       string
	PlanID         string
	Type           ActionType
	ParentActionID string // optional
	FunctionName   string // optional
	Input          interface{} // optional, value snapshot
	Result         interface{} // optional, value snapshot
	Cost           *float64    // optional
	DurationMs     *int64      // optional
	Timestamp      int64       // epoch seconds
	Metadata       map[string]interface{}

	// capabilityID is carried out-of-band from Metadata for convenience
	// in metric aggregation; callers populate it via NewAction.
	capabilityID string
}

// NewAction builds an Action with a fresh UUID and the current
// timestamp, the shape every caller (audit emitter, marketplace,
// orchestrator) should use rather than constructing Action literals by
// hand.
func NewAction(actionType ActionType, capabilityID string) Action {
	return Action{
		ID:           uuid.NewString(),
		Type:         actionType,
		Timestamp:    time.Now().Unix(),
		Metadata:     map[string]interface{}{},
		capabilityID: capabilityID,
	}
}

// CapabilityID exposes the capability id the action was built for.
func (a Action) CapabilityID() string { return a.capabilityID }

// FunctionMetrics aggregates outcomes for one (capability id, function
// name) pair.
type FunctionMetrics struct {
	Count               int64
	SuccessCount        int64
	FailureCount        int64
	CumulativeCost      float64
	CumulativeDurationMs int64
}

// AvgDurationMs is the running average call duration.
func (m FunctionMetrics) AvgDurationMs() float64 {
	if m.Count == 0 {
		return 0
	}
	return float64(m.CumulativeDurationMs) / float64(m.Count)
}

// ReliabilityScore is successes / total calls.
func (m FunctionMetrics) ReliabilityScore() float64 {
	if m.Count == 0 {
		return 1 // no data yet: optimistic default, never penalises a new capability
	}
	return float64(m.SuccessCount) / float64(m.Count)
}

type metricsKey struct {
	capabilityID string
	functionName string
}

// histogramBucketsMs are the exact bucket boundaries named in spec.md §4.6.
var histogramBucketsMs = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Chain is the append-only causal chain.
type Chain struct {
	mu      sync.Mutex // single-writer-per-mutation: held for the whole append
	actions []Action

	metrics map[metricsKey]*FunctionMetrics

	// costByIntent/costByPlan/costByCapability track cumulative cost
	// grouped independently, per spec.md §4.6.
	costByIntent     map[string]float64
	costByPlan       map[string]float64
	costByCapability map[string]float64

	ingestLatency prometheus.Histogram
}

// New builds an empty Chain. registerer is typically
// prometheus.DefaultRegisterer; pass nil to skip registration (e.g. in
// tests, where re-registering a collector across test cases would
// panic).
func New(registerer prometheus.Registerer) *Chain {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wm_ingest_latency",
		Help:    "Latency in milliseconds of causal chain action ingestion.",
		Buckets: histogramBucketsMs,
	})
	if registerer != nil {
		registerer.MustRegister(hist)
	}
	return &Chain{
		metrics:           make(map[metricsKey]*FunctionMetrics),
		costByIntent:      make(map[string]float64),
		costByPlan:        make(map[string]float64),
		costByCapability:  make(map[string]float64),
		ingestLatency:     hist,
	}
}

// Append pushes action onto the log and updates every derived metric
// atomically with the append: if Append fails (it never does for the
// in-memory arena, but the contract allows a future backing store to
// fail), no metric is updated, per spec.md §4.6's invariant.
func (c *Chain) Append(action Action) error {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.actions = append(c.actions, action)
	c.updateMetrics(action)

	c.ingestLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	return nil
}

func (c *Chain) updateMetrics(action Action) {
	capID := action.capabilityID
	if capID == "" {
		return
	}

	key := metricsKey{capabilityID: capID, functionName: action.FunctionName}
	fm, ok := c.metrics[key]
	if !ok {
		fm = &FunctionMetrics{}
		c.metrics[key] = fm
	}

	if action.Type == ActionCapabilityCall {
		fm.Count++
		if _, isFailure := action.Metadata["error"]; isFailure {
			fm.FailureCount++
		} else {
			fm.SuccessCount++
		}
	}

	if action.Cost != nil {
		fm.CumulativeCost += *action.Cost
		c.costByCapability[capID] += *action.Cost
		if action.IntentID != "" {
			c.costByIntent[action.IntentID] += *action.Cost
		}
		if action.PlanID != "" {
			c.costByPlan[action.PlanID] += *action.Cost
		}
	}
	if action.DurationMs != nil {
		fm.CumulativeDurationMs += *action.DurationMs
	}
}

// GetAllActions returns a defensive-copy snapshot of the log, ordered by
// append.
func (c *Chain) GetAllActions() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// FunctionMetricsFor returns the aggregated metrics for a (capability id,
// function name) pair.
func (c *Chain) FunctionMetricsFor(capabilityID, functionName string) FunctionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fm, ok := c.metrics[metricsKey{capabilityID: capabilityID, functionName: functionName}]; ok {
		return *fm
	}
	return FunctionMetrics{}
}

// CostByIntent, CostByPlan, CostByCapability expose the grouped cost
// trackers named in spec.md §4.6.
func (c *Chain) CostByIntent(intentID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.costByIntent[intentID]
}

func (c *Chain) CostByPlan(planID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.costByPlan[planID]
}

func (c *Chain) CostByCapability(capabilityID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.costByCapability[capabilityID]
}
