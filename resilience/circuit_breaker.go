// Package resilience provides a per-capability circuit breaker and
// retry-with-backoff, wired as a decorator over the network-bound
// executors (HTTP, OpenAPI, Remote-Tool, Agent-to-Agent, Remote-RTFS,
// Registry)
// rather than as a library callers must remember to reach for.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ccos-project/ccos-core/ccoserr"
	"github.com/ccos-project/ccos-core/ccoslog"
)

// State is the circuit breaker's current disposition.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config configures one CircuitBreaker's error-rate thresholds and
// recovery behavior.
type Config struct {
	Name             string
	ErrorThreshold   float64       // fraction of failures in WindowSize that opens the circuit
	VolumeThreshold  int           // minimum calls observed before ErrorThreshold is evaluated
	SleepWindow      time.Duration // time spent open before probing half-open
	HalfOpenRequests int           // probes admitted per half-open round; the round's outcome is decided after this many
	SuccessThreshold float64       // fraction of half-open successes needed to close
	WindowSize       time.Duration // rolling window the error rate is computed over
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 5,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
	}
}

type outcome struct {
	at      time.Time
	success bool
}

// CircuitBreaker is a single named circuit, safe for concurrent use.
type CircuitBreaker struct {
	cfg    Config
	logger ccoslog.Logger

	mu             sync.Mutex
	state          State
	stateChangedAt time.Time
	history        []outcome
	halfOpenInUse  int
	halfOpenOK     int
	halfOpenFail   int
}

// New builds a CircuitBreaker in the closed state.
func New(cfg Config, logger ccoslog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = ccoslog.NoOp()
	}
	return &CircuitBreaker{
		cfg:            cfg,
		logger:         logger.WithComponent("resilience/circuit_breaker"),
		state:          StateClosed,
		stateChangedAt: time.Now(),
	}
}

// ErrCircuitOpen is returned when a call is rejected because the
// circuit is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// Allow reports whether a call may proceed, reserving a half-open slot
// if the circuit has just transitioned to probing.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.pruneLocked(time.Now())

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.stateChangedAt) >= cb.cfg.SleepWindow {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenInUse = 1
			return true
		}
		return false
	default: // StateHalfOpen
		if cb.halfOpenInUse < cb.cfg.HalfOpenRequests {
			cb.halfOpenInUse++
			return true
		}
		return false
	}
}

// Record reports the outcome of a call previously admitted by Allow.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	cb.history = append(cb.history, outcome{at: now, success: success})

	if cb.state == StateHalfOpen {
		if success {
			cb.halfOpenOK++
		} else {
			cb.halfOpenFail++
		}
		total := cb.halfOpenOK + cb.halfOpenFail
		if total >= cb.cfg.HalfOpenRequests {
			if float64(cb.halfOpenOK)/float64(total) >= cb.cfg.SuccessThreshold {
				cb.transitionLocked(StateClosed)
			} else {
				cb.transitionLocked(StateOpen)
			}
			cb.halfOpenInUse, cb.halfOpenOK, cb.halfOpenFail = 0, 0, 0
		}
		return
	}

	cb.pruneLocked(now)
	if len(cb.history) < cb.cfg.VolumeThreshold {
		return
	}
	failures := 0
	for _, o := range cb.history {
		if !o.success {
			failures++
		}
	}
	if float64(failures)/float64(len(cb.history)) >= cb.cfg.ErrorThreshold {
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.cfg.WindowSize)
	i := 0
	for i < len(cb.history) && cb.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.history = cb.history[i:]
	}
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.stateChangedAt = time.Now()
	if to == StateClosed {
		cb.history = nil
	}
	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.cfg.Name, "from": from.String(), "to": to.String(),
	})
}

// Execute runs fn if the circuit allows it, recording the outcome and
// translating a rejection into a ccoserr ResourceViolation so callers
// see the same error taxonomy as any other resource-exhaustion case.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ccoserr.New(ccoserr.ResourceViolation, cb.cfg.Name, fmt.Sprintf("circuit breaker %q is open", cb.cfg.Name))
	}
	err := fn(ctx)
	cb.Record(err == nil)
	return err
}

// Registry hands out one CircuitBreaker per name, creating it lazily
// with DefaultConfig on first use.
type Registry struct {
	mu       sync.Mutex
	logger   ccoslog.Logger
	breakers map[string]*CircuitBreaker
}

func NewRegistry(logger ccoslog.Logger) *Registry {
	return &Registry{logger: logger, breakers: make(map[string]*CircuitBreaker)}
}

func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := New(DefaultConfig(name), r.logger)
	r.breakers[name] = cb
	return cb
}
