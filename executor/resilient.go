package executor

import (
	"context"

	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/resilience"
)

// Resilient wraps a network-bound Executor with per-capability retry
// and circuit breaking, so a flaky remote endpoint degrades into
// ResourceViolation rejections instead of cascading timeouts through
// every caller.
type Resilient struct {
	Inner    Executor
	Breakers *resilience.Registry
	RetryCfg resilience.RetryConfig
}

func NewResilient(inner Executor, breakers *resilience.Registry, retryCfg resilience.RetryConfig) Resilient {
	return Resilient{Inner: inner, Breakers: breakers, RetryCfg: retryCfg}
}

func (r Resilient) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	cb := r.Breakers.Get(ec.CapabilityID)

	var result interface{}
	err := cb.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, r.RetryCfg, func(ctx context.Context) error {
			res, err := r.Inner.Execute(ctx, provider, inputs, ec)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
