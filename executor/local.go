package executor

import (
	"context"
	"fmt"

	"github.com/ccos-project/ccos-core/manifest"
)

// LocalExecutor invokes an in-process handler synchronously, wrapping
// any error with the capability id (spec.md §4.3).
type LocalExecutor struct{}

func (LocalExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	local, ok := provider.(manifest.LocalProvider)
	if !ok {
		return nil, fmt.Errorf("executor: LocalExecutor received non-local provider %T", provider)
	}
	result, err := local.Handler(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("executor: local capability %s: %w", ec.CapabilityID, err)
	}
	return result, nil
}

// NativeExecutor invokes an asynchronous in-process handler and awaits
// its completion (spec.md §4.3). The handler runs on its own goroutine
// and the executor waits on its result channel or on ctx.Done(),
// whichever comes first; on cancellation it returns ctx.Err() wrapped
// without waiting for the handler to finish.
type NativeExecutor struct{}

func (NativeExecutor) Execute(ctx context.Context, provider manifest.Provider, inputs interface{}, ec *Context) (interface{}, error) {
	native, ok := provider.(manifest.NativeProvider)
	if !ok {
		return nil, fmt.Errorf("executor: NativeExecutor received non-native provider %T", provider)
	}

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := native.Handler(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("executor: native capability %s: %w", ec.CapabilityID, o.err)
		}
		return o.result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("executor: native capability %s: %w", ec.CapabilityID, ctx.Err())
	}
}
