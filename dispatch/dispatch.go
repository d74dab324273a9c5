package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
	"golang.org/x/sync/semaphore"
)

// ProviderFactory builds a model provider from a delegating tool's endpoint
// settings. The root runtime injects a factory backed by the real provider
// adapters; tests inject scripted providers.
type ProviderFactory func(tc config.ToolConfig) (model.Provider, error)

// Options configure a Dispatcher.
type Options struct {
	// MaxParallel caps concurrently executing tool calls per batch.
	MaxParallel int64
	Logger      logging.Logger
	// Factory is required when any tool delegates.
	Factory ProviderFactory
}

// Dispatcher resolves and executes tool call batches.
type Dispatcher struct {
	registry *core.Registry
	cfg      *config.Config
	sem      *semaphore.Weighted
	opts     Options
}

// NewDispatcher creates a dispatcher over the given capability registry and
// configuration.
func NewDispatcher(registry *core.Registry, cfg *config.Config, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		MaxParallel: int64(cfg.MaxParallelTools),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(opts.MaxParallel),
		opts:     opts,
	}
}

// Dispatch executes every call in the batch and returns one result per call,
// in request order. It never returns an error; failed, disabled, unknown and
// timed out calls all resolve to error results the model can react to.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []core.ToolCallRequest) []core.ToolResult {
	results := make([]core.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			results[i] = errorResult(call.ID, fmt.Sprintf("tool %q not executed: %v", call.Name, err))
			continue
		}
		wg.Add(1)
		go func(i int, call core.ToolCallRequest) {
			defer wg.Done()
			defer d.sem.Release(1)
			results[i] = d.execute(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

// execute runs one call under its resolved configuration and timeout.
func (d *Dispatcher) execute(ctx context.Context, call core.ToolCallRequest) core.ToolResult {
	tc := d.cfg.ToolConfigFor(call.Name)
	if !tc.IsEnabled() {
		return errorResult(call.ID, fmt.Sprintf("tool %q is disabled", call.Name))
	}

	timeout := tc.Timeout.Std()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var (
		content string
		err     error
	)
	if tc.ShouldDelegate() {
		content, err = d.delegate(execCtx, call, tc)
	} else {
		content, err = d.invoke(execCtx, call)
	}
	logging.LogToolCall(d.opts.Logger, call.Name, time.Since(start), err,
		"call_id", call.ID,
		"delegated", tc.ShouldDelegate(),
	)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if tc.ShouldDelegate() {
				return errorResult(call.ID, fmt.Sprintf("delegated tool %q timed out after %s", call.Name, timeout))
			}
			return errorResult(call.ID, fmt.Sprintf("tool %q timed out after %s", call.Name, timeout))
		}
		return errorResult(call.ID, fmt.Sprintf("tool %q failed: %v", call.Name, err))
	}
	return core.ToolResult{CallID: call.ID, Status: core.ResultSuccess, Content: content}
}

// invoke runs the registered capability directly. A panicking tool is
// contained like any other failure.
func (d *Dispatcher) invoke(ctx context.Context, call core.ToolCallRequest) (content string, err error) {
	capability, ok := d.registry.Lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("no such tool registered")
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if uerr := json.Unmarshal([]byte(call.Arguments), &args); uerr != nil {
			return "", fmt.Errorf("invalid arguments: %w", uerr)
		}
	}

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		c, ierr := capability.Invoke(ctx, args)
		done <- outcome{content: c, err: ierr}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-done:
		return out.content, out.err
	}
}

func errorResult(callID, reason string) core.ToolResult {
	return core.ToolResult{CallID: callID, Status: core.ResultError, Content: reason}
}
