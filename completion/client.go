package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
)

// TimeoutError indicates a completion attempt did not finish within its
// allotted window.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("completion timed out after %s", e.Timeout)
}

// Options configure a Client.
type Options struct {
	// RetryAttempts is the total number of tries for one completion,
	// including the first. Values below 1 are treated as 1.
	RetryAttempts int
	// RetryBackoff is the base delay between retries, doubled per attempt.
	RetryBackoff time.Duration
	// Timeout bounds each completion attempt. Zero disables it.
	Timeout time.Duration
	Logger  logging.Logger
}

// Client drives streaming completions against a Provider and reconstructs the
// result into a finalized message. Transport failures, retryable provider
// statuses, protocol violations and attempt timeouts are retried with
// exponential backoff; caller cancellation fails immediately.
type Client struct {
	provider model.Provider
	opts     Options
}

// New creates a Client for the given provider.
func New(provider model.Provider, optFns ...func(o *Options)) *Client {
	opts := Options{
		RetryAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{provider: provider, opts: opts}
}

// Result is one finalized completion.
type Result struct {
	Message core.Message
	Usage   *model.TokenUsage
}

// Complete runs one streaming completion to its finish event and returns the
// reconstructed assistant message. Transport, provider, stream-protocol and
// timeout failures are retried with exponential backoff until the attempt
// budget is exhausted; caller cancellation ends the call immediately.
func (c *Client) Complete(ctx context.Context, req model.Request) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.opts.RetryBackoff << (attempt - 1)
			c.opts.Logger.Warn("retrying completion",
				"attempt", attempt+1,
				"backoff", backoff.String(),
				"error", lastErr.Error(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		res, err := c.attempt(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// attempt runs one streaming attempt and records its outcome.
func (c *Client) attempt(parent context.Context, req model.Request) (*Result, error) {
	start := time.Now()
	res, err := c.stream(parent, req)

	tokens, toolCalls := 0, 0
	if res != nil {
		toolCalls = len(res.Message.ToolCalls)
		if res.Usage != nil {
			tokens = res.Usage.TotalTokens
		}
	}
	logging.LogModelCall(c.opts.Logger, req.Model, tokens, time.Since(start), err,
		"tool_calls", toolCalls,
	)
	return res, err
}

func (c *Client) stream(parent context.Context, req model.Request) (*Result, error) {
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if c.opts.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(parent, c.opts.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	events, errCh := c.provider.Stream(attemptCtx, req)

	asm := NewAssembler()
	for ev := range events {
		if err := asm.Apply(ev); err != nil {
			cancel()
			drain(events, errCh)
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return nil, &TimeoutError{Timeout: c.opts.Timeout}
		}
		return nil, err
	}

	msg, usage, err := asm.Finalize()
	if err != nil {
		return nil, err
	}
	return &Result{Message: msg, Usage: usage}, nil
}

// retryable reports whether another attempt could reasonably succeed.
// Protocol violations and timeouts are retried alongside transport failures:
// a fresh stream usually comes back well formed.
func retryable(err error) bool {
	var transport *model.TransportError
	if errors.As(err, &transport) {
		return true
	}
	var provider *model.ProviderError
	if errors.As(err, &provider) {
		return provider.Retryable()
	}
	var protocol *model.ProtocolError
	if errors.As(err, &protocol) {
		return true
	}
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

func drain(events <-chan model.StreamEvent, errCh <-chan error) {
	for range events {
	}
	<-errCh
}
