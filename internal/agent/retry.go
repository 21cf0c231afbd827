package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults for the retry runner.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

// Runner wraps an Agent with bounded retry. Failed runs are retried
// after a fixed delay up to the attempt limit; the first success wins.
type Runner struct {
	Agent       Agent
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// NewRunner creates a retry runner with default settings.
func NewRunner(a Agent) *Runner {
	return &Runner{
		Agent:       a,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
}

// Run executes the agent, retrying on failure. The wait between
// attempts is cancellation-aware: a cancelled context stops the wait
// immediately and the last failure is returned.
func (r *Runner) Run(ctx context.Context, prompt string, opts RunOpts) (*Result, error) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	delay := r.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var lastResult *Result
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			r.log(ctx, "retrying agent run", "attempt", attempt, "of", attempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastResult, ctx.Err()
			}
		}

		result, err := r.Agent.Run(ctx, prompt, opts)
		if err == nil {
			return result, nil
		}
		lastResult, lastErr = result, err
		r.log(ctx, "agent run failed", "attempt", attempt, "error", err)

		// Cancellation is not retryable.
		if ctx.Err() != nil {
			return lastResult, lastErr
		}
	}

	return lastResult, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (r *Runner) log(ctx context.Context, msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.WarnContext(ctx, msg, args...)
	}
}
