// Package agent invokes the external coding agent as a subprocess,
// streams its structured output, and classifies success or failure.
package agent

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrAgentFailed is returned when the agent reports a failed run.
var ErrAgentFailed = errors.New("agent run failed")

// Agent defines the interface for external coding agents.
type Agent interface {
	// Name returns the agent's display name.
	Name() string

	// Available checks if the agent's CLI is installed and accessible.
	Available() bool

	// Run executes the agent with the given prompt and options.
	// Output is streamed to opts.Output as it arrives; the full
	// transcript is never buffered before emitting. The context can
	// be used for cancellation; a run killed mid-execution is
	// reported as a failure, never a success.
	Run(ctx context.Context, prompt string, opts RunOpts) (*Result, error)
}

// RunOpts configures an agent run.
type RunOpts struct {
	// Dir is the working directory for the agent process. Empty means
	// the current directory.
	Dir string

	// Output receives agent text as it streams in. If nil, output is
	// only collected into Result.Output.
	Output io.Writer

	// Timeout for the entire run. Zero means no timeout beyond any
	// context deadline.
	Timeout time.Duration
}

// Result contains the outcome of an agent run.
type Result struct {
	// Output is the full text output from the agent.
	Output string

	// ExitCode is the process exit status. Zero means success.
	ExitCode int

	// Success reports whether the agent's terminal event and exit
	// status both indicate success.
	Success bool

	// Duration is how long the run took.
	Duration time.Duration
}
