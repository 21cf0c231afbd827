package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ClaudeAgent implements the Agent interface for the Claude Code CLI.
type ClaudeAgent struct {
	// Command is the path to the claude binary. Defaults to "claude".
	Command string
}

// NewClaudeAgent creates a new Claude Code agent with default settings.
func NewClaudeAgent() *ClaudeAgent {
	return &ClaudeAgent{Command: "claude"}
}

// Name returns "claude".
func (a *ClaudeAgent) Name() string {
	return "claude"
}

// Available checks if the claude CLI is installed and accessible.
func (a *ClaudeAgent) Available() bool {
	_, err := exec.LookPath(a.command())
	return err == nil
}

// Run executes claude with the given prompt.
// Uses --dangerously-skip-permissions for autonomous operation and
// stream-json output so content arrives incrementally.
func (a *ClaudeAgent) Run(ctx context.Context, prompt string, opts RunOpts) (*Result, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{
		"--dangerously-skip-permissions",
		"--print",
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
		prompt,
	}

	cmd := exec.CommandContext(ctx, a.command(), args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", a.Name(), err)
	}

	outcome, parseErr := parseStream(stdout, opts.Output)

	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &Result{
		Output:   outcome.text.String(),
		Duration: duration,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("%s timed out after %v", a.Name(), opts.Timeout)
	}
	if ctx.Err() == context.Canceled {
		return result, fmt.Errorf("%s cancelled", a.Name())
	}
	if waitErr != nil {
		return result, fmt.Errorf("%s exited with error: %w\nstderr: %s", a.Name(), waitErr, stderr.String())
	}
	if parseErr != nil {
		return result, fmt.Errorf("reading %s output: %w", a.Name(), parseErr)
	}
	if outcome.sawResult && outcome.failed {
		return result, fmt.Errorf("%w: %s reported an error result", ErrAgentFailed, a.Name())
	}

	result.Success = true
	return result, nil
}

// command returns the claude binary path.
func (a *ClaudeAgent) command() string {
	if a.Command != "" {
		return a.Command
	}
	return "claude"
}
