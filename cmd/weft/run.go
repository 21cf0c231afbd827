package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/weft/internal/agent"
	"github.com/pengelbrecht/weft/internal/config"
	"github.com/pengelbrecht/weft/internal/conflict"
	"github.com/pengelbrecht/weft/internal/engine"
	"github.com/pengelbrecht/weft/internal/git"
	"github.com/pengelbrecht/weft/internal/logging"
	"github.com/pengelbrecht/weft/internal/task"
	"github.com/pengelbrecht/weft/internal/tui"
	"github.com/pengelbrecht/weft/internal/update"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute pending tasks with the AI agent",
	Long: `Run executes every pending task in dependency order. When parallel
execution is enabled in the task file, independent tasks run
concurrently in isolated git worktrees and merge back one at a time.

Exit codes: 0 when every task completed, 1 when tasks failed or stayed
blocked, 2 when a precondition check refused the run.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runMain(cmd))
	},
}

func init() {
	runCmd.Flags().Bool("headless", false, "Run without the live display (plain output)")
	runCmd.Flags().Bool("jsonl", false, "Emit JSON Lines output (implies --headless)")
	runCmd.Flags().Bool("sequential", false, "Run one task at a time even if the task file enables parallelism")
	runCmd.Flags().IntP("concurrency", "c", 0, "Max tasks per batch (0 = task file setting)")
	runCmd.Flags().String("strategy", "", "Conflict strategy: agent, abort, theirs, ours (default from task file)")
	runCmd.Flags().Bool("no-commit", false, "Skip auto-commit even if the task file enables it")
	runCmd.Flags().String("agent", "", "Agent command (default from config)")
	runCmd.Flags().Duration("timeout", 0, "Per-run agent timeout (0 = config setting)")
	runCmd.Flags().Int("retries", 0, "Max attempts per agent run (0 = config setting)")
	runCmd.Flags().Duration("retry-delay", 0, "Wait between attempts (0 = config setting)")
}

func runMain(cmd *cobra.Command) int {
	if notice := update.CheckPeriodically(version); notice != "" {
		fmt.Fprintln(os.Stderr, notice)
	}

	taskFile, _ := cmd.Flags().GetString("file")
	root := projectRoot(taskFile)

	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return engine.ExitRefused
	}
	store := mustLoadStore(cmd)

	runCfg, err := buildRunConfig(cmd, store.Settings(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return engine.ExitRefused
	}

	log, err := logging.NewRunLogger(root, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return engine.ExitFailure
	}
	defer log.Close()

	command := cfg.Agent.Command
	if override, _ := cmd.Flags().GetString("agent"); override != "" {
		command = override
	}
	attempts := cfg.Agent.MaxAttempts
	if n, _ := cmd.Flags().GetInt("retries"); n > 0 {
		attempts = n
	}
	delay := cfg.Agent.RetryDelay
	if d, _ := cmd.Flags().GetDuration("retry-delay"); d > 0 {
		delay = d
	}
	runner := &agent.Runner{
		Agent:       &agent.ClaudeAgent{Command: command},
		MaxAttempts: attempts,
		RetryDelay:  delay,
		Logger:      log.Logger,
	}

	e := engine.New(store, git.New(root), runner, log, runCfg)
	if runCfg.Parallel {
		watcher, err := conflict.New(nil)
		if err != nil {
			log.Warn("overlap watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
			e.SetWatcher(watcher)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headless, _ := cmd.Flags().GetBool("headless")
	jsonl, _ := cmd.Flags().GetBool("jsonl")
	if headless || jsonl {
		e.SetOutput(engine.NewHeadlessOutput(jsonl))
		res, err := e.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return res.ExitCode
	}

	model := tui.New(e.Tracker(), store.Project().Name, cfg.Display.RefreshInterval)
	res, cancelled, err := tui.Run(ctx, model, e.Run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if res == nil {
			return engine.ExitFailure
		}
	}
	if cancelled {
		fmt.Fprintln(os.Stderr, "Run cancelled")
	}
	printSummary(res)
	return res.ExitCode
}

// buildRunConfig resolves execution settings, task file first, flags
// overriding.
func buildRunConfig(cmd *cobra.Command, settings task.Settings, cfg config.Config) (engine.RunConfig, error) {
	sequential, _ := cmd.Flags().GetBool("sequential")
	noCommit, _ := cmd.Flags().GetBool("no-commit")

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency < 0 {
		return engine.RunConfig{}, fmt.Errorf("concurrency must not be negative")
	}
	if concurrency == 0 {
		concurrency = settings.Parallel.MaxConcurrency
	}

	strategyName, _ := cmd.Flags().GetString("strategy")
	if strategyName == "" {
		strategyName = settings.Parallel.ConflictStrategy
	}
	strategy, err := engine.ParseStrategy(strategyName)
	if err != nil {
		return engine.RunConfig{}, err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = cfg.Agent.Timeout
	}

	return engine.RunConfig{
		Parallel:       settings.Parallel.Enabled && !sequential,
		MaxConcurrency: concurrency,
		Strategy:       strategy,
		AutoCommit:     settings.AutoCommit && !noCommit,
		CommitTemplate: settings.CommitTemplate,
		AgentTimeout:   timeout,
	}, nil
}

func printSummary(res *engine.RunResult) {
	if res == nil {
		return
	}
	fmt.Printf("%d completed, %d failed in %d rounds (%v)\n",
		len(res.Completed), len(res.Failed), res.Rounds, res.Duration.Round(time.Second))
	for id, err := range res.Failed {
		fmt.Printf("  failed %s: %v\n", id, err)
	}
	for id, unmet := range res.Blocked {
		fmt.Printf("  blocked %s: waiting on %v\n", id, unmet)
	}
}
