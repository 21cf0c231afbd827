// Package engine is the orchestration core: it schedules tasks in
// dependency order, runs independent tasks concurrently in isolated
// workspaces, serializes their merges back onto the base line, and
// persists completion after each task lands.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pengelbrecht/weft/internal/agent"
	"github.com/pengelbrecht/weft/internal/conflict"
	"github.com/pengelbrecht/weft/internal/git"
	"github.com/pengelbrecht/weft/internal/logging"
	"github.com/pengelbrecht/weft/internal/progress"
	"github.com/pengelbrecht/weft/internal/schedule"
	"github.com/pengelbrecht/weft/internal/task"
)

// ErrPrecondition marks refusals detected before any work started.
var ErrPrecondition = errors.New("precondition failed")

// Exit codes reported through RunResult.ExitCode.
const (
	// ExitOK means every task completed.
	ExitOK = 0
	// ExitFailure means the run started but tasks failed or stayed
	// blocked.
	ExitFailure = 1
	// ExitRefused means a precondition check failed and no work was
	// attempted.
	ExitRefused = 2
)

// DefaultMaxConcurrency bounds a batch when the task file doesn't set
// a limit.
const DefaultMaxConcurrency = 4

// RunConfig holds the per-run execution settings, resolved from the
// task file and command-line flags before the engine starts.
type RunConfig struct {
	// Parallel enables batched execution in isolated workspaces.
	Parallel bool

	// MaxConcurrency caps the batch size. Zero or negative means
	// DefaultMaxConcurrency.
	MaxConcurrency int

	// Strategy selects how conflicted merges are handled.
	Strategy Strategy

	// AutoCommit commits each task's changes on the base line.
	// Workspace runs always commit regardless; the merge needs a
	// revision to carry the changes over.
	AutoCommit bool

	// CommitTemplate is the commit message template, with {taskId} and
	// {taskTitle} placeholders.
	CommitTemplate string

	// AgentTimeout bounds a single agent run. Zero means unlimited.
	AgentTimeout time.Duration
}

// RunResult summarizes a run.
type RunResult struct {
	// Completed holds the ids of all tasks done at the end of the run,
	// in store order. Includes tasks already done before it started.
	Completed []string

	// Failed maps each failed task id to its failure cause.
	Failed map[string]error

	// Blocked maps each remaining not-done task to its unmet
	// dependencies.
	Blocked map[string][]string

	// Rounds is how many scheduling rounds ran.
	Rounds int

	Duration time.Duration
	ExitCode int
}

// Engine drives the run loop. One engine handles one run.
type Engine struct {
	store   *task.Store
	repo    *git.Repo
	runner  *agent.Runner
	log     *logging.RunLogger
	cfg     RunConfig
	tracker *progress.Tracker
	prompts *PromptBuilder

	out     *HeadlessOutput
	watcher *conflict.Watcher

	// failed accumulates permanently failed tasks across rounds so the
	// scheduler stops reselecting them.
	failed map[string]error
}

// New creates an engine over the given collaborators.
func New(store *task.Store, repo *git.Repo, runner *agent.Runner, log *logging.RunLogger, cfg RunConfig) *Engine {
	return &Engine{
		store:   store,
		repo:    repo,
		runner:  runner,
		log:     log,
		cfg:     cfg,
		tracker: progress.NewTracker(),
		prompts: NewPromptBuilder(),
		failed:  make(map[string]error),
	}
}

// Tracker returns the progress tracker backing the live display.
func (e *Engine) Tracker() *progress.Tracker {
	return e.tracker
}

// SetOutput attaches a headless output formatter. Without one the
// engine runs silently; progress is still visible via the tracker and
// the run log.
func (e *Engine) SetOutput(o *HeadlessOutput) {
	e.out = o
}

// SetWatcher attaches an advisory file-overlap watcher that observes
// live workspaces during batches.
func (e *Engine) SetWatcher(w *conflict.Watcher) {
	e.watcher = w
}

// Run executes tasks until none are runnable. It returns an error only
// for refusals and infrastructure failures; per-task failures are
// reported in the result.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{Failed: e.failed}

	tasks := e.store.Tasks()
	if cyclic, offending := schedule.DetectCycle(tasks); cyclic {
		err := fmt.Errorf("%w: dependency cycle involving %s", ErrPrecondition, strings.Join(offending, ", "))
		if e.out != nil {
			e.out.Refused(err)
		}
		res.ExitCode = ExitRefused
		res.Duration = time.Since(start)
		return res, err
	}
	if e.runner.Agent != nil && e.hasPrompts(tasks) && !e.runner.Agent.Available() {
		err := fmt.Errorf("%w: agent %q is not available", ErrPrecondition, e.runner.Agent.Name())
		if e.out != nil {
			e.out.Refused(err)
		}
		res.ExitCode = ExitRefused
		res.Duration = time.Since(start)
		return res, err
	}

	if err := e.prepareRepo(); err != nil {
		res.ExitCode = ExitFailure
		res.Duration = time.Since(start)
		return res, err
	}
	base, err := e.repo.CurrentBranch()
	if err != nil {
		res.ExitCode = ExitFailure
		res.Duration = time.Since(start)
		return res, err
	}

	if e.out != nil {
		e.out.Start(e.store.Project().Name, len(tasks), countRemaining(tasks), e.cfg.Parallel)
	}
	e.log.Info("run started", "base", base, "tasks", len(tasks), "parallel", e.cfg.Parallel)

	interrupted := false
	for {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		tasks = e.store.Tasks()
		ready := e.runnable(schedule.Ready(tasks))
		if len(ready) == 0 {
			break
		}
		res.Rounds++

		batch := ready[:1]
		if e.cfg.Parallel {
			batches := schedule.ConflictFreeBatches(tasks, ready)
			batch = batches[0]
			if max := e.maxConcurrency(); len(batch) > max {
				batch = batch[:max]
			}
		}
		if e.out != nil {
			e.out.Round(res.Rounds, batch)
		}
		e.log.Info("round", "n", res.Rounds, "tasks", batch)

		byID := taskIndex(tasks)
		if len(batch) == 1 {
			// A single-task round needs no isolation.
			e.runDirect(ctx, byID[batch[0]])
		} else if fatal := e.runBatch(ctx, batch, byID, base); fatal {
			break
		}
	}

	e.finalize(res, interrupted)
	res.Duration = time.Since(start)
	if interrupted && e.out != nil {
		e.out.Interrupted()
	}
	if e.out != nil {
		e.out.Complete(res)
	}
	e.log.Info("run finished", "exit", res.ExitCode, "rounds", res.Rounds, "duration", res.Duration)
	return res, nil
}

// prepareRepo brings the repository into the state every round assumes:
// initialized, with at least one revision to branch from, with the
// metadata directory ignored, and with no workspaces left over from an
// interrupted prior run.
func (e *Engine) prepareRepo() error {
	if err := e.repo.EnsureInitialized(); err != nil {
		return err
	}
	if _, err := e.repo.EnsureGitignore(); err != nil {
		return err
	}
	if err := e.repo.EnsureCommit(); err != nil {
		return err
	}
	if err := e.repo.DestroyAllWorkspaces(); err != nil {
		return fmt.Errorf("sweeping leftover workspaces: %w", err)
	}
	return nil
}

// runDirect executes a task in the base working tree and persists its
// completion. Failures are recorded and the loop moves on.
func (e *Engine) runDirect(ctx context.Context, t *task.Task) {
	logw, logPath, err := e.log.OpenTaskLog(t.ID)
	if err != nil {
		e.failTask(t.ID, err)
		return
	}
	defer logw.Close()

	e.tracker.Add(t.ID, t.Title, logPath)
	e.tracker.SetStatus(t.ID, progress.StatusRunning)
	if e.out != nil {
		e.out.Task(t.ID, t.Title, false)
	}

	if t.HasPrompt() {
		out := progress.NewCountingWriter(e.tracker, t.ID, logw)
		opts := agent.RunOpts{Dir: e.repo.Root(), Output: out, Timeout: e.cfg.AgentTimeout}
		if _, err := e.runner.Run(ctx, e.prompts.TaskPrompt(t), opts); err != nil {
			e.failTask(t.ID, err)
			return
		}
	}

	if e.cfg.AutoCommit {
		cr, err := e.repo.Commit(t.ID, t.Title, e.cfg.CommitTemplate, "")
		if err != nil {
			e.failTask(t.ID, err)
			return
		}
		e.warnSkipped(t.ID, cr.SensitiveSkipped)
	}

	if err := e.store.CompleteAndSave([]string{t.ID}); err != nil {
		e.failTask(t.ID, err)
		return
	}
	e.tracker.SetStatus(t.ID, progress.StatusCompleted)
	if e.out != nil {
		e.out.TaskComplete(t.ID)
	}
}

// runBatch executes a batch of conflict-free tasks concurrently in
// isolated workspaces, then merges the survivors back one at a time.
// It returns true when an unresolved merge conflict ended the run.
func (e *Engine) runBatch(ctx context.Context, ids []string, byID map[string]*task.Task, base string) bool {
	workspaces := make(map[string]*git.Workspace, len(ids))
	for _, id := range ids {
		ws, err := e.repo.CreateWorkspace(id, base)
		if err != nil {
			e.failTask(id, fmt.Errorf("creating workspace: %w", err))
			continue
		}
		workspaces[id] = ws
		e.tracker.Add(id, byID[id].Title, e.log.TaskLogPath(id))
		if e.watcher != nil {
			if err := e.watcher.AddWorkspace(id, ws.Path); err != nil {
				e.log.Warn("watching workspace failed", "task", id, "error", err)
			}
		}
	}

	// Fork: every member runs against its own tree. The store and the
	// base working tree stay untouched until the join.
	runErrs := make(map[string]error, len(workspaces))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for id, ws := range workspaces {
		wg.Add(1)
		go func(t *task.Task, ws *git.Workspace) {
			defer wg.Done()
			err := e.runMember(ctx, t, ws)
			mu.Lock()
			runErrs[t.ID] = err
			mu.Unlock()
		}(byID[id], ws)
	}
	wg.Wait()

	e.reportOverlaps()

	// Join: merge in batch order, one at a time. Tasks whose merge was
	// aborted re-run sequentially after every other member has landed.
	var retries []string
	for i, id := range ids {
		ws, ok := workspaces[id]
		if !ok {
			continue
		}
		if err := runErrs[id]; err != nil {
			e.failTask(id, err)
			e.discardWorkspace(id)
			continue
		}
		if ctx.Err() != nil {
			e.discardWorkspace(id)
			continue
		}

		switch e.mergeMember(ctx, byID[id], ws, base) {
		case mergeLanded:
			if err := e.store.CompleteAndSave([]string{id}); err != nil {
				e.failTask(id, err)
			} else {
				e.tracker.SetStatus(id, progress.StatusCompleted)
				if e.out != nil {
					e.out.TaskComplete(id)
				}
			}
		case mergeRetry:
			e.tracker.SetStatus(id, progress.StatusPending)
			retries = append(retries, id)
		case mergeFailed:
			// An unresolved conflict ends the run. failTask was already
			// called for this member; tear down everything still
			// waiting to merge and stop scheduling.
			e.discardWorkspace(id)
			for _, rest := range ids[i+1:] {
				if _, ok := workspaces[rest]; ok {
					e.tracker.SetStatus(rest, progress.StatusPending)
					e.discardWorkspace(rest)
				}
			}
			return true
		}
		e.discardWorkspace(id)
	}

	for _, id := range retries {
		if ctx.Err() != nil {
			return false
		}
		e.runDirect(ctx, byID[id])
	}
	return false
}

// runMember executes one batch member inside its workspace. The
// changes are committed on the workspace branch unconditionally; the
// merge has nothing to carry over otherwise.
func (e *Engine) runMember(ctx context.Context, t *task.Task, ws *git.Workspace) error {
	logw, _, err := e.log.OpenTaskLog(t.ID)
	if err != nil {
		return err
	}
	defer logw.Close()

	e.tracker.SetStatus(t.ID, progress.StatusRunning)
	if e.out != nil {
		e.out.Task(t.ID, t.Title, true)
	}

	if t.HasPrompt() {
		out := progress.NewCountingWriter(e.tracker, t.ID, logw)
		opts := agent.RunOpts{Dir: ws.Path, Output: out, Timeout: e.cfg.AgentTimeout}
		if _, err := e.runner.Run(ctx, e.prompts.TaskPrompt(t), opts); err != nil {
			return err
		}
	}

	cr, err := e.repo.Commit(t.ID, t.Title, e.cfg.CommitTemplate, ws.Path)
	if err != nil {
		return fmt.Errorf("committing workspace: %w", err)
	}
	e.warnSkipped(t.ID, cr.SensitiveSkipped)
	return nil
}

// mergeOutcome is the per-member result of the join phase.
type mergeOutcome int

const (
	mergeLanded mergeOutcome = iota
	mergeRetry
	mergeFailed
)

// mergeMember merges one workspace branch onto base, applying the
// configured conflict strategy if the merge stops.
func (e *Engine) mergeMember(ctx context.Context, t *task.Task, ws *git.Workspace, base string) mergeOutcome {
	e.tracker.SetStatus(t.ID, progress.StatusMerging)
	if e.out != nil {
		e.out.Merging(t.ID)
	}

	mr, err := e.repo.MergeWorkspace(t.ID, base, e.cfg.Strategy.bias())
	if err != nil {
		e.failTask(t.ID, err)
		return mergeFailed
	}
	if mr.Success {
		return mergeLanded
	}

	if e.out != nil {
		e.out.Conflict(t.ID, mr.Conflicts, e.cfg.Strategy)
	}
	e.log.Warn("merge conflict", "task", t.ID, "files", mr.Conflicts, "strategy", e.cfg.Strategy)

	switch e.cfg.Strategy {
	case StrategyAgent:
		if err := e.resolveWithAgent(ctx, t, ws, base, mr.Conflicts); err != nil {
			if abortErr := e.repo.AbortMerge(); abortErr != nil {
				e.log.Error("aborting failed merge", "task", t.ID, "error", abortErr)
			}
			e.failTask(t.ID, err)
			return mergeFailed
		}
		return mergeLanded

	case StrategyAbort:
		if err := e.repo.AbortMerge(); err != nil {
			e.failTask(t.ID, err)
			return mergeFailed
		}
		if e.out != nil {
			e.out.Retrying(t.ID)
		}
		return mergeRetry

	default:
		// A biased merge already preferred one side; conflicts that
		// survive it are structural and have no automatic resolution.
		if err := e.repo.AbortMerge(); err != nil {
			e.failTask(t.ID, err)
			return mergeFailed
		}
		e.failTask(t.ID, fmt.Errorf("conflicts not resolvable by %q bias: %s",
			e.cfg.Strategy, strings.Join(mr.Conflicts, ", ")))
		return mergeFailed
	}
}

// resolveWithAgent asks the agent to reconcile the conflicted files in
// the base working tree, then stages them and completes the merge
// commit. The merge stays in progress throughout.
func (e *Engine) resolveWithAgent(ctx context.Context, t *task.Task, ws *git.Workspace, base string, conflicts []string) error {
	logw, _, err := e.log.OpenTaskLog(t.ID + "-merge")
	if err != nil {
		return err
	}
	defer logw.Close()

	prompt := e.prompts.ConflictPrompt(t, ws.Branch, base, conflicts)
	out := progress.NewCountingWriter(e.tracker, t.ID, logw)
	opts := agent.RunOpts{Dir: e.repo.Root(), Output: out, Timeout: e.cfg.AgentTimeout}
	if _, err := e.runner.Run(ctx, prompt, opts); err != nil {
		return fmt.Errorf("agent conflict resolution: %w", err)
	}

	if err := e.repo.StageFiles(conflicts); err != nil {
		return err
	}
	remaining, err := e.repo.ConflictedFiles()
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return fmt.Errorf("conflicts remain after agent resolution: %s", strings.Join(remaining, ", "))
	}
	return e.repo.CommitMerge()
}

// finalize computes the completed set, the blocked report, and the exit
// code.
func (e *Engine) finalize(res *RunResult, interrupted bool) {
	tasks := e.store.Tasks()

	remaining := 0
	for _, t := range tasks {
		if t.Done {
			res.Completed = append(res.Completed, t.ID)
		} else {
			remaining++
		}
	}

	if remaining > 0 {
		res.Blocked = make(map[string][]string)
		for id, unmet := range schedule.UnmetDependencies(tasks) {
			if _, failed := e.failed[id]; !failed {
				res.Blocked[id] = unmet
			}
		}
	}

	if remaining == 0 && len(e.failed) == 0 && !interrupted {
		res.ExitCode = ExitOK
	} else {
		res.ExitCode = ExitFailure
	}
}

// runnable filters out tasks that already failed this run.
func (e *Engine) runnable(ready []string) []string {
	var out []string
	for _, id := range ready {
		if _, failed := e.failed[id]; !failed {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) failTask(id string, err error) {
	e.failed[id] = err
	e.tracker.SetError(id, err)
	e.tracker.SetStatus(id, progress.StatusFailed)
	if e.out != nil {
		e.out.TaskFailed(id, err)
	}
	e.log.Error("task failed", "task", id, "error", err)
}

func (e *Engine) discardWorkspace(id string) {
	if e.watcher != nil {
		e.watcher.RemoveWorkspace(id)
	}
	if err := e.repo.DestroyWorkspace(id); err != nil {
		e.log.Warn("destroying workspace failed", "task", id, "error", err)
	}
}

func (e *Engine) reportOverlaps() {
	if e.watcher == nil {
		return
	}
	for _, o := range e.watcher.Overlaps() {
		if e.out != nil {
			e.out.Overlap(o.RelativePath, o.TaskIDs)
		}
		e.log.Warn("workspaces modified the same file", "file", o.RelativePath, "tasks", o.TaskIDs)
	}
}

func (e *Engine) warnSkipped(id string, skipped []string) {
	if len(skipped) > 0 {
		e.log.Warn("sensitive files excluded from commit", "task", id, "files", skipped)
	}
}

func (e *Engine) maxConcurrency() int {
	if e.cfg.MaxConcurrency > 0 {
		return e.cfg.MaxConcurrency
	}
	return DefaultMaxConcurrency
}

func (e *Engine) hasPrompts(tasks []task.Task) bool {
	for _, t := range tasks {
		if !t.Done && t.HasPrompt() {
			return true
		}
	}
	return false
}

func taskIndex(tasks []task.Task) map[string]*task.Task {
	byID := make(map[string]*task.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	return byID
}

func countRemaining(tasks []task.Task) int {
	n := 0
	for _, t := range tasks {
		if !t.Done {
			n++
		}
	}
	return n
}
