package git

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WorkspaceDir is the directory under the repo root that holds
// isolated workspaces.
const WorkspaceDir = ".weft/worktrees"

// BranchPrefix is the prefix for workspace branch names. The orphan
// sweep matches leftover workspaces by this prefix.
const BranchPrefix = "weft/"

// Workspace is an isolated, disposable copy of the repository tied to
// one task during a parallel round: a dedicated directory plus a
// dedicated branch, both named from the task id.
type Workspace struct {
	Path    string
	Branch  string
	TaskID  string
	Created time.Time
}

// MergeBias selects a side preference for merges.
type MergeBias string

const (
	// BiasNone performs a plain non-fast-forward merge.
	BiasNone MergeBias = ""
	// BiasIncoming prefers the workspace side on conflicting hunks.
	BiasIncoming MergeBias = "theirs"
	// BiasBase prefers the base-line side on conflicting hunks.
	BiasBase MergeBias = "ours"
)

// MergeResult reports the outcome of a workspace merge.
type MergeResult struct {
	Success   bool
	Conflicts []string
}

// WorkspacePath returns the deterministic directory for a task's workspace.
func (r *Repo) WorkspacePath(taskID string) string {
	return filepath.Join(r.root, WorkspaceDir, taskID)
}

// WorkspaceBranch returns the deterministic branch name for a task.
func (r *Repo) WorkspaceBranch(taskID string) string {
	return BranchPrefix + taskID
}

// CreateWorkspace creates an isolated workspace for a task, branched
// from base. A stale workspace left by a prior crashed run is destroyed
// first so creation always starts fresh.
func (r *Repo) CreateWorkspace(taskID, base string) (*Workspace, error) {
	path := r.WorkspacePath(taskID)
	branch := r.WorkspaceBranch(taskID)

	if _, err := os.Stat(path); err == nil {
		if err := r.DestroyWorkspace(taskID); err != nil {
			return nil, fmt.Errorf("destroying stale workspace %s: %w", taskID, err)
		}
	} else if r.branchExists(branch) {
		if err := r.deleteBranch(branch); err != nil {
			return nil, fmt.Errorf("deleting stale branch for %s: %w", taskID, err)
		}
	}

	if _, err := r.EnsureGitignore(); err != nil {
		return nil, fmt.Errorf("ensuring gitignore: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(r.root, WorkspaceDir), 0755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	if _, err := r.run("worktree", "add", path, "-b", branch, base); err != nil {
		return nil, fmt.Errorf("creating workspace for %s: %w", taskID, err)
	}

	return &Workspace{
		Path:    path,
		Branch:  branch,
		TaskID:  taskID,
		Created: time.Now(),
	}, nil
}

// DestroyWorkspace removes a task's workspace directory and branch.
// The structured removal is tried first; if git refuses, the directory
// is deleted directly and the worktree list pruned.
func (r *Repo) DestroyWorkspace(taskID string) error {
	path := r.WorkspacePath(taskID)
	branch := r.WorkspaceBranch(taskID)

	if _, err := os.Stat(path); err == nil {
		if _, rmErr := r.run("worktree", "remove", path, "--force"); rmErr != nil {
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("removing workspace directory: %w", err)
			}
			_, _ = r.run("worktree", "prune")
		}
	} else {
		_, _ = r.run("worktree", "prune")
	}

	return r.deleteBranch(branch)
}

// ListWorkspaces returns the weft workspaces git knows about, matched
// by the branch-name prefix. Used to detect orphans from interrupted
// runs.
func (r *Repo) ListWorkspaces() ([]*Workspace, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	return parseWorkspaceList(out), nil
}

// DestroyAllWorkspaces removes every weft workspace. Run at startup to
// sweep leftovers from an interrupted prior run, and at round teardown.
func (r *Repo) DestroyAllWorkspaces() error {
	workspaces, err := r.ListWorkspaces()
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if err := r.DestroyWorkspace(ws.TaskID); err != nil {
			return fmt.Errorf("destroying workspace %s: %w", ws.TaskID, err)
		}
	}
	return nil
}

// MergeWorkspace switches to base and attempts a non-fast-forward merge
// of the task's branch, optionally biased to one side. On conflict the
// merge is left in progress and the unmerged files are reported; the
// caller decides whether to resolve or abort.
func (r *Repo) MergeWorkspace(taskID, base string, bias MergeBias) (*MergeResult, error) {
	branch := r.WorkspaceBranch(taskID)

	if err := r.Checkout(base); err != nil {
		return nil, err
	}

	args := []string{"merge", "--no-ff", "--no-edit"}
	if bias != BiasNone {
		args = append(args, "-X", string(bias))
	}
	args = append(args, branch, "-m", fmt.Sprintf("merge %s", branch))

	if _, err := r.run(args...); err != nil {
		conflicts, listErr := r.ConflictedFiles()
		if listErr != nil {
			return nil, fmt.Errorf("merging %s: %w", branch, err)
		}
		// A failure with no unmerged files is not a conflict: the
		// working tree blocked the merge before it started (dirty base,
		// untracked collision). There is nothing to resolve or abort.
		if len(conflicts) == 0 {
			return nil, fmt.Errorf("merging %s: %w", branch, err)
		}
		return &MergeResult{Conflicts: conflicts}, nil
	}

	return &MergeResult{Success: true}, nil
}

// AbortMerge discards an in-progress failed merge, returning the base
// line to its pre-merge state.
func (r *Repo) AbortMerge() error {
	if _, err := r.run("merge", "--abort"); err != nil {
		return fmt.Errorf("aborting merge: %w", err)
	}
	return nil
}

// ConflictedFiles lists files left in the unmerged state.
func (r *Repo) ConflictedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("listing conflicted files: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// StageFiles stages the given paths at the repository root.
func (r *Repo) StageFiles(paths []string) error {
	args := append([]string{"add", "--"}, paths...)
	if _, err := r.run(args...); err != nil {
		return fmt.Errorf("staging resolved files: %w", err)
	}
	return nil
}

// CommitMerge completes an in-progress merge commit after conflicts
// have been resolved and staged.
func (r *Repo) CommitMerge() error {
	if _, err := r.run("commit", "--no-edit"); err != nil {
		return fmt.Errorf("completing merge commit: %w", err)
	}
	return nil
}

// parseWorkspaceList parses `git worktree list --porcelain` output.
// Format:
//
//	worktree /path/to/worktree
//	HEAD <commit>
//	branch refs/heads/<branch>
//	<blank line>
func parseWorkspaceList(out string) []*Workspace {
	var workspaces []*Workspace
	var current *Workspace

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "worktree "):
			current = &Workspace{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			branch := strings.TrimPrefix(line, "branch refs/heads/")
			current.Branch = branch
			if strings.HasPrefix(branch, BranchPrefix) {
				current.TaskID = strings.TrimPrefix(branch, BranchPrefix)
				workspaces = append(workspaces, current)
			}
			current = nil
		case line == "":
			current = nil
		}
	}
	return workspaces
}
