// Package git is the version-control adapter: every operation shells out
// to the git CLI against a working tree and reports exit status and
// output. It also owns the isolated-workspace lifecycle used for
// parallel execution.
package git

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotGitRepo is returned when the directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// Repo wraps git operations rooted at a directory.
type Repo struct {
	root string
}

// New creates a Repo for the given directory. The directory does not
// need to be a repository yet; EnsureInitialized will create one.
func New(root string) *Repo {
	return &Repo{root: root}
}

// Open creates a Repo and verifies the directory is a git repository.
func Open(root string) (*Repo, error) {
	r := New(root)
	if !r.IsRepo() {
		return nil, ErrNotGitRepo
	}
	return r, nil
}

// Root returns the repository root directory.
func (r *Repo) Root() string {
	return r.root
}

// IsRepo reports whether the directory contains a git repository.
// .git can be a directory (normal repo) or a file (worktree).
func (r *Repo) IsRepo() bool {
	info, err := os.Stat(filepath.Join(r.root, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir() || info.Mode().IsRegular()
}

// EnsureInitialized initializes a repository if none exists.
func (r *Repo) EnsureInitialized() error {
	if r.IsRepo() {
		return nil
	}
	if _, err := r.run("init"); err != nil {
		return fmt.Errorf("initializing repository: %w", err)
	}
	return nil
}

// HasCommits reports whether the repository has at least one revision.
func (r *Repo) HasCommits() bool {
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "HEAD")
	cmd.Dir = r.root
	return cmd.Run() == nil
}

// EnsureCommit creates an empty checkpoint revision when the history is
// empty. Workspace creation needs a starting point to branch from.
func (r *Repo) EnsureCommit() error {
	if r.HasCommits() {
		return nil
	}
	if _, err := r.run("commit", "--allow-empty", "-m", "chore: initialize repository"); err != nil {
		return fmt.Errorf("creating checkpoint commit: %w", err)
	}
	return nil
}

// CurrentBranch returns the name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	out, err := r.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Checkout switches the working tree to the given branch.
func (r *Repo) Checkout(branch string) error {
	if _, err := r.run("checkout", branch); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	return nil
}

// branchExists checks if a local branch exists.
func (r *Repo) branchExists(branch string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = r.root
	return cmd.Run() == nil
}

// deleteBranch force-deletes a local branch if it exists.
func (r *Repo) deleteBranch(branch string) error {
	if !r.branchExists(branch) {
		return nil
	}
	if _, err := r.run("branch", "-D", branch); err != nil {
		return fmt.Errorf("deleting branch %s: %w", branch, err)
	}
	return nil
}

// EnsureGitignore makes sure the weft metadata directory is ignored so
// workspaces and logs never end up in a commit. Returns true if the
// gitignore was created or modified.
func (r *Repo) EnsureGitignore() (bool, error) {
	const entry = ".weft/"
	path := filepath.Join(r.root, ".gitignore")

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return true, nil
}

// run executes a git command at the repository root and returns its
// combined output.
func (r *Repo) run(args ...string) (string, error) {
	return r.runIn(r.root, args...)
}

// runIn executes a git command in the given directory.
func (r *Repo) runIn(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		return text, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), text, err)
	}
	return text, nil
}
