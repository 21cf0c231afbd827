package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultCommitTemplate is used when the task file doesn't set one.
const DefaultCommitTemplate = "feat({taskId}): {taskTitle}"

// sensitivePatterns are glob patterns never staged by Commit.
// Matched against the base name and the full relative path.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"id_rsa*",
	"id_ed25519*",
	"credentials*",
	"secrets*",
	"*.p12",
	"*.pfx",
}

// CommitResult reports what a commit attempt did.
type CommitResult struct {
	// Committed is false when there was nothing to commit, which is a
	// benign no-op, not an error.
	Committed bool

	// SensitiveSkipped lists files excluded by the deny-list. Their
	// presence is a warning, never a failure.
	SensitiveSkipped []string
}

// Commit stages all changes in dir except deny-listed sensitive paths
// and commits with a message built from the template by substituting
// {taskId} and {taskTitle}. An empty dir commits at the repo root.
func (r *Repo) Commit(taskID, title, template, dir string) (*CommitResult, error) {
	if dir == "" {
		dir = r.root
	}
	result := &CommitResult{}

	if _, err := r.runIn(dir, "add", "-A"); err != nil {
		return nil, fmt.Errorf("staging changes: %w", err)
	}

	skipped, err := r.unstageSensitive(dir)
	if err != nil {
		return nil, err
	}
	result.SensitiveSkipped = skipped

	// Nothing staged is a no-op, not an error.
	check := exec.Command("git", "diff", "--cached", "--quiet")
	check.Dir = dir
	if check.Run() == nil {
		return result, nil
	}

	msg := CommitMessage(template, taskID, title)
	if _, err := r.runIn(dir, "commit", "-m", msg); err != nil {
		return nil, fmt.Errorf("committing %s: %w", taskID, err)
	}

	result.Committed = true
	return result, nil
}

// unstageSensitive removes deny-listed paths from the index and
// returns the files that were skipped.
func (r *Repo) unstageSensitive(dir string) ([]string, error) {
	out, err := r.runIn(dir, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("inspecting index: %w", err)
	}

	var skipped []string
	for _, path := range strings.Split(out, "\n") {
		path = strings.TrimSpace(path)
		if path == "" || !isSensitive(path) {
			continue
		}
		if _, err := r.runIn(dir, "reset", "-q", "HEAD", "--", path); err != nil {
			return nil, fmt.Errorf("unstaging sensitive file %s: %w", path, err)
		}
		skipped = append(skipped, path)
	}
	return skipped, nil
}

// isSensitive reports whether a path matches the deny-list.
func isSensitive(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range sensitivePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// CommitMessage builds a commit message from a template, substituting
// the {taskId} and {taskTitle} placeholders.
func CommitMessage(template, taskID, title string) string {
	if template == "" {
		template = DefaultCommitTemplate
	}
	msg := strings.ReplaceAll(template, "{taskId}", taskID)
	return strings.ReplaceAll(msg, "{taskTitle}", title)
}
