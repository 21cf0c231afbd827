package conflict

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeIn(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_DetectsOverlap(t *testing.T) {
	wsA := t.TempDir()
	wsB := t.TempDir()

	overlapCh := make(chan FileOverlap, 1)
	w, err := New(func(o FileOverlap) { overlapCh <- o })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.AddWorkspace("a", wsA); err != nil {
		t.Fatalf("AddWorkspace(a) error = %v", err)
	}
	if err := w.AddWorkspace("b", wsB); err != nil {
		t.Fatalf("AddWorkspace(b) error = %v", err)
	}

	writeIn(t, wsA, "shared.txt", "from a")
	writeIn(t, wsB, "shared.txt", "from b")

	select {
	case overlap := <-overlapCh:
		if overlap.RelativePath != "shared.txt" {
			t.Errorf("RelativePath = %q, want %q", overlap.RelativePath, "shared.txt")
		}
		if len(overlap.TaskIDs) != 2 {
			t.Errorf("TaskIDs = %v, want both workspaces", overlap.TaskIDs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no overlap reported")
	}

	overlaps := w.Overlaps()
	if len(overlaps) != 1 {
		t.Errorf("Overlaps() = %d, want 1", len(overlaps))
	}
}

func TestWatcher_DisjointFilesNoOverlap(t *testing.T) {
	wsA := t.TempDir()
	wsB := t.TempDir()

	w, err := New(func(o FileOverlap) {
		t.Errorf("unexpected overlap: %+v", o)
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.AddWorkspace("a", wsA); err != nil {
		t.Fatalf("AddWorkspace(a) error = %v", err)
	}
	if err := w.AddWorkspace("b", wsB); err != nil {
		t.Fatalf("AddWorkspace(b) error = %v", err)
	}

	writeIn(t, wsA, "a.txt", "content")
	writeIn(t, wsB, "b.txt", "content")

	// Give events time to arrive; both files were seen but neither
	// overlaps.
	waitFor(t, 500*time.Millisecond, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.modified) >= 2
	})

	if overlaps := w.Overlaps(); len(overlaps) != 0 {
		t.Errorf("Overlaps() = %v, want none", overlaps)
	}
}

func TestWatcher_IgnoresGitDir(t *testing.T) {
	ws := t.TempDir()

	w, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := os.MkdirAll(filepath.Join(ws, ".git"), 0755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := w.AddWorkspace("a", ws); err != nil {
		t.Fatalf("AddWorkspace() error = %v", err)
	}

	writeIn(t, ws, filepath.Join(".git", "index"), "git internals")

	time.Sleep(200 * time.Millisecond)
	w.mu.Lock()
	_, tracked := w.modified[".git/index"]
	w.mu.Unlock()
	if tracked {
		t.Error("writes under .git must not be tracked")
	}
}

func TestIgnoredPath(t *testing.T) {
	tests := []struct {
		rel  string
		want bool
	}{
		{".git/index", true},
		{"src/.weft/logs/x", true},
		{"node_modules/pkg/index.js", true},
		{"src/main.go", false},
	}
	for _, tt := range tests {
		if got := ignoredPath(tt.rel); got != tt.want {
			t.Errorf("ignoredPath(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
