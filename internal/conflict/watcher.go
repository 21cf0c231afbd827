// Package conflict watches live workspaces during a batch and records
// files actually modified by more than one of them. The declared-file
// batching is only a heuristic; this watcher is its observed
// counterpart. Findings are advisory: they surface a warning and never
// block execution; real conflicts are still handled by the merge path.
package conflict

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ignoreDirs are directory names never watched inside a workspace.
var ignoreDirs = []string{".git", ".weft", "node_modules"}

// FileOverlap records a file modified by multiple workspaces.
type FileOverlap struct {
	RelativePath string
	TaskIDs      []string
	LastModified time.Time
}

// Watcher observes file modifications across workspaces and reports
// overlaps.
type Watcher struct {
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	workspaces map[string]string               // task id -> workspace root
	modified   map[string]map[string]time.Time // relative path -> task id -> time
	reported   map[string]struct{}

	onOverlap func(FileOverlap)
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a watcher. onOverlap is invoked (from the watcher
// goroutine) the first time each file is seen modified by a second
// workspace; it may be nil.
func New(onOverlap func(FileOverlap)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:    fw,
		workspaces: make(map[string]string),
		modified:   make(map[string]map[string]time.Time),
		reported:   make(map[string]struct{}),
		onOverlap:  onOverlap,
		done:       make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// AddWorkspace starts watching a workspace tree for the given task.
func (w *Watcher) AddWorkspace(taskID, root string) error {
	w.mu.Lock()
	w.workspaces[taskID] = root
	w.mu.Unlock()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !d.IsDir() {
			return nil
		}
		if ignored(d.Name()) {
			return filepath.SkipDir
		}
		_ = w.watcher.Add(path)
		return nil
	})
}

// RemoveWorkspace stops attributing events to the given task.
func (w *Watcher) RemoveWorkspace(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.workspaces, taskID)
}

// Overlaps returns all overlaps observed so far.
func (w *Watcher) Overlaps() []FileOverlap {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []FileOverlap
	for rel, byTask := range w.modified {
		if len(byTask) < 2 {
			continue
		}
		overlap := FileOverlap{RelativePath: rel}
		for id, ts := range byTask {
			overlap.TaskIDs = append(overlap.TaskIDs, id)
			if ts.After(overlap.LastModified) {
				overlap.LastModified = ts
			}
		}
		out = append(out, overlap)
	}
	return out
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// Watch newly created directories so deeper writes are seen.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !ignored(filepath.Base(ev.Name)) {
				_ = w.watcher.Add(ev.Name)
			}
			return
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	taskID, rel := w.attribute(ev.Name)
	if taskID == "" || ignoredPath(rel) {
		return
	}

	byTask, ok := w.modified[rel]
	if !ok {
		byTask = make(map[string]time.Time)
		w.modified[rel] = byTask
	}
	byTask[taskID] = time.Now()

	if len(byTask) >= 2 {
		if _, seen := w.reported[rel]; !seen {
			w.reported[rel] = struct{}{}
			if w.onOverlap != nil {
				overlap := FileOverlap{RelativePath: rel, LastModified: time.Now()}
				for id := range byTask {
					overlap.TaskIDs = append(overlap.TaskIDs, id)
				}
				go w.onOverlap(overlap)
			}
		}
	}
}

// attribute maps an absolute event path to the owning workspace and
// the path relative to its root, which makes the same file comparable
// across workspaces.
func (w *Watcher) attribute(path string) (string, string) {
	for id, root := range w.workspaces {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return id, filepath.ToSlash(rel)
		}
	}
	return "", ""
}

func ignored(name string) bool {
	for _, d := range ignoreDirs {
		if name == d {
			return true
		}
	}
	return false
}

func ignoredPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if ignored(part) {
			return true
		}
	}
	return false
}
