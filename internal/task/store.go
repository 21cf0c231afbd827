// Package task provides the durable task store: a validated JSON document
// holding every work item, its dependencies, and workflow settings. Saves
// are atomic so a failed write never corrupts the previous state.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFilename is the default task file name.
const DefaultFilename = "weft.json"

// ErrNoTasks is returned when the task file contains no tasks list.
var ErrNoTasks = errors.New("task file has no tasks")

// ErrDuplicateID is returned when two tasks share an id.
var ErrDuplicateID = errors.New("duplicate task id")

// Store owns the task file. All mutation of persisted state goes through
// the store's lock; concurrent agent executions never touch it directly.
type Store struct {
	path string

	mu   sync.Mutex
	file *File
}

// Load reads and validates the task file at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	file, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	return &Store{path: path, file: file}, nil
}

// parse decodes and validates a task document.
func parse(data []byte) (*File, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Tasks == nil {
		return nil, ErrNoTasks
	}

	seen := make(map[string]struct{}, len(file.Tasks))
	for i := range file.Tasks {
		t := &file.Tasks[i]
		if t.ID == "" {
			return nil, fmt.Errorf("task %d has an empty id", i)
		}
		if _, ok := seen[t.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		seen[t.ID] = struct{}{}
	}

	// Dependencies on ids that don't exist are dropped rather than
	// rejected: the relation is restricted to ids that exist.
	for i := range file.Tasks {
		t := &file.Tasks[i]
		var kept []string
		for _, dep := range t.DependsOn {
			if _, ok := seen[dep]; ok {
				kept = append(kept, dep)
			}
		}
		t.DependsOn = kept
	}

	return &file, nil
}

// Path returns the task file path.
func (s *Store) Path() string {
	return s.path
}

// Tasks returns a copy of the task list in store order.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.file.Tasks))
	copy(out, s.file.Tasks)
	return out
}

// Settings returns the workflow settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Settings
}

// Project returns the project metadata.
func (s *Store) Project() Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Project
}

// Get returns the task with the given id, or nil.
func (s *Store) Get(id string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.file.Tasks {
		if s.file.Tasks[i].ID == id {
			t := s.file.Tasks[i]
			return &t
		}
	}
	return nil
}

// MarkDone marks a task and all its subtasks done in memory.
// Marking an already-done task is a no-op.
func (s *Store) MarkDone(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDoneLocked(id)
}

func (s *Store) markDoneLocked(id string) {
	for i := range s.file.Tasks {
		t := &s.file.Tasks[i]
		if t.ID != id {
			continue
		}
		t.Done = true
		for j := range t.Subtasks {
			t.Subtasks[j].Done = true
		}
		return
	}
}

// ResetAll marks every task and subtask not done.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.file.Tasks {
		t := &s.file.Tasks[i]
		t.Done = false
		for j := range t.Subtasks {
			t.Subtasks[j].Done = false
		}
	}
}

// Save atomically writes the store to disk. The document is serialized to
// a temporary file in the same directory, read back and validated, then
// renamed over the original. A failure at any step discards the temporary
// file and leaves the previous file untouched.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling task file: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".weft-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Verify the temp file round-trips before it replaces the original.
	written, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("re-reading temp file: %w", err)
	}
	if _, err := parse(written); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("validating temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing task file: %w", err)
	}
	return nil
}

// CompleteAndSave marks the given tasks done and persists, all under the
// store lock. The file is reloaded from disk first so edits made by agent
// processes in their own working copies are not clobbered.
func (s *Store) CompleteAndSave(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err == nil {
		if fresh, perr := parse(data); perr == nil {
			s.file = fresh
		}
	}

	for _, id := range ids {
		s.markDoneLocked(id)
	}
	return s.saveLocked()
}
