package task

// Task represents a single schedulable work item.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Done        bool      `json:"done"`
	Prompt      string    `json:"prompt,omitempty"`
	DependsOn   []string  `json:"dependsOn,omitempty"`
	Creates     []string  `json:"creates,omitempty"`
	Modifies    []string  `json:"modifies,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
}

// Subtask is a finer-grained checkpoint under a task. Subtasks are
// bookkeeping only; the scheduler never sees them.
type Subtask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Project holds display metadata for the task file.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// ParallelSettings controls batched execution.
type ParallelSettings struct {
	Enabled          bool   `json:"enabled"`
	MaxConcurrency   int    `json:"maxConcurrency,omitempty"`
	ConflictStrategy string `json:"conflictStrategy,omitempty"`
}

// Settings holds workflow settings from the task file.
type Settings struct {
	AutoCommit     bool             `json:"autoCommit"`
	CommitTemplate string           `json:"commitTemplate,omitempty"`
	Parallel       ParallelSettings `json:"parallel,omitempty"`
}

// File is the on-disk task document.
type File struct {
	Project  Project  `json:"project"`
	Tasks    []Task   `json:"tasks"`
	Settings Settings `json:"settings"`
}

// TouchedFiles returns the union of the task's advisory file lists.
// The result is de-duplicated and preserves first-seen order.
// These paths are hints for conflict estimation only; nothing enforces
// them against the files the agent actually changes.
func (t *Task) TouchedFiles() []string {
	seen := make(map[string]struct{}, len(t.Creates)+len(t.Modifies))
	var files []string
	for _, list := range [][]string{t.Creates, t.Modifies} {
		for _, f := range list {
			if f == "" {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			files = append(files, f)
		}
	}
	return files
}

// HasPrompt reports whether the task carries an instruction for the agent.
// A task without a prompt is a no-op that only advances state.
func (t *Task) HasPrompt() bool {
	return t.Prompt != ""
}

// IsDone reports whether the task is complete.
func (t *Task) IsDone() bool {
	return t.Done
}
