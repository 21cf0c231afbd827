package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `{
  "project": {"name": "demo", "version": "0.1.0"},
  "tasks": [
    {"id": "t1", "title": "First", "prompt": "do first", "creates": ["a.go"]},
    {"id": "t2", "title": "Second", "prompt": "do second", "dependsOn": ["t1"],
     "modifies": ["a.go", "b.go"],
     "subtasks": [{"title": "part one", "done": false}]},
    {"id": "t3", "title": "Third", "dependsOn": ["t1", "ghost"]}
  ],
  "settings": {
    "autoCommit": true,
    "commitTemplate": "feat({taskId}): {taskTitle}",
    "parallel": {"enabled": true, "maxConcurrency": 3, "conflictStrategy": "abort"}
  }
}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))
	return path
}

func TestLoad(t *testing.T) {
	store, err := Load(writeSample(t))
	require.NoError(t, err)

	tasks := store.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "demo", store.Project().Name)

	settings := store.Settings()
	assert.True(t, settings.AutoCommit)
	assert.Equal(t, 3, settings.Parallel.MaxConcurrency)
	assert.Equal(t, "abort", settings.Parallel.ConflictStrategy)
}

func TestLoad_DropsUnknownDependencies(t *testing.T) {
	store, err := Load(writeSample(t))
	require.NoError(t, err)

	t3 := store.Get("t3")
	require.NotNil(t, t3)
	assert.Equal(t, []string{"t1"}, t3.DependsOn, "dependency on missing id should be dropped")
}

func TestLoad_DuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	doc := `{"tasks": [{"id": "x", "title": "a"}, {"id": "x", "title": "b"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestLoad_MissingTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(`{"project": {"name": "x"}}`), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoTasks)
}

func TestTouchedFiles_Union(t *testing.T) {
	tk := Task{
		Creates:  []string{"a.go", "b.go"},
		Modifies: []string{"b.go", "c.go"},
	}
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, tk.TouchedFiles())
}

func TestMarkDone_Idempotent(t *testing.T) {
	store, err := Load(writeSample(t))
	require.NoError(t, err)

	store.MarkDone("t2")
	first := store.Tasks()

	store.MarkDone("t2")
	second := store.Tasks()

	assert.Equal(t, first, second, "marking a done task done again must not change state")

	t2 := store.Get("t2")
	require.NotNil(t, t2)
	assert.True(t, t2.Done)
	require.Len(t, t2.Subtasks, 1)
	assert.True(t, t2.Subtasks[0].Done, "subtasks follow the task")
}

func TestResetAll(t *testing.T) {
	store, err := Load(writeSample(t))
	require.NoError(t, err)

	store.MarkDone("t1")
	store.MarkDone("t2")
	store.ResetAll()

	for _, tk := range store.Tasks() {
		assert.False(t, tk.Done, "task %s should be reset", tk.ID)
		for _, st := range tk.Subtasks {
			assert.False(t, st.Done)
		}
	}
}

func TestSave_Deterministic(t *testing.T) {
	path := writeSample(t)
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.Save())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Save())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second, "save with no mutation must be byte-identical")
}

func TestSave_RoundTrips(t *testing.T) {
	path := writeSample(t)
	store, err := Load(path)
	require.NoError(t, err)

	store.MarkDone("t1")
	require.NoError(t, store.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	t1 := reloaded.Get("t1")
	require.NotNil(t, t1)
	assert.True(t, t1.Done)
}

func TestSave_FailureLeavesOriginalIntact(t *testing.T) {
	path := writeSample(t)
	store, err := Load(path)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Force the validation step to fail by dropping the tasks list.
	store.mu.Lock()
	store.file.Tasks = nil
	store.mu.Unlock()

	require.Error(t, store.Save())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed save must not touch the original")

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompleteAndSave_ReloadsFromDisk(t *testing.T) {
	path := writeSample(t)
	store, err := Load(path)
	require.NoError(t, err)

	// Simulate an out-of-process edit: another writer marks t1 done.
	other, err := Load(path)
	require.NoError(t, err)
	other.MarkDone("t1")
	require.NoError(t, other.Save())

	require.NoError(t, store.CompleteAndSave([]string{"t2"}))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Get("t1").Done, "external edit must survive")
	assert.True(t, reloaded.Get("t2").Done)
	assert.False(t, reloaded.Get("t3").Done)
}
