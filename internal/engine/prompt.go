package engine

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pengelbrecht/weft/internal/task"
)

// PromptBuilder renders the prompts handed to the agent: one for
// executing a task, one for resolving a conflicted merge.
type PromptBuilder struct {
	taskTmpl     *template.Template
	conflictTmpl *template.Template
}

// NewPromptBuilder creates a PromptBuilder with the default templates.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		taskTmpl:     template.Must(template.New("task").Parse(taskPromptTemplate)),
		conflictTmpl: template.Must(template.New("conflict").Parse(conflictPromptTemplate)),
	}
}

// TaskPrompt builds the prompt for executing a task.
func (pb *PromptBuilder) TaskPrompt(t *task.Task) string {
	data := taskPromptData{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Phase:       t.Phase,
		Prompt:      t.Prompt,
		Files:       t.TouchedFiles(),
	}
	var buf strings.Builder
	if err := pb.taskTmpl.Execute(&buf, data); err != nil {
		// Only reachable with a broken template constant.
		return fmt.Sprintf("error generating prompt: %v", err)
	}
	return buf.String()
}

// ConflictPrompt builds the prompt for agent-assisted conflict
// resolution. The merge is left in progress; the agent edits the
// conflicted files in the base working tree.
func (pb *PromptBuilder) ConflictPrompt(t *task.Task, branch, base string, conflicts []string) string {
	data := conflictPromptData{
		TaskID:    t.ID,
		TaskTitle: t.Title,
		Prompt:    t.Prompt,
		Branch:    branch,
		Base:      base,
		Conflicts: conflicts,
	}
	var buf strings.Builder
	if err := pb.conflictTmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("error generating prompt: %v", err)
	}
	return buf.String()
}

type taskPromptData struct {
	ID          string
	Title       string
	Description string
	Phase       string
	Prompt      string
	Files       []string
}

type conflictPromptData struct {
	TaskID    string
	TaskTitle string
	Prompt    string
	Branch    string
	Base      string
	Conflicts []string
}

const taskPromptTemplate = `# Task: {{.Title}}

**ID:** {{.ID}}
{{- if .Phase}}
**Phase:** {{.Phase}}
{{- end}}
{{if .Description}}
{{.Description}}
{{end}}
## Instructions

{{.Prompt}}
{{if .Files}}
## Expected files

This task is expected to create or modify:
{{range .Files}}- {{.}}
{{end}}{{end}}
## Rules

1. **Work only in the current directory** - All changes stay inside this working tree.
2. **No questions** - You are autonomous. Make reasonable decisions from the context provided.
3. **Do not commit** - The orchestrator commits on your behalf when the task finishes.
4. **Run tests where they exist** - Leave the tree in a working state.

Begin working on the task now.
`

const conflictPromptTemplate = `# Resolve Merge Conflicts

Merging branch {{.Branch}} into {{.Base}} stopped on conflicts. The
merge is still in progress in the current directory.

## Conflicted files
{{range .Conflicts}}- {{.}}
{{end}}
## Context of the change being merged

**[{{.TaskID}}] {{.TaskTitle}}**

{{.Prompt}}

## Instructions

1. Edit each conflicted file and reconcile both sides so the intent of
   the change above is preserved alongside the existing work.
2. Remove every conflict marker (<<<<<<<, =======, >>>>>>>).
3. **Do not commit and do not abort the merge** - The orchestrator
   completes the merge after you finish.
`
