package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// HeadlessOutput formats run progress for non-interactive use,
// optimized for log capture and LLM consumption. Supports a
// human-readable format with [PREFIX] tags (default) and JSON Lines.
type HeadlessOutput struct {
	jsonl  bool
	writer io.Writer
}

// NewHeadlessOutput creates a headless output formatter writing to
// stdout.
func NewHeadlessOutput(jsonl bool) *HeadlessOutput {
	return &HeadlessOutput{jsonl: jsonl, writer: os.Stdout}
}

// SetWriter sets a custom writer (mainly for testing).
func (h *HeadlessOutput) SetWriter(w io.Writer) {
	h.writer = w
}

// Start outputs the beginning of a run.
func (h *HeadlessOutput) Start(project string, total, remaining int, parallel bool) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":      "start",
			"project":   project,
			"total":     total,
			"remaining": remaining,
			"parallel":  parallel,
		})
		return
	}
	mode := "sequential"
	if parallel {
		mode = "parallel"
	}
	fmt.Fprintf(h.writer, "[START] %s: %d/%d tasks remaining (%s)\n", project, remaining, total, mode)
}

// Round outputs the tasks selected for a scheduling round.
func (h *HeadlessOutput) Round(n int, ids []string) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":  "round",
			"round": n,
			"tasks": ids,
		})
		return
	}
	fmt.Fprintf(h.writer, "[ROUND %d] %s\n", n, strings.Join(ids, ", "))
}

// Task outputs the start of a task.
func (h *HeadlessOutput) Task(id, title string, isolated bool) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":     "task",
			"task_id":  id,
			"title":    title,
			"isolated": isolated,
		})
		return
	}
	where := ""
	if isolated {
		where = " (isolated)"
	}
	fmt.Fprintf(h.writer, "[TASK] %s - %s%s\n", id, title, where)
}

// Merging outputs the start of a workspace merge.
func (h *HeadlessOutput) Merging(id string) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":    "merging",
			"task_id": id,
		})
		return
	}
	fmt.Fprintf(h.writer, "[MERGE] %s\n", id)
}

// Conflict outputs a merge conflict and the strategy applied to it.
func (h *HeadlessOutput) Conflict(id string, files []string, strategy Strategy) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":     "conflict",
			"task_id":  id,
			"files":    files,
			"strategy": string(strategy),
		})
		return
	}
	fmt.Fprintf(h.writer, "[CONFLICT] %s: %s (strategy: %s)\n", id, strings.Join(files, ", "), strategy)
}

// Retrying outputs that a task will re-run sequentially after its merge
// was aborted.
func (h *HeadlessOutput) Retrying(id string) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":    "retrying",
			"task_id": id,
		})
		return
	}
	fmt.Fprintf(h.writer, "[RETRY] %s: merge aborted, re-running sequentially\n", id)
}

// Overlap outputs an advisory warning that two live workspaces touched
// the same file.
func (h *HeadlessOutput) Overlap(path string, ids []string) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":  "overlap",
			"file":  path,
			"tasks": ids,
		})
		return
	}
	fmt.Fprintf(h.writer, "[WARN] %s modified by %s\n", path, strings.Join(ids, " and "))
}

// TaskComplete outputs task completion.
func (h *HeadlessOutput) TaskComplete(id string) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":    "task_complete",
			"task_id": id,
		})
		return
	}
	fmt.Fprintf(h.writer, "[DONE] %s\n", id)
}

// TaskFailed outputs a task failure.
func (h *HeadlessOutput) TaskFailed(id string, err error) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":    "task_failed",
			"task_id": id,
			"error":   err.Error(),
		})
		return
	}
	fmt.Fprintf(h.writer, "[FAILED] %s: %s\n", id, err.Error())
}

// Refused outputs a precondition refusal; no work was started.
func (h *HeadlessOutput) Refused(err error) {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{
			"type":  "refused",
			"error": err.Error(),
		})
		return
	}
	fmt.Fprintf(h.writer, "[REFUSED] %s\n", err.Error())
}

// Interrupted outputs that the run was cancelled.
func (h *HeadlessOutput) Interrupted() {
	if h.jsonl {
		h.writeJSON(map[string]interface{}{"type": "interrupted"})
		return
	}
	fmt.Fprintf(h.writer, "\n[INTERRUPTED] run cancelled\n")
}

// Complete outputs the final summary.
func (h *HeadlessOutput) Complete(result *RunResult) {
	if h.jsonl {
		failed := make([]string, 0, len(result.Failed))
		for id := range result.Failed {
			failed = append(failed, id)
		}
		h.writeJSON(map[string]interface{}{
			"type":        "complete",
			"completed":   len(result.Completed),
			"failed":      failed,
			"rounds":      result.Rounds,
			"duration_ms": result.Duration.Milliseconds(),
			"exit_code":   result.ExitCode,
		})
		return
	}
	fmt.Fprintf(h.writer, "[COMPLETE] %d completed, %d failed in %d rounds (%v)\n",
		len(result.Completed), len(result.Failed), result.Rounds, result.Duration.Round(1e9))
	for id, unmet := range result.Blocked {
		fmt.Fprintf(h.writer, "[BLOCKED] %s waiting on %s\n", id, strings.Join(unmet, ", "))
	}
}

// writeJSON writes a JSON object as a single line.
func (h *HeadlessOutput) writeJSON(data map[string]interface{}) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintln(h.writer, string(b))
}
