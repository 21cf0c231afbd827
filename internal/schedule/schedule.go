// Package schedule computes readiness, cycles, layers, and conflict-free
// batches over the task set. Everything here is a pure function of its
// input; the engine recomputes readiness fresh each round because
// completions change it mid-run.
package schedule

import (
	"github.com/pengelbrecht/weft/internal/task"
)

// Ready returns the ids of tasks that are not done and whose dependencies
// are all done, in store order.
func Ready(tasks []task.Task) []string {
	done := doneSet(tasks)

	var ready []string
	for _, t := range tasks {
		if t.Done {
			continue
		}
		if allDone(t.DependsOn, done) {
			ready = append(ready, t.ID)
		}
	}
	return ready
}

// DetectCycle runs Kahn's algorithm over the dependency relation and
// reports whether a cycle exists. The returned ids are the tasks that
// could not be removed; this is a diagnostic superset that may include
// tasks merely downstream of the cycle.
func DetectCycle(tasks []task.Task) (bool, []string) {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string)
	for _, t := range tasks {
		indegree[t.ID] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var queue []string
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited == len(tasks) {
		return false, nil
	}

	var offending []string
	for _, t := range tasks {
		if indegree[t.ID] > 0 {
			offending = append(offending, t.ID)
		}
	}
	return true, offending
}

// Layers peels the dependency graph with repeated Kahn rounds. Each layer
// holds tasks whose dependencies all lie in earlier layers. Used for the
// plan view only; execution looks at Ready each round instead.
func Layers(tasks []task.Task) [][]string {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string)
	for _, t := range tasks {
		indegree[t.ID] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	remaining := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		remaining[t.ID] = struct{}{}
	}

	var layers [][]string
	for len(remaining) > 0 {
		var layer []string
		for _, t := range tasks {
			if _, ok := remaining[t.ID]; ok && indegree[t.ID] == 0 {
				layer = append(layer, t.ID)
			}
		}
		if len(layer) == 0 {
			// Cycle among the remaining tasks; stop peeling.
			break
		}
		for _, id := range layer {
			delete(remaining, id)
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
		layers = append(layers, layer)
	}
	return layers
}

// ConflictFreeBatches splits the ready set into ordered batches such that
// no two tasks in one batch declare an overlapping touched file. Greedy
// first-fit in store order: a task joins the current batch unless one of
// its advisory files is already claimed there, in which case it is
// deferred to a later batch. Declared disjointness is a heuristic, not a
// guarantee of content-level non-interference; real conflicts still go
// through the merge path.
func ConflictFreeBatches(tasks []task.Task, readyIDs []string) [][]string {
	byID := make(map[string]*task.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	pending := make([]string, 0, len(readyIDs))
	for _, id := range readyIDs {
		if _, ok := byID[id]; ok {
			pending = append(pending, id)
		}
	}

	var batches [][]string
	for len(pending) > 0 {
		claimed := make(map[string]struct{})
		var batch []string
		var deferred []string

		for _, id := range pending {
			files := byID[id].TouchedFiles()
			if overlaps(files, claimed) {
				deferred = append(deferred, id)
				continue
			}
			for _, f := range files {
				claimed[f] = struct{}{}
			}
			batch = append(batch, id)
		}

		batches = append(batches, batch)
		pending = deferred
	}
	return batches
}

// UnmetDependencies returns, for each not-done task, the dependencies
// that are not done either. Used to report the blocked set when the
// ready set is empty but work remains.
func UnmetDependencies(tasks []task.Task) map[string][]string {
	done := doneSet(tasks)

	blocked := make(map[string][]string)
	for _, t := range tasks {
		if t.Done {
			continue
		}
		var unmet []string
		for _, dep := range t.DependsOn {
			if _, ok := done[dep]; !ok {
				unmet = append(unmet, dep)
			}
		}
		if len(unmet) > 0 {
			blocked[t.ID] = unmet
		}
	}
	return blocked
}

func doneSet(tasks []task.Task) map[string]struct{} {
	done := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.Done {
			done[t.ID] = struct{}{}
		}
	}
	return done
}

func allDone(deps []string, done map[string]struct{}) bool {
	for _, dep := range deps {
		if _, ok := done[dep]; !ok {
			return false
		}
	}
	return true
}

func overlaps(files []string, claimed map[string]struct{}) bool {
	for _, f := range files {
		if _, ok := claimed[f]; ok {
			return true
		}
	}
	return false
}
