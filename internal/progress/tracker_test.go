package progress

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestTracker_AddAndSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Add("b", "Second", "/logs/b.log")
	tr.Add("a", "First", "/logs/a.log")

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() = %d entries, want 2", len(snap))
	}
	if snap[0].TaskID != "b" || snap[1].TaskID != "a" {
		t.Errorf("snapshot order = %s,%s; want insertion order b,a", snap[0].TaskID, snap[1].TaskID)
	}
	if snap[0].Status != StatusPending {
		t.Errorf("initial status = %s, want %s", snap[0].Status, StatusPending)
	}
}

func TestTracker_StatusTransitions(t *testing.T) {
	tr := NewTracker()
	tr.Add("a", "Task", "")

	tr.SetStatus("a", StatusRunning)
	snap := tr.Snapshot()
	if snap[0].Started.IsZero() {
		t.Error("Started should be stamped on running")
	}

	tr.SetStatus("a", StatusMerging)
	tr.SetStatus("a", StatusCompleted)
	snap = tr.Snapshot()
	if snap[0].Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", snap[0].Status, StatusCompleted)
	}
	if snap[0].Ended.IsZero() {
		t.Error("Ended should be stamped on completion")
	}
	if snap[0].Elapsed() <= 0 {
		t.Error("Elapsed() should be positive for a finished task")
	}
}

func TestTracker_SetError(t *testing.T) {
	tr := NewTracker()
	tr.Add("a", "Task", "")

	wantErr := errors.New("agent exploded")
	tr.SetError("a", wantErr)
	tr.SetStatus("a", StatusFailed)

	snap := tr.Snapshot()
	if !errors.Is(snap[0].Err, wantErr) {
		t.Errorf("Err = %v, want %v", snap[0].Err, wantErr)
	}
}

func TestTracker_UnknownIDIsIgnored(t *testing.T) {
	tr := NewTracker()
	tr.SetStatus("ghost", StatusRunning)
	tr.AddBytes("ghost", 42)
	tr.SetError("ghost", errors.New("x"))

	if len(tr.Snapshot()) != 0 {
		t.Error("operations on unknown ids must not create entries")
	}
}

func TestTracker_ConcurrentWritersOneReader(t *testing.T) {
	tr := NewTracker()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		tr.Add(id, id, "")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			tr.SetStatus(id, StatusRunning)
			for i := 0; i < 1000; i++ {
				tr.AddBytes(id, 1)
			}
			tr.SetStatus(id, StatusCompleted)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = tr.Snapshot()
			_ = tr.Counts()
		}
	}()

	wg.Wait()
	<-done

	for _, e := range tr.Snapshot() {
		if e.Bytes != 1000 {
			t.Errorf("task %s Bytes = %d, want 1000", e.TaskID, e.Bytes)
		}
	}

	counts := tr.Counts()
	if counts[StatusCompleted] != len(ids) {
		t.Errorf("completed = %d, want %d", counts[StatusCompleted], len(ids))
	}
}

func TestCountingWriter(t *testing.T) {
	tr := NewTracker()
	tr.Add("a", "Task", "")

	var buf bytes.Buffer
	w := NewCountingWriter(tr, "a", &buf)

	if _, err := w.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if buf.String() != "hello world" {
		t.Errorf("dst = %q, want %q", buf.String(), "hello world")
	}
	if got := tr.Snapshot()[0].Bytes; got != 11 {
		t.Errorf("Bytes = %d, want 11", got)
	}
}
