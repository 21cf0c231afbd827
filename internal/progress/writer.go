package progress

import "io"

// CountingWriter forwards writes to an underlying writer and reports
// the byte count to the tracker. It gives the live display an output
// size without the display ever reading the log files.
type CountingWriter struct {
	taskID  string
	tracker *Tracker
	dst     io.Writer
}

// NewCountingWriter wraps dst so writes are counted against taskID.
func NewCountingWriter(tracker *Tracker, taskID string, dst io.Writer) *CountingWriter {
	return &CountingWriter{taskID: taskID, tracker: tracker, dst: dst}
}

func (w *CountingWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.tracker.AddBytes(w.taskID, int64(n))
	}
	return n, err
}
