// Package logging provides structured logging for weft runs. It wraps
// log/slog to write JSON-formatted logs under the run directory, plus
// per-task transcript files owned exclusively by the executing task.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogDir is the directory under .weft that holds run logs and task
// transcripts.
const LogDir = ".weft/logs"

// ParseLevel converts a level name to a slog.Level. Unknown names
// default to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RunLogger holds the run-scoped slog logger and its backing file.
type RunLogger struct {
	*slog.Logger
	file *os.File
	dir  string
}

// NewRunLogger creates a JSON logger writing to
// <root>/.weft/logs/run-<timestamp>.log. If root is empty, logs go to
// stderr.
func NewRunLogger(root string, level string) (*RunLogger, error) {
	var w io.Writer = os.Stderr
	var file *os.File
	dir := ""

	if root != "" {
		dir = filepath.Join(root, LogDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		name := fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
		w = f
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &RunLogger{
		Logger: slog.New(handler),
		file:   file,
		dir:    dir,
	}, nil
}

// TaskLogPath returns the transcript path for a task. The file is
// written only by that task's executing goroutine.
func (l *RunLogger) TaskLogPath(taskID string) string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, taskID+".log")
}

// OpenTaskLog opens (truncating) the transcript file for a task.
// Returns a discard writer when logging is stderr-only.
func (l *RunLogger) OpenTaskLog(taskID string) (io.WriteCloser, string, error) {
	path := l.TaskLogPath(taskID)
	if path == "" {
		return nopWriteCloser{io.Discard}, "", nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening task log %s: %w", taskID, err)
	}
	return f, path, nil
}

// Close closes the backing log file, if any.
func (l *RunLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
