// Package audit records every memory-pressure run as JSON lines, so the
// pressure a system was put under can be correlated with what monitoring saw.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Event represents an audit log event
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Type         string            `json:"type"` // "start", "end", "error"
	PID          int               `json:"pid"`
	Size         string            `json:"size,omitempty"`
	Bytes        int64             `json:"bytes,omitempty"`
	ChunkSize    int               `json:"chunk_size,omitempty"`
	Allocator    string            `json:"allocator,omitempty"`
	HoldSeconds  int64             `json:"hold_seconds,omitempty"`
	Acquisitions int64             `json:"acquisitions,omitempty"`
	ExitCode     int               `json:"exit_code,omitempty"`
	Duration     string            `json:"duration,omitempty"` // ISO 8601 duration format
	Error        string            `json:"error,omitempty"`
	Outcome      string            `json:"outcome,omitempty"` // "success", "interrupted", "allocation_failed", ...
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Logger handles audit logging to a file in JSON format
type Logger struct {
	logFile string
	file    *os.File
	lock    sync.Mutex
	logger  *slog.Logger
}

// NewLogger creates a new audit logger
func NewLogger(logFile string) (*Logger, error) {
	if logFile == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		logFile: logFile,
		file:    file,
		logger:  slog.Default(),
	}, nil
}

// Log writes an audit event to the log file
func (l *Logger) Log(event Event) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.file == nil {
		return fmt.Errorf("logger file not initialized")
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.PID == 0 {
		event.PID = os.Getpid()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync audit log file", slog.String("error", err.Error()))
	}

	return nil
}

// LogStart logs the start of an allocation
func (l *Logger) LogStart(size string, bytes int64, chunkSize int, allocator string, holdSeconds int64) error {
	return l.Log(Event{
		Timestamp:   time.Now().UTC(),
		Type:        "start",
		Size:        size,
		Bytes:       bytes,
		ChunkSize:   chunkSize,
		Allocator:   allocator,
		HoldSeconds: holdSeconds,
		Metadata:    hostMetadata(),
	})
}

// hostMetadata identifies the platform a run put under pressure
func hostMetadata() map[string]string {
	meta := map[string]string{
		"goos":   runtime.GOOS,
		"goarch": runtime.GOARCH,
	}
	if host, err := os.Hostname(); err == nil {
		meta["hostname"] = host
	}
	return meta
}

// LogEnd logs the end of a run. duration covers allocation and hold.
func (l *Logger) LogEnd(size string, acquisitions int64, exitCode int, duration time.Duration, outcome string) error {
	return l.Log(Event{
		Timestamp:    time.Now().UTC(),
		Type:         "end",
		Size:         size,
		Acquisitions: acquisitions,
		ExitCode:     exitCode,
		Duration:     isoDuration(duration),
		Outcome:      outcome,
	})
}

// LogError logs the error a run ended with
func (l *Logger) LogError(size, errMsg string) error {
	return l.Log(Event{
		Timestamp: time.Now().UTC(),
		Type:      "error",
		Size:      size,
		Error:     errMsg,
		Outcome:   "error",
	})
}

// Close closes the audit logger file
func (l *Logger) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func isoDuration(d time.Duration) string {
	return fmt.Sprintf("PT%d.%09dS", int64(d/time.Second), int64(d%time.Second))
}
