// Package sightinglog appends one line per located detection to a plain text file.
package sightinglog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Log is an append-only location log. Lines are never rewritten.
type Log struct {
	mu   sync.Mutex
	path string
}

// New creates a log writing to path; parent directories are created on demand
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the file the log writes to
func (l *Log) Path() string {
	return l.path
}

// Append writes "Detected at: <lat>, <lon> - Address: <address>"
func (l *Log) Append(lat, lon float64, address string) error {
	line := fmt.Sprintf("Detected at: %s, %s - Address: %s\n",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
		address)

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open location log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write location log: %w", err)
	}
	return f.Close()
}
