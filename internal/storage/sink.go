package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// LineSink appends newline-terminated records to a file. Every write is
// synced before it returns; there is no user-space buffering.
type LineSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenLineSink opens path in append mode.
func OpenLineSink(path string) (*LineSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &LineSink{path: path, f: f}, nil
}

// WriteLine appends line plus a newline. Embedded newlines are rejected so a
// record can never span two lines.
func (s *LineSink) WriteLine(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("record for %s contains a line break", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("sink %s is closed", s.path)
	}
	if _, err := s.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

// CreateLineSink truncates path and opens it for appending.
func CreateLineSink(path string) (*LineSink, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &LineSink{path: path, f: f}, nil
}

// Path returns the file backing the sink.
func (s *LineSink) Path() string { return s.path }

// Close closes the underlying file.
func (s *LineSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// JSONLSink appends one JSON document per line.
type JSONLSink struct {
	lines *LineSink
}

// OpenJSONLSink opens path in append mode.
func OpenJSONLSink(path string) (*JSONLSink, error) {
	lines, err := OpenLineSink(path)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{lines: lines}, nil
}

// Append serializes v and writes it as a single line.
func (s *JSONLSink) Append(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.lines.WriteLine(string(raw))
}

// Path returns the file backing the sink.
func (s *JSONLSink) Path() string { return s.lines.Path() }

// Close closes the underlying file.
func (s *JSONLSink) Close() error { return s.lines.Close() }
