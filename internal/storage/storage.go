// Package storage provides the append-only flat-file persistence used by crawls.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ledger tracks listing identifiers that have already been persisted.
type Ledger interface {
	Close() error
	Seen(id string) bool
	Record(id string) error
	Len() int
}

const (
	TypeFile = "file"
	TypeNone = "none"
)

// NewLedger creates the configured ledger backend.
func NewLedger(typ, path string) (Ledger, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case TypeNone, "disabled":
		return noopLedger{}, nil
	case "", TypeFile:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("file ledger requires a path")
		}
		return OpenLedger(path)
	default:
		return nil, fmt.Errorf("unsupported ledger type %q", typ)
	}
}

type noopLedger struct{}

func (noopLedger) Close() error        { return nil }
func (noopLedger) Seen(string) bool    { return false }
func (noopLedger) Record(string) error { return nil }
func (noopLedger) Len() int            { return 0 }

// openAppend opens path for appending, creating parent directories as needed.
func openAppend(path string) (*os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for append: %w", path, err)
	}
	return f, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}
	return nil
}
