package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// fileLedger keeps the identifier set in memory and mirrors every new entry
// to an append-only file, one identifier per line.
type fileLedger struct {
	mu   sync.RWMutex
	ids  map[string]struct{}
	sink *LineSink
}

// OpenLedger loads the identifiers already stored at path and opens the file
// for appending. A missing file is an empty ledger.
func OpenLedger(path string) (Ledger, error) {
	ids, err := readIdentifiers(path)
	if err != nil {
		return nil, err
	}
	sink, err := OpenLineSink(path)
	if err != nil {
		return nil, err
	}
	return &fileLedger{ids: ids, sink: sink}, nil
}

func readIdentifiers(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return ids, nil
}

// Seen reports whether id has been recorded.
func (l *fileLedger) Seen(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[strings.TrimSpace(id)]
	return ok
}

// Record appends id to the ledger. Callers record only after the listing
// itself has been persisted.
func (l *fileLedger) Record(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("ledger identifier is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[id]; ok {
		return nil
	}
	if err := l.sink.WriteLine(id); err != nil {
		return err
	}
	l.ids[id] = struct{}{}
	return nil
}

func (l *fileLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

func (l *fileLedger) Close() error {
	return l.sink.Close()
}
