package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
)

// CursorFile persists a crawl cursor as two lines: scope, then page number.
// The file is rewritten in full and synced on every Save.
type CursorFile struct {
	path string
}

// NewCursorFile returns a cursor store backed by path.
func NewCursorFile(path string) *CursorFile {
	return &CursorFile{path: path}
}

// Path returns the backing file.
func (c *CursorFile) Path() string { return c.path }

// Load returns the stored cursor. ok is false when nothing usable is stored.
func (c *CursorFile) Load() (domain.Cursor, bool, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Cursor{}, false, nil
	}
	if err != nil {
		return domain.Cursor{}, false, fmt.Errorf("open cursor: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return domain.Cursor{}, false, fmt.Errorf("read cursor: %w", err)
	}

	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return domain.Cursor{}, false, nil
	}

	cur := domain.Cursor{Scope: lines[0], Page: 1}
	if len(lines) > 1 && lines[1] != "" {
		page, err := strconv.Atoi(lines[1])
		if err != nil || page < 1 {
			return domain.Cursor{}, false, fmt.Errorf("cursor page %q is not a positive integer", lines[1])
		}
		cur.Page = page
	}
	return cur, true, nil
}

// Save overwrites the file with cur.
func (c *CursorFile) Save(cur domain.Cursor) error {
	if err := ensureDir(c.path); err != nil {
		return err
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open cursor: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s\n%d", cur.Scope, cur.Page); err != nil {
		f.Close()
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync cursor: %w", err)
	}
	return f.Close()
}

// Clear truncates the file so the next run starts from the beginning.
func (c *CursorFile) Clear() error {
	if err := ensureDir(c.path); err != nil {
		return err
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("clear cursor: %w", err)
	}
	return f.Close()
}
