// Package cache memoizes enrichment responses keyed by the exact input line.
package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Separator splits fingerprint and response on a persisted cache line.
const Separator = "|:|"

// escapedMark prefixes a persisted fingerprint that contained Separator. JSON
// lines never carry a raw 0x1E byte, so plain fingerprints cannot start with it.
const escapedMark = "\x1e"

var (
	fingerprintEscaper   = strings.NewReplacer(`\`, `\\`, "|", `\p`)
	fingerprintUnescaper = strings.NewReplacer(`\\`, `\`, `\p`, "|")
)

// encodeFingerprint keeps fingerprints containing Separator splittable.
// Every other fingerprint is written verbatim.
func encodeFingerprint(fp string) string {
	if !strings.Contains(fp, Separator) {
		return fp
	}
	return escapedMark + fingerprintEscaper.Replace(fp)
}

func decodeFingerprint(fp string) string {
	if rest, ok := strings.CutPrefix(fp, escapedMark); ok {
		return fingerprintUnescaper.Replace(rest)
	}
	return fp
}

// Cache is an in-memory fingerprint to response map with flat-file load and
// export. Entries are never evicted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	group   singleflight.Group

	skipped int
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Load reads a cache file. A missing file yields an empty cache. Lines
// without a separator are skipped and counted in Skipped.
func Load(path string) (*Cache, error) {
	c := New()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fp, resp, ok := strings.Cut(line, Separator)
		if !ok || fp == "" {
			c.skipped++
			continue
		}
		c.entries[decodeFingerprint(fp)] = resp
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return c, nil
}

// Get returns the stored response for fp.
func (c *Cache) Get(fp string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[fp]
	return v, ok
}

// Put stores resp under fp, replacing any previous value.
func (c *Cache) Put(fp, resp string) {
	c.mu.Lock()
	c.entries[fp] = resp
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Skipped returns how many malformed lines Load dropped.
func (c *Cache) Skipped() int { return c.skipped }

// GetOrCompute returns the cached response for fp, or calls fn once and
// stores its result. Concurrent callers for the same fp share one call.
// hit reports whether the value came from the cache.
func (c *Cache) GetOrCompute(ctx context.Context, fp string, fn func(ctx context.Context) (string, error)) (resp string, hit bool, err error) {
	if v, ok := c.Get(fp); ok {
		return v, true, nil
	}

	v, err, _ := c.group.Do(fp, func() (any, error) {
		if v, ok := c.Get(fp); ok {
			return v, nil
		}
		out, err := fn(ctx)
		if err != nil {
			return "", err
		}
		c.Put(fp, out)
		return out, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

// Export truncates path and writes every entry sorted by fingerprint.
func (c *Cache) Export(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}

	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(encodeFingerprint(k))
		b.WriteString(Separator)
		b.WriteString(c.entries[k])
		b.WriteByte('\n')
	}
	c.mu.RUnlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open cache file for export: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("export cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync cache: %w", err)
	}
	return f.Close()
}
