package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestLoadSplitsOnFirstSeparatorAndSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.txt")
	content := "" +
		`{"identifier":"A1"}|:|{"id":"x","note":"a|:|b"}` + "\n" +
		"no separator here\n" +
		"\n" +
		`{"identifier":"B2"}|:|{"id":"y"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if c.Skipped() != 1 {
		t.Fatalf("Skipped = %d, want 1", c.Skipped())
	}
	got, ok := c.Get(`{"identifier":"A1"}`)
	if !ok || got != `{"id":"x","note":"a|:|b"}` {
		t.Fatalf("Get A1 = %q, %v", got, ok)
	}
}

func TestExportThenLoadRestoresEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cache.txt")
	c := New()
	c.Put("b", "2")
	c.Put("a", "1")
	if err := c.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "a|:|1\nb|:|2\n" {
		t.Fatalf("export content = %q", raw)
	}

	// a second, smaller export must not leave stale lines behind
	small := New()
	small.Put("z", "9")
	if err := small.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("expected truncate-then-write, got %d entries", reloaded.Len())
	}
}

func TestExportKeepsFingerprintsContainingSeparator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.txt")
	keys := []string{
		`{"description":"T3 |:| vista mar"}`,
		`{"description":"a|:|:|b \\p \\"}`,
		`{"description":"plain"}`,
	}
	c := New()
	for i, k := range keys {
		c.Put(k, fmt.Sprintf(`{"n":%d}`, i))
	}
	if err := c.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Len() != len(keys) || reloaded.Skipped() != 0 {
		t.Fatalf("reloaded %d entries, skipped %d", reloaded.Len(), reloaded.Skipped())
	}
	for i, k := range keys {
		if got, ok := reloaded.Get(k); !ok || got != fmt.Sprintf(`{"n":%d}`, i) {
			t.Fatalf("Get(%q) = %q, %v", k, got, ok)
		}
	}
}

func TestGetOrComputeCallsOncePerFingerprint(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "resp", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), "line", fn); err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("fn called %d times", n)
	}

	v, hit, err := c.GetOrCompute(context.Background(), "line", fn)
	if err != nil || !hit || v != "resp" {
		t.Fatalf("second lookup = %q hit=%v err=%v", v, hit, err)
	}
}

func TestGetOrComputeDoesNotStoreFailures(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "line", func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("failed compute must not be cached")
	}
}
