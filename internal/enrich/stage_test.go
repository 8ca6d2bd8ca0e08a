package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Adda-Baaj/casa-harvester/internal/cache"
	"github.com/Adda-Baaj/casa-harvester/pkg/openrouter"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   []string
	content func(input string) string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, input string) (*openrouter.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	n := len(f.calls)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &openrouter.ChatResponse{
		ID:       fmt.Sprintf("gen-%d", n),
		Provider: "Meta",
		Model:    openrouter.DefaultModel,
		Object:   "chat.completion",
		Created:  1730000000,
		Choices: []openrouter.Choice{{
			FinishReason: "stop",
			Message:      openrouter.Message{Role: "assistant", Content: f.content(input)},
		}},
	}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingPublisher struct {
	events []publishers.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt publishers.Event) error {
	r.events = append(r.events, evt)
	return nil
}

func goodContent(string) string {
	return `{"url_id":"A1","no_bedrooms":3,"no_bathrooms":2,"has_garage":false,"has_pool":true,` +
		`"has_good_location":true,"location":"Porto","average_price":300000,"average_sqr_meters":120,` +
		`"average_price_per_sqr_meters":2500,"sqr_meters":110,"price":250000,"summary":"Nice flat","score":7}`
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	trimmed := strings.TrimRight(string(raw), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestRunWithCacheScenarioLine(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "remax.jsonl")
	output := filepath.Join(dir, "enriched.jsonl")
	cachePath := filepath.Join(dir, "llm_cache.txt")

	line := `{"identifier":"A1","price":"250000","details":["3 bedrooms","pool"]}`
	writeLines(t, input, []string{line})

	client := &fakeCompleter{content: func(string) string {
		return `{"url_id":"A1","no_bedrooms":"3","no_bathrooms":null,"has_garage":"no","has_pool":"yes",` +
			`"has_good_location":true,"location":"Lisbon","average_price":"310000","average_sqr_meters":"95",` +
			`"average_price_per_sqr_meters":"3263.16","sqr_meters":"100","price":"250000","summary":"Three bedroom flat with pool","score":"12"`
	}}

	sum, err := RunWithCache(context.Background(), cachePath, client, Options{}, input, output)
	if err != nil {
		t.Fatalf("RunWithCache: %v", err)
	}
	if sum.Misses != 1 || sum.Hits != 0 || client.callCount() != 1 {
		t.Fatalf("unexpected summary %+v with %d calls", sum, client.callCount())
	}

	c, err := cache.Load(cachePath)
	if err != nil {
		t.Fatalf("Load cache: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("cache entries = %d", c.Len())
	}
	if _, ok := c.Get(line); !ok {
		t.Fatalf("cache must be keyed by the exact input line")
	}

	lines := readLines(t, output)
	if len(lines) != 1 {
		t.Fatalf("output lines = %d", len(lines))
	}

	var doc struct {
		Choices []struct {
			Message struct {
				Content map[string]any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &doc); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	content := doc.Choices[0].Message.Content
	price, ok := content["price"].(float64)
	if !ok || price != 250000 {
		t.Fatalf("price = %#v, want numeric 250000", content["price"])
	}
	score, ok := content["score"].(float64)
	if !ok || score < 1 || score > 10 {
		t.Fatalf("score = %#v, want within [1,10]", content["score"])
	}
	if bedrooms, ok := content["no_bedrooms"].(float64); !ok || bedrooms != 3 {
		t.Fatalf("no_bedrooms = %#v, want integer 3", content["no_bedrooms"])
	}
	if content["has_pool"] != true || content["has_garage"] != false {
		t.Fatalf("booleans not coerced: %#v %#v", content["has_pool"], content["has_garage"])
	}
}

func TestRunWithCacheSecondPassIsFree(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jsonl")
	output := filepath.Join(dir, "out.jsonl")
	cachePath := filepath.Join(dir, "cache.txt")
	writeLines(t, input, []string{`{"identifier":"A"}`, "", `{"identifier":"B"}`})

	client := &fakeCompleter{content: goodContent}
	if _, err := RunWithCache(context.Background(), cachePath, client, Options{}, input, output); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first := readLines(t, output)

	sum, err := RunWithCache(context.Background(), cachePath, client, Options{}, input, output)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if client.callCount() != 2 {
		t.Fatalf("second pass made external calls: total %d", client.callCount())
	}
	if sum.Hits != 2 || sum.Misses != 0 {
		t.Fatalf("second pass summary %+v", sum)
	}

	second := readLines(t, output)
	if len(second) != 2 || strings.Join(first, "\n") != strings.Join(second, "\n") {
		t.Fatalf("hit output must equal stored response verbatim\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestRunWithCacheExportsOnFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jsonl")
	output := filepath.Join(dir, "out.jsonl")
	cachePath := filepath.Join(dir, "cache.txt")

	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"identifier":"L%d"}`, i+1)
	}
	writeLines(t, input, lines)

	client := &fakeCompleter{content: func(input string) string {
		if strings.Contains(input, `"L7"`) {
			return "I cannot help with that"
		}
		return goodContent(input)
	}}

	sum, err := RunWithCache(context.Background(), cachePath, client, Options{}, input, output)
	if err == nil {
		t.Fatalf("expected failure on line 7")
	}
	if !strings.Contains(err.Error(), "line 7") {
		t.Fatalf("error should name line 7: %v", err)
	}
	if sum.Lines != 6 {
		t.Fatalf("summary lines = %d, want 6", sum.Lines)
	}

	c, err := cache.Load(cachePath)
	if err != nil {
		t.Fatalf("Load cache: %v", err)
	}
	if c.Len() != 6 {
		t.Fatalf("exported cache entries = %d, want 6", c.Len())
	}
	if got := len(readLines(t, output)); got != 6 {
		t.Fatalf("output lines = %d, want 6", got)
	}
}

func TestRunWithCacheClientErrorNamesLine(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jsonl")
	writeLines(t, input, []string{`{"identifier":"A"}`})

	boom := errors.New("upstream down")
	client := &fakeCompleter{err: boom}
	_, err := RunWithCache(context.Background(), filepath.Join(dir, "cache.txt"), client, Options{}, input, filepath.Join(dir, "out.jsonl"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "cache.txt")); statErr != nil {
		t.Fatalf("cache file must be written even when empty: %v", statErr)
	}
}

func TestStageRunTruncatesOutputAndPublishes(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jsonl")
	output := filepath.Join(dir, "out.jsonl")
	writeLines(t, input, []string{`{"identifier":"/imovel/9"}`})
	if err := os.WriteFile(output, []byte("stale\nstale\nstale\n"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	pub := &recordingPublisher{}
	stage, err := NewStage(&fakeCompleter{content: goodContent}, cache.New(), Options{Publisher: pub})
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}
	if _, err := stage.Run(context.Background(), input, output); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readLines(t, output); len(got) != 1 || strings.Contains(got[0], "stale") {
		t.Fatalf("output not truncated: %v", got)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d", len(pub.events))
	}
	evt := pub.events[0]
	if evt.Kind != publishers.KindListingEnriched || evt.Identifier != "/imovel/9" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestNewStageValidates(t *testing.T) {
	if _, err := NewStage(nil, cache.New(), Options{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewStage(&fakeCompleter{content: goodContent}, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil cache")
	}
}
