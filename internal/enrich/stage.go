// Package enrich turns persisted raw listings into scored assessments through
// an LLM, memoizing every call in a response cache.
package enrich

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adda-Baaj/casa-harvester/internal/cache"
	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/internal/storage"
	"github.com/Adda-Baaj/casa-harvester/pkg/openrouter"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
)

// Completer performs one chat completion for an input line.
type Completer interface {
	Complete(ctx context.Context, input string) (*openrouter.ChatResponse, error)
}

// EventPublisher publishes enrichment results downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) error
}

// Options tunes a Stage.
type Options struct {
	// CallDelay is the minimum spacing between two external calls. Zero
	// disables spacing.
	CallDelay time.Duration
	// DailyQuota caps external calls per rolling day. Zero disables the cap.
	DailyQuota int
	Publisher  EventPublisher
	Logger     logger.Logger
}

// Summary counts what a pass did.
type Summary struct {
	Lines  int `json:"lines"`
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// Stage runs enrichment passes against a single cache.
type Stage struct {
	client  Completer
	cache   *cache.Cache
	spacing *rate.Limiter
	quota   *rate.Limiter
	events  EventPublisher
	log     logger.Logger
}

// NewStage wires a stage around client and c.
func NewStage(client Completer, c *cache.Cache, opts Options) (*Stage, error) {
	if client == nil {
		return nil, fmt.Errorf("enrichment client is required")
	}
	if c == nil {
		return nil, fmt.Errorf("response cache is required")
	}
	s := &Stage{
		client: client,
		cache:  c,
		events: opts.Publisher,
		log:    logger.Ensure(opts.Logger),
	}
	if opts.CallDelay > 0 {
		s.spacing = rate.NewLimiter(rate.Every(opts.CallDelay), 1)
	}
	if opts.DailyQuota > 0 {
		s.quota = rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(opts.DailyQuota)), opts.DailyQuota)
	}
	return s, nil
}

// Run enriches every non-blank line of inputPath into outputPath, which is
// truncated first. The first failing line aborts the pass.
func (s *Stage) Run(ctx context.Context, inputPath, outputPath string) (Summary, error) {
	var sum Summary

	in, err := os.Open(inputPath)
	if err != nil {
		return sum, fmt.Errorf("open enrichment input: %w", err)
	}
	defer in.Close()

	out, err := storage.CreateLineSink(outputPath)
	if err != nil {
		return sum, fmt.Errorf("open enrichment output: %w", err)
	}
	defer out.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		resp, hit, err := s.cache.GetOrCompute(ctx, line, func(ctx context.Context) (string, error) {
			return s.call(ctx, line)
		})
		if err != nil {
			return sum, fmt.Errorf("enrich line %d: %w", lineNo, err)
		}

		sum.Lines++
		if hit {
			sum.Hits++
			s.log.InfoObj("enrichment cache hit", "enrich_line", map[string]any{"line": lineNo})
		} else {
			sum.Misses++
			s.log.InfoObj("enrichment cache miss", "enrich_line", map[string]any{"line": lineNo})
		}

		if err := out.WriteLine(resp); err != nil {
			return sum, fmt.Errorf("write enrichment line %d: %w", lineNo, err)
		}
		s.publish(ctx, line, resp)
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read enrichment input: %w", err)
	}
	return sum, nil
}

// call waits for the limiters, performs the external call and returns the
// serialized normalized response.
func (s *Stage) call(ctx context.Context, line string) (string, error) {
	if s.quota != nil {
		if err := s.quota.Wait(ctx); err != nil {
			return "", fmt.Errorf("daily quota: %w", err)
		}
	}
	if s.spacing != nil {
		if err := s.spacing.Wait(ctx); err != nil {
			return "", fmt.Errorf("call spacing: %w", err)
		}
	}

	chat, err := s.client.Complete(ctx, line)
	if err != nil {
		return "", err
	}
	resp, err := Normalize(chat)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("marshal response: %w", err)
	}
	s.log.DebugObj("enrichment response received", "enrich_response", map[string]any{
		"id":      resp.ID,
		"model":   resp.Model,
		"choices": len(resp.Choices),
	})
	return string(raw), nil
}

func (s *Stage) publish(ctx context.Context, line, resp string) {
	if s.events == nil {
		return
	}
	var listing domain.RawListing
	_ = json.Unmarshal([]byte(line), &listing)
	if err := s.events.Publish(ctx, publishers.NewEnrichmentEvent(listing.Identifier, resp)); err != nil {
		s.log.WarnObj("enrichment event publish failed", "publish_error", map[string]any{
			"identifier": listing.Identifier,
			"error":      err.Error(),
		})
	}
}

// RunWithCache loads the cache at cachePath, runs one pass and exports the
// cache back to cachePath whether the pass succeeded or not.
func RunWithCache(ctx context.Context, cachePath string, client Completer, opts Options, inputPath, outputPath string) (Summary, error) {
	log := logger.Ensure(opts.Logger)

	c, err := cache.Load(cachePath)
	if err != nil {
		return Summary{}, fmt.Errorf("load response cache: %w", err)
	}
	log.InfoObj("response cache loaded", "cache_meta", map[string]any{
		"path":    cachePath,
		"entries": c.Len(),
		"skipped": c.Skipped(),
	})

	stage, err := NewStage(client, c, opts)
	if err != nil {
		return Summary{}, err
	}

	sum, runErr := stage.Run(ctx, inputPath, outputPath)

	log.InfoObj("exporting response cache", "cache_meta", map[string]any{
		"path":    cachePath,
		"entries": c.Len(),
	})
	if err := c.Export(cachePath); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("export response cache: %w", err))
	}
	return sum, runErr
}
