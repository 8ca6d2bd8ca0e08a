// Package sources holds the listing site adapters and their YAML registry.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/casa-harvester/internal/crawler"
	"github.com/Adda-Baaj/casa-harvester/internal/retry"
	"gopkg.in/yaml.v3"
)

const (
	LoaderBrowser = "browser"
	LoaderHTTP    = "http"

	// ScopeSetDistricts expands to the Portuguese districts and islands.
	ScopeSetDistricts = "districts"

	defaultItemDelayMs = 500
)

// RetryConfig is the YAML form of a retry policy. Attempts counts the first
// try; a Multiplier of 1 or less keeps the interval fixed.
type RetryConfig struct {
	InitialMs  int     `json:"initial_ms" yaml:"initial_ms"`
	MaxMs      int     `json:"max_ms" yaml:"max_ms"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	Attempts   int     `json:"attempts" yaml:"attempts"`
}

// Policy converts the config to a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	if r.Attempts <= 0 {
		return retry.Once()
	}
	initial := time.Duration(r.InitialMs) * time.Millisecond
	maxDelay := time.Duration(r.MaxMs) * time.Millisecond
	if r.Multiplier <= 1 {
		return retry.Fixed(initial, r.Attempts)
	}
	return retry.Policy{
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   r.Multiplier,
		MaxAttempts:  r.Attempts,
	}
}

// Config describes one listing site.
type Config struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Loader string `json:"loader" yaml:"loader"`
	// ListURL may hold {scope} and {page} placeholders.
	ListURL string `json:"list_url" yaml:"list_url"`
	// ListingURL holds an {id} placeholder. Absolute identifiers bypass it.
	ListingURL string   `json:"listing_url" yaml:"listing_url"`
	Scopes     []string `json:"scopes" yaml:"scopes"`
	ScopeSet   string   `json:"scope_set" yaml:"scope_set"`

	Termination        string `json:"termination" yaml:"termination"`
	PageTimeoutSeconds int    `json:"page_timeout_seconds" yaml:"page_timeout_seconds"`
	PageSettleMs       int    `json:"page_settle_ms" yaml:"page_settle_ms"`
	PageSettleJitterMs int    `json:"page_settle_jitter_ms" yaml:"page_settle_jitter_ms"`
	ItemSettleMs       int    `json:"item_settle_ms" yaml:"item_settle_ms"`
	ItemSettleJitterMs int    `json:"item_settle_jitter_ms" yaml:"item_settle_jitter_ms"`
	ItemDelayMs        int    `json:"item_delay_ms" yaml:"item_delay_ms"`
	MaxPages           int    `json:"max_pages" yaml:"max_pages"`
	Resumable          bool   `json:"resumable" yaml:"resumable"`

	PageRetry RetryConfig       `json:"page_retry" yaml:"page_retry"`
	ItemRetry RetryConfig       `json:"item_retry" yaml:"item_retry"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
}

// ResolvedScopes returns the explicit scopes, or the named scope set.
func (c Config) ResolvedScopes() []string {
	if len(c.Scopes) > 0 {
		return append([]string(nil), c.Scopes...)
	}
	if c.ScopeSet == ScopeSetDistricts {
		return Districts()
	}
	return nil
}

// PageURL renders the list page URL for scope and page.
func (c Config) PageURL(scope string, page int) string {
	return strings.NewReplacer("{scope}", scope, "{page}", strconv.Itoa(page)).Replace(c.ListURL)
}

// ListingURLFor renders the detail page URL for an identifier.
func (c Config) ListingURLFor(id string) string {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") || c.ListingURL == "" {
		return id
	}
	return strings.ReplaceAll(c.ListingURL, "{id}", strings.TrimPrefix(id, "/"))
}

// Settings converts the pacing and retry knobs for the crawl controller.
func (c Config) Settings() (crawler.Settings, error) {
	term, err := crawler.ParseTermination(c.Termination)
	if err != nil {
		return crawler.Settings{}, fmt.Errorf("source %s: %w", c.ID, err)
	}
	return crawler.Settings{
		Termination: term,
		PageTimeout: time.Duration(c.PageTimeoutSeconds) * time.Second,
		PageRetry:   c.PageRetry.Policy(),
		ItemRetry:   c.ItemRetry.Policy(),
		ItemDelay:   time.Duration(c.ItemDelayMs) * time.Millisecond,
		MaxPages:    c.MaxPages,
	}, nil
}

func (c Config) pageSettle() time.Duration {
	return settle(c.PageSettleMs, c.PageSettleJitterMs)
}

func (c Config) itemSettle() time.Duration {
	return settle(c.ItemSettleMs, c.ItemSettleJitterMs)
}

func settle(baseMs, jitterMs int) time.Duration {
	d := time.Duration(baseMs) * time.Millisecond
	if jitterMs > 0 {
		d += time.Duration(rand.N(jitterMs+1)) * time.Millisecond
	}
	return d
}

// Registry is a validated set of source configs.
type Registry struct {
	sources []Config
	idx     map[string]Config
}

type registryFile struct {
	Sources []Config `json:"sources" yaml:"sources"`
}

// All returns the configs in file order.
func (r *Registry) All() []Config {
	if r == nil {
		return nil
	}
	return append([]Config(nil), r.sources...)
}

// ByID looks up a source config.
func (r *Registry) ByID(id string) (Config, bool) {
	if r == nil {
		return Config{}, false
	}
	c, ok := r.idx[strings.ToLower(strings.TrimSpace(id))]
	return c, ok
}

// LoadRegistry reads and validates a YAML or JSON sources file.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sources file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseRegistry(raw, filepath.Ext(path))
}

// ParseRegistry decodes registry bytes; ext selects the format (".json" or YAML).
func ParseRegistry(data []byte, ext string) (*Registry, error) {
	var file registryFile
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode json sources: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode yaml sources: %w", err)
		}
	}

	if len(file.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	reg := &Registry{idx: make(map[string]Config, len(file.Sources))}
	for i := range file.Sources {
		c := sanitizeConfig(file.Sources[i])
		if err := validateConfig(c); err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		if _, exists := reg.idx[c.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", c.ID)
		}
		reg.sources = append(reg.sources, c)
		reg.idx[c.ID] = c
	}
	return reg, nil
}

func sanitizeConfig(c Config) Config {
	c.ID = strings.ToLower(strings.TrimSpace(c.ID))
	c.Name = strings.TrimSpace(c.Name)
	c.Loader = strings.ToLower(strings.TrimSpace(c.Loader))
	c.ListURL = strings.TrimSpace(c.ListURL)
	c.ListingURL = strings.TrimSpace(c.ListingURL)
	c.ScopeSet = strings.ToLower(strings.TrimSpace(c.ScopeSet))
	c.Termination = strings.ToLower(strings.TrimSpace(c.Termination))

	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Loader == "" {
		c.Loader = LoaderBrowser
	}
	if c.ItemDelayMs <= 0 {
		c.ItemDelayMs = defaultItemDelayMs
	}

	scopes := c.Scopes[:0:0]
	for _, s := range c.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	c.Scopes = scopes
	return c
}

func validateConfig(c Config) error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if _, ok := profiles[c.ID]; !ok {
		return fmt.Errorf("no extraction profile for source %q", c.ID)
	}
	if c.Loader != LoaderBrowser && c.Loader != LoaderHTTP {
		return fmt.Errorf("unknown loader %q for source %q", c.Loader, c.ID)
	}
	if c.ListURL == "" {
		return fmt.Errorf("list_url is required for source %q", c.ID)
	}
	if !strings.Contains(c.ListURL, "{page}") {
		return fmt.Errorf("list_url for source %q has no {page} placeholder", c.ID)
	}
	if c.ScopeSet != "" && c.ScopeSet != ScopeSetDistricts {
		return fmt.Errorf("unknown scope_set %q for source %q", c.ScopeSet, c.ID)
	}
	if strings.Contains(c.ListURL, "{scope}") && len(c.ResolvedScopes()) == 0 {
		return fmt.Errorf("list_url for source %q needs scopes", c.ID)
	}
	term, err := crawler.ParseTermination(c.Termination)
	if err != nil {
		return fmt.Errorf("source %q: %w", c.ID, err)
	}
	if term == crawler.TerminateMarker {
		if _, ok := profiles[c.ID].(MarkerProfile); !ok {
			return fmt.Errorf("source %q cannot use marker termination", c.ID)
		}
	}
	return nil
}
