package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Adda-Baaj/casa-harvester/internal/config"
	"github.com/Adda-Baaj/casa-harvester/internal/enrich"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/pkg/openrouter"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
)

// Enricher runs the enrichment stage over a listings file.
type Enricher struct {
	cfg        *config.Config
	client     enrich.Completer
	fanout     *publishers.Fanout
	supervisor Supervisor
	log        logger.Logger
}

// NewEnricher validates the credential and paths and builds the client.
func NewEnricher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Enricher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	if cfg.OpenRouterAPIKey == "" {
		return nil, fatal("open_router_api_key is required for llm mode")
	}
	if cfg.InputPath == "" || cfg.OutputPath == "" {
		return nil, fatal("input_path and output_path are required for llm mode")
	}
	if _, err := os.Stat(cfg.InputPath); err != nil {
		return nil, fatal("input file: %w", err)
	}

	client, err := openrouter.New(openrouter.Config{
		URL:     cfg.OpenRouterURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fatal("openrouter client: %w", err)
	}

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	log.InfoObj("enrichment configured", "enrich_meta", map[string]any{
		"model":         client.Model(),
		"input":         cfg.InputPath,
		"output":        cfg.OutputPath,
		"cache":         cfg.LLMCachePath,
		"call_delay_ms": cfg.LLMCallDelay.Milliseconds(),
		"daily_quota":   cfg.LLMDailyQuota,
	})

	return &Enricher{
		cfg:        cfg,
		client:     client,
		fanout:     fanout,
		supervisor: NewSupervisor(cfg.SupervisorMaxAttempts, log),
		log:        log,
	}, nil
}

// Run enriches the input file under supervision. A rejected credential is
// fatal; any other failure restarts the pass, which replays cached lines.
func (e *Enricher) Run(ctx context.Context) error {
	if e == nil || e.client == nil {
		return fmt.Errorf("enricher is not initialized")
	}
	defer closeFanout(e.fanout, e.log)

	opts := enrich.Options{
		CallDelay:  e.cfg.LLMCallDelay,
		DailyQuota: e.cfg.LLMDailyQuota,
		Logger:     e.log,
	}
	if e.fanout.Size() > 0 {
		opts.Publisher = e.fanout
	}

	return e.supervisor.Run(ctx, "llm", func(ctx context.Context) error {
		sum, err := enrich.RunWithCache(ctx, e.cfg.LLMCachePath, e.client, opts, e.cfg.InputPath, e.cfg.OutputPath)
		e.log.InfoObj("enrichment pass finished", "enrich_summary", sum)
		if errors.Is(err, openrouter.ErrUnauthorized) {
			return fatal("%w", err)
		}
		return err
	})
}
