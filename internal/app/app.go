// Package app dispatches the configured mode to a crawl or enrichment run.
package app

import (
	"context"
	"slices"

	"github.com/Adda-Baaj/casa-harvester/internal/config"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/pkg/sources"
)

// ModeLLM selects the enrichment run; every other accepted mode is a source id.
const ModeLLM = "llm"

// Runner is a prepared crawl or enrichment run.
type Runner interface {
	Run(ctx context.Context) error
}

// Modes lists the accepted mode values.
func Modes() []string {
	return append(sources.Supported(), ModeLLM)
}

// New builds the runner for cfg.Mode. An unrecognized mode yields a nil
// runner and no error.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (Runner, error) {
	log = logger.Ensure(log)
	switch {
	case cfg.Mode == ModeLLM:
		return NewEnricher(ctx, cfg, log)
	case slices.Contains(sources.Supported(), cfg.Mode):
		return NewHarvester(ctx, cfg, cfg.Mode, log)
	default:
		log.WarnObj("unrecognized mode; nothing to do", "mode", map[string]any{
			"mode":     cfg.Mode,
			"accepted": Modes(),
		})
		return nil, nil
	}
}

// Run builds and runs the configured mode.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	runner, err := New(ctx, cfg, log)
	if err != nil || runner == nil {
		return err
	}
	return runner.Run(ctx)
}
