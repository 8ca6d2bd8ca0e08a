package app

import (
	"context"
	"strings"

	"github.com/Adda-Baaj/casa-harvester/internal/config"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
)

// buildFanout returns nil when no publishers file is configured.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(cfg.PublishersFile) == "" {
		log.InfoObj("no publishers configured; events disabled", "publishers_meta", map[string]any{"count": 0})
		return nil, nil
	}

	reg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fatal("load publishers registry: %w", err)
	}

	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fatal("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs, log), nil
}

func closeFanout(f *publishers.Fanout, log logger.Logger) {
	if f == nil {
		return
	}
	if err := f.Close(); err != nil {
		log.ErrorObj("publisher close failed", "error", err.Error())
	}
}
