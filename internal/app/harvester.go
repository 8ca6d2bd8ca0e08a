package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Adda-Baaj/casa-harvester/internal/config"
	"github.com/Adda-Baaj/casa-harvester/internal/crawler"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/internal/storage"
	"github.com/Adda-Baaj/casa-harvester/pkg/browser"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
	"github.com/Adda-Baaj/casa-harvester/pkg/sources"
)

// Harvester crawls one listing source into the data directory.
type Harvester struct {
	cfg        *config.Config
	source     sources.Config
	loader     sources.Loader
	closer     io.Closer
	fanout     *publishers.Fanout
	supervisor Supervisor
	log        logger.Logger
}

// CrawlFiles are the per-source persistence paths under the data directory.
type CrawlFiles struct {
	Ledger   string
	Listings string
	Cursor   string
}

// FilesFor returns where source id keeps its ledger, listings and cursor.
func FilesFor(dataDir, id string) CrawlFiles {
	return CrawlFiles{
		Ledger:   filepath.Join(dataDir, id+"_ids.txt"),
		Listings: filepath.Join(dataDir, id+".jsonl"),
		Cursor:   filepath.Join(dataDir, id+"_cursor.txt"),
	}
}

// NewHarvester loads the source registry and prepares the crawl for sourceID.
func NewHarvester(ctx context.Context, cfg *config.Config, sourceID string, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	reg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fatal("load sources registry: %w", err)
	}
	srcCfg, ok := reg.ByID(sourceID)
	if !ok {
		return nil, fatal("source %q is not configured in %s", sourceID, cfg.SourcesFile)
	}
	log.InfoObj("source loaded", "source_meta", map[string]any{
		"id":          srcCfg.ID,
		"loader":      srcCfg.Loader,
		"termination": srcCfg.Termination,
		"scopes":      len(srcCfg.ResolvedScopes()),
		"resumable":   srcCfg.Resumable,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	h := &Harvester{
		cfg:        cfg,
		source:     srcCfg,
		fanout:     fanout,
		supervisor: NewSupervisor(cfg.SupervisorMaxAttempts, log),
		log:        log,
	}

	switch srcCfg.Loader {
	case sources.LoaderHTTP:
		h.loader = sources.NewHTTPLoader(nil, srcCfg.Headers)
	default:
		session, err := browser.Start(browser.Options{
			Headless:  cfg.BrowserHeadless,
			ExecPath:  cfg.BrowserExecPath,
			UserAgent: cfg.BrowserUserAgent,
		})
		if err != nil {
			closeFanout(fanout, log)
			return nil, fatal("start browser: %w", err)
		}
		h.loader = session
		h.closer = session
	}
	return h, nil
}

// Run crawls the source under supervision. Aborted scopes yield ErrPartial.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.loader == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	var report crawler.Report
	err := h.supervisor.Run(ctx, h.source.ID, func(ctx context.Context) error {
		var runErr error
		report, runErr = h.runOnce(ctx)
		return runErr
	})
	if err != nil {
		return err
	}

	if aborted := report.AbortedScopes(); len(aborted) > 0 {
		return fmt.Errorf("%w: %s", ErrPartial, strings.Join(aborted, ", "))
	}
	return nil
}

func (h *Harvester) runOnce(ctx context.Context) (report crawler.Report, err error) {
	files := FilesFor(h.cfg.DataDir, h.source.ID)

	ledger, err := storage.NewLedger(storage.TypeFile, files.Ledger)
	if err != nil {
		return report, fatal("open ledger: %w", err)
	}
	defer func() { err = errors.Join(err, ledger.Close()) }()

	sink, err := storage.OpenJSONLSink(files.Listings)
	if err != nil {
		return report, fatal("open listings file: %w", err)
	}
	defer func() { err = errors.Join(err, sink.Close()) }()

	settings, err := h.source.Settings()
	if err != nil {
		return report, fatal("%w", err)
	}
	src, err := sources.New(h.source, h.loader)
	if err != nil {
		return report, fatal("%w", err)
	}

	opts := crawler.Options{
		Settings: settings,
		Ledger:   ledger,
		Sink:     sink,
		Logger:   h.log,
	}
	if h.source.Resumable {
		opts.Cursor = storage.NewCursorFile(files.Cursor)
	}
	if h.fanout.Size() > 0 {
		opts.Publisher = h.fanout
	}

	svc, err := crawler.NewService(src, opts)
	if err != nil {
		return report, fatal("%w", err)
	}

	h.log.InfoObj("crawl started", "crawl_meta", map[string]any{
		"source":        h.source.ID,
		"known_ids":     ledger.Len(),
		"listings_file": files.Listings,
	})
	report, err = svc.Run(ctx)
	h.log.InfoObj("crawl finished", "crawl_report", report)
	return report, err
}

func (h *Harvester) close() {
	closeFanout(h.fanout, h.log)
	if h.closer != nil {
		if err := h.closer.Close(); err != nil {
			h.log.ErrorObj("browser close failed", "error", err.Error())
		}
	}
}
