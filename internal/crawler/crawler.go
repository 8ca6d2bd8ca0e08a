// Package crawler walks a source's result pages and persists listings that
// have not been seen before.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/internal/retry"
	"github.com/Adda-Baaj/casa-harvester/internal/storage"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
)

var (
	// ErrPageFetch marks a page identifier fetch that failed after retries.
	ErrPageFetch = errors.New("page fetch failed")
	// ErrMarkerProbe marks a failed page marker lookup.
	ErrMarkerProbe = errors.New("page marker probe failed")
	// ErrPersistence marks a failed write to the listing sink, ledger or cursor.
	ErrPersistence = errors.New("crawl persistence failed")
)

// Options wires a Service.
type Options struct {
	Settings  Settings
	Ledger    storage.Ledger
	Sink      ListingSink
	Cursor    CursorStore
	Publisher EventPublisher
	Logger    logger.Logger
}

// Service runs the pagination controller for a single source.
type Service struct {
	src      Source
	settings Settings
	ledger   storage.Ledger
	sink     ListingSink
	cursor   CursorStore
	events   EventPublisher
	log      logger.Logger
	pace     *rate.Limiter
}

// NewService wires a controller for src.
func NewService(src Source, opts Options) (*Service, error) {
	if src == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("listing sink is required for source %s", src.Name())
	}
	settings := opts.Settings.withDefaults()
	if settings.Termination == TerminateMarker {
		if _, ok := src.(MarkerProbe); !ok {
			return nil, fmt.Errorf("source %s uses marker termination but cannot probe markers", src.Name())
		}
	}

	ledger := opts.Ledger
	if ledger == nil {
		ledger, _ = storage.NewLedger(storage.TypeNone, "")
	}

	s := &Service{
		src:      src,
		settings: settings,
		ledger:   ledger,
		sink:     opts.Sink,
		cursor:   opts.Cursor,
		events:   opts.Publisher,
		log:      logger.Ensure(opts.Logger),
	}
	if settings.ItemDelay > 0 {
		s.pace = rate.NewLimiter(rate.Every(settings.ItemDelay), 1)
	}
	return s, nil
}

// Run crawls every scope of the source. A page-level error aborts only the
// current scope; cancellation and persistence failures end the run.
func (s *Service) Run(ctx context.Context) (report Report, err error) {
	report = Report{Source: s.src.Name(), StartedAt: time.Now().UTC()}
	defer func() { report.Elapsed = time.Since(report.StartedAt) }()

	scopes := s.src.Scopes()
	if len(scopes) == 0 {
		scopes = []string{""}
	}

	startIdx, startPage, err := s.resumePoint(scopes)
	if err != nil {
		return report, err
	}

	for i := startIdx; i < len(scopes); i++ {
		page := 1
		if i == startIdx {
			page = startPage
		}

		sr, err := s.runScope(ctx, scopes[i], page)
		report.Scopes = append(report.Scopes, sr)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			if errors.Is(err, ErrPersistence) {
				return report, err
			}
			s.log.ErrorObj("scope aborted", "crawl_scope", map[string]any{
				"source": s.src.Name(),
				"scope":  sr.Scope,
				"page":   sr.LastPage,
				"error":  err.Error(),
			})
			continue
		}

		if i+1 < len(scopes) {
			if err := s.saveCursor(domain.Cursor{Scope: scopes[i+1], Page: 1}); err != nil {
				return report, err
			}
		}
	}

	if s.cursor != nil {
		if err := s.cursor.Clear(); err != nil {
			return report, fmt.Errorf("%w: clear cursor: %w", ErrPersistence, err)
		}
	}

	s.log.InfoObj("source crawl completed", "crawl_report", map[string]any{
		"source":         report.Source,
		"scopes":         len(report.Scopes),
		"persisted":      report.Persisted(),
		"failed":         report.Failed(),
		"aborted_scopes": report.AbortedScopes(),
	})
	return report, nil
}

func (s *Service) resumePoint(scopes []string) (int, int, error) {
	if s.cursor == nil {
		return 0, 1, nil
	}
	cur, ok, err := s.cursor.Load()
	if err != nil {
		return 0, 1, fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		return 0, 1, nil
	}
	for i, scope := range scopes {
		if scope == cur.Scope {
			s.log.InfoObj("resuming crawl", "crawl_cursor", map[string]any{
				"source": s.src.Name(),
				"scope":  cur.Scope,
				"page":   cur.Page,
			})
			return i, max(cur.Page, 1), nil
		}
	}
	s.log.WarnObj("cursor scope unknown; starting from the first scope", "crawl_cursor", map[string]any{
		"source": s.src.Name(),
		"scope":  cur.Scope,
	})
	return 0, 1, nil
}

func (s *Service) runScope(ctx context.Context, scope string, startPage int) (ScopeReport, error) {
	sr := ScopeReport{Scope: scope, FirstPage: startPage, LastPage: startPage}
	var prev []string

	for page := startPage; ; page++ {
		if err := ctx.Err(); err != nil {
			sr.Final = StateAborted
			return sr, err
		}
		if s.settings.MaxPages > 0 && sr.Pages >= s.settings.MaxPages {
			s.log.WarnObj("page bound reached", "crawl_page", s.pageFields(scope, page, StateExhausted))
			sr.Final = StateExhausted
			return sr, nil
		}

		sr.LastPage = page
		sr.Pages++
		if err := s.saveCursor(domain.Cursor{Scope: scope, Page: page}); err != nil {
			sr.Final = StateAborted
			return sr, err
		}

		s.log.DebugObj("page state", "crawl_page", s.pageFields(scope, page, StateFetching))
		ids, timedOut, err := s.fetchPage(ctx, scope, page)
		if err != nil {
			sr.Final = StateAborted
			sr.Error = err.Error()
			return sr, err
		}
		if timedOut {
			sr.TimedOut++
			s.log.WarnObj("page fetch timed out; treating as empty", "crawl_page", s.pageFields(scope, page, StateTimedOut))
		}

		s.log.DebugObj("page state", "crawl_page", s.pageFields(scope, page, StateEvaluating))
		stop, err := s.exhausted(ctx, scope, page, prev, ids, timedOut)
		if errors.Is(err, errProbeTimedOut) {
			sr.TimedOut++
			s.log.WarnObj("page marker timed out; comparing identifiers", "crawl_page", s.pageFields(scope, page, StateTimedOut))
			stop, err = equalityStop(prev, ids), nil
		}
		if err != nil {
			sr.Final = StateAborted
			sr.Error = err.Error()
			return sr, err
		}
		if stop {
			s.log.InfoObj("scope exhausted", "crawl_page", s.pageFields(scope, page, StateExhausted))
			sr.Final = StateExhausted
			return sr, nil
		}
		prev = ids

		for _, id := range ids {
			if err := s.processItem(ctx, &sr, id); err != nil {
				sr.Final = StateAborted
				sr.Error = err.Error()
				return sr, err
			}
		}

		s.log.InfoObj("page processed", "crawl_page", map[string]any{
			"source":    s.src.Name(),
			"scope":     scope,
			"page":      page,
			"items":     len(ids),
			"persisted": sr.Persisted,
			"skipped":   sr.Skipped,
			"failed":    sr.Failed,
			"state":     StateAdvancing,
		})
	}
}

// fetchPage loads the identifiers of one page under the page retry policy and
// the page deadline. When the deadline passes, the in-flight fetch is left to
// finish on its own and the page is reported as timed out with no items.
func (s *Service) fetchPage(ctx context.Context, scope string, page int) ([]string, bool, error) {
	type result struct {
		ids []string
		err error
	}

	pctx, cancel := ctx, context.CancelFunc(func() {})
	if s.settings.PageTimeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, s.settings.PageTimeout)
	}
	defer cancel()

	done := make(chan result, 1)
	go func() {
		ids, err := retry.DoValue(pctx, s.settings.PageRetry, func(c context.Context) ([]string, error) {
			return s.src.FetchPageIdentifiers(c, scope, page)
		}, s.retryNotice("page", scope, page))
		done <- result{ids: ids, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-pctx.Done():
		select {
		case r = <-done:
		default:
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return nil, true, nil
		}
	}

	if r.err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if pctx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("%w: %s page %d: %w", ErrPageFetch, scopeLabel(scope), page, r.err)
	}
	return r.ids, false, nil
}

// errProbeTimedOut reports a marker probe that outlived the page deadline.
var errProbeTimedOut = errors.New("marker probe timed out")

// exhausted decides whether scope ends at page. A timed-out page never
// reached the site's marker, so it is judged by identifier equality instead.
// The marker probe runs under its own page deadline.
func (s *Service) exhausted(ctx context.Context, scope string, page int, prev, ids []string, timedOut bool) (bool, error) {
	if timedOut {
		return equalityStop(prev, ids), nil
	}
	switch s.settings.Termination {
	case TerminateMarker:
		pctx, cancel := ctx, context.CancelFunc(func() {})
		if s.settings.PageTimeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, s.settings.PageTimeout)
		}
		defer cancel()

		probe := s.src.(MarkerProbe)
		marker, err := probe.ProbeMarker(pctx, scope, page)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if pctx.Err() != nil {
				return false, errProbeTimedOut
			}
			return false, fmt.Errorf("%w: %s page %d: %w", ErrMarkerProbe, scopeLabel(scope), page, err)
		}
		s.log.DebugObj("page marker", "crawl_marker", map[string]any{
			"source":        s.src.Name(),
			"scope":         scope,
			"page":          page,
			"no_results":    marker.NoResults,
			"reported_page": marker.ReportedPage,
		})
		return markerStop(marker, page), nil
	default:
		return equalityStop(prev, ids), nil
	}
}

func (s *Service) processItem(ctx context.Context, sr *ScopeReport, id string) error {
	if s.ledger.Seen(id) {
		sr.Skipped++
		s.log.DebugObj("listing already persisted", "crawl_item", map[string]any{
			"source":     s.src.Name(),
			"identifier": id,
		})
		return nil
	}

	if s.pace != nil {
		if err := s.pace.Wait(ctx); err != nil {
			return err
		}
	}

	listing, err := retry.DoValue(ctx, s.settings.ItemRetry, func(c context.Context) (domain.RawListing, error) {
		return s.src.FetchListing(c, id)
	}, s.retryNotice("item", sr.Scope, sr.LastPage))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sr.Failed++
		s.log.WarnObj("listing fetch failed; skipping", "crawl_item", map[string]any{
			"source":     s.src.Name(),
			"identifier": id,
			"error":      err.Error(),
		})
		return nil
	}
	listing.Identifier = id

	if err := s.sink.Append(listing); err != nil {
		return fmt.Errorf("%w: append listing %s: %w", ErrPersistence, id, err)
	}
	if err := s.ledger.Record(id); err != nil {
		return fmt.Errorf("%w: record %s: %w", ErrPersistence, id, err)
	}
	sr.Persisted++
	s.log.DebugObj("listing persisted", "crawl_item", map[string]any{
		"source":     s.src.Name(),
		"identifier": id,
	})

	s.publish(ctx, listing)
	return nil
}

func (s *Service) publish(ctx context.Context, listing domain.RawListing) {
	if s.events == nil {
		return
	}
	evt, err := publishers.NewListingEvent(s.src.Name(), listing)
	if err == nil {
		err = s.events.Publish(ctx, evt)
	}
	if err != nil {
		s.log.WarnObj("listing event publish failed", "publish_error", map[string]any{
			"source":     s.src.Name(),
			"identifier": listing.Identifier,
			"error":      err.Error(),
		})
	}
}

func (s *Service) saveCursor(cur domain.Cursor) error {
	if s.cursor == nil {
		return nil
	}
	if err := s.cursor.Save(cur); err != nil {
		return fmt.Errorf("%w: save cursor %s: %w", ErrPersistence, cur, err)
	}
	return nil
}

func (s *Service) retryNotice(kind, scope string, page int) retry.Notify {
	return func(attempt int, err error, wait time.Duration) {
		s.log.WarnObj("retrying after failure", "crawl_retry", map[string]any{
			"source":  s.src.Name(),
			"kind":    kind,
			"scope":   scope,
			"page":    page,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	}
}

func (s *Service) pageFields(scope string, page int, state State) map[string]any {
	return map[string]any{
		"source": s.src.Name(),
		"scope":  scope,
		"page":   page,
		"state":  state,
	}
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "default scope"
	}
	return "scope " + scope
}
