package sources

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/PuerkitoBio/goquery"
)

// Profile extracts data from one site's markup.
type Profile interface {
	// ListReady is a selector that is visible once a list page has rendered,
	// including its empty state. Empty means no wait.
	ListReady() string
	Identifiers(doc *goquery.Document) []string
	Listing(doc *goquery.Document, id string) (domain.RawListing, error)
}

// MarkerProfile is a Profile whose result pages report their own position.
type MarkerProfile interface {
	Profile
	Marker(page Page, doc *goquery.Document, scope string, ids []string) domain.PageMarker
}

var profiles = map[string]Profile{
	"remax":      remaxProfile{},
	"era":        eraProfile{},
	"supercasas": supercasasProfile{},
	"imovirtual": imovirtualProfile{},
	"idealista":  idealistaProfile{},
}

// Supported lists the source ids with an extraction profile, sorted.
func Supported() []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ErrNoMarker is returned when probing a source without page markers.
var ErrNoMarker = errors.New("source has no page marker")

// HTMLSource crawls a site through a Loader and its extraction Profile.
type HTMLSource struct {
	cfg     Config
	profile Profile
	loader  Loader
	scopes  []string

	mu   sync.Mutex
	last listPage
}

type listPage struct {
	scope string
	page  int
	ok    bool
	raw   Page
	doc   *goquery.Document
	ids   []string
}

// New builds the source for a validated config.
func New(cfg Config, loader Loader) (*HTMLSource, error) {
	if loader == nil {
		return nil, errors.New("source loader is nil")
	}
	profile, ok := profiles[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("no extraction profile for source %q", cfg.ID)
	}
	return &HTMLSource{
		cfg:     cfg,
		profile: profile,
		loader:  loader,
		scopes:  cfg.ResolvedScopes(),
	}, nil
}

func (s *HTMLSource) Name() string     { return s.cfg.ID }
func (s *HTMLSource) Scopes() []string { return append([]string(nil), s.scopes...) }
func (s *HTMLSource) Config() Config   { return s.cfg }

// FetchPageIdentifiers loads a list page and returns its listing identifiers
// in page order.
func (s *HTMLSource) FetchPageIdentifiers(ctx context.Context, scope string, page int) ([]string, error) {
	lp, err := s.loadList(ctx, scope, page, s.profile.ListReady())
	if err != nil {
		return nil, err
	}
	return append([]string(nil), lp.ids...), nil
}

// FetchListing loads a detail page and extracts the raw listing.
func (s *HTMLSource) FetchListing(ctx context.Context, id string) (domain.RawListing, error) {
	p, err := s.loader.Load(ctx, s.cfg.ListingURLFor(id), s.cfg.itemSettle(), "")
	if err != nil {
		return domain.RawListing{}, err
	}
	doc, err := parseDocument(p.HTML)
	if err != nil {
		return domain.RawListing{}, err
	}
	listing, err := s.profile.Listing(doc, id)
	if err != nil {
		return domain.RawListing{}, fmt.Errorf("%s listing %s: %w", s.cfg.ID, id, err)
	}
	return listing, nil
}

// ProbeMarker reads the marker of the list page last loaded for scope/page,
// reloading it under ctx when another page was loaded since.
func (s *HTMLSource) ProbeMarker(ctx context.Context, scope string, page int) (domain.PageMarker, error) {
	mp, ok := s.profile.(MarkerProfile)
	if !ok {
		return domain.PageMarker{}, fmt.Errorf("%w: %s", ErrNoMarker, s.cfg.ID)
	}

	s.mu.Lock()
	lp := s.last
	s.mu.Unlock()

	if !lp.ok || lp.scope != scope || lp.page != page {
		var err error
		if lp, err = s.loadList(ctx, scope, page, ""); err != nil {
			return domain.PageMarker{}, err
		}
	}
	return mp.Marker(lp.raw, lp.doc, scope, lp.ids), nil
}

func (s *HTMLSource) loadList(ctx context.Context, scope string, page int, waitFor string) (listPage, error) {
	p, err := s.loader.Load(ctx, s.cfg.PageURL(scope, page), s.cfg.pageSettle(), waitFor)
	if err != nil {
		return listPage{}, err
	}
	doc, err := parseDocument(p.HTML)
	if err != nil {
		return listPage{}, err
	}

	lp := listPage{
		scope: scope,
		page:  page,
		ok:    true,
		raw:   p,
		doc:   doc,
		ids:   s.profile.Identifiers(doc),
	}

	s.mu.Lock()
	s.last = lp
	s.mu.Unlock()
	return lp, nil
}
