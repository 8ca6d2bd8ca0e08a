package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adda-Baaj/casa-harvester/internal/crawler"
	"github.com/Adda-Baaj/casa-harvester/pkg/httpclient"
)

type loadCall struct {
	url     string
	settle  time.Duration
	waitFor string
}

type fakeLoader struct {
	mu    sync.Mutex
	pages map[string]Page
	calls []loadCall
	err   error
}

func (f *fakeLoader) Load(_ context.Context, url string, settle time.Duration, waitFor string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, loadCall{url: url, settle: settle, waitFor: waitFor})
	if f.err != nil {
		return Page{}, f.err
	}
	p, ok := f.pages[url]
	if !ok {
		return Page{}, errors.New("not found: " + url)
	}
	if p.URL == "" {
		p.URL = url
	}
	return p, nil
}

// stallingLoader never answers; it returns only when ctx ends.
type stallingLoader struct {
	mu    sync.Mutex
	loads int
}

func (s *stallingLoader) Load(ctx context.Context, _ string, _ time.Duration, _ string) (Page, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	<-ctx.Done()
	return Page{}, ctx.Err()
}

type discardSink struct{}

func (discardSink) Append(any) error { return nil }

func supercasasConfig() Config {
	return Config{
		ID:           "supercasas",
		ListURL:      "https://supercasa.pt/comprar-casas/{scope}-distrito/pagina-{page}",
		ListingURL:   "https://supercasa.pt/{id}",
		Scopes:       []string{"porto", "faro"},
		Termination:  "marker",
		PageSettleMs: 2500,
		ItemSettleMs: 200,
	}
}

func TestHTMLSourceFetchesPagesAndListings(t *testing.T) {
	loader := &fakeLoader{pages: map[string]Page{
		"https://supercasa.pt/comprar-casas/porto-distrito/pagina-1": {HTML: `<div class="property-list-title"><a href="/venda/i1">1</a></div>
			<div class="property-list-title"><a href="/venda/i2">2</a></div>`},
		"https://supercasa.pt/venda/i1": {HTML: `<div class="property-price"><span>99 000 €</span></div>
			<div class="detail-info-description-txt">Casa</div>`},
	}}
	src, err := New(supercasasConfig(), loader)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !slices.Equal(src.Scopes(), []string{"porto", "faro"}) || src.Name() != "supercasas" {
		t.Fatalf("unexpected source identity %s %v", src.Name(), src.Scopes())
	}

	ids, err := src.FetchPageIdentifiers(context.Background(), "porto", 1)
	if err != nil {
		t.Fatalf("FetchPageIdentifiers: %v", err)
	}
	if !slices.Equal(ids, []string{"/venda/i1", "/venda/i2"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if c := loader.calls[0]; c.settle != 2500*time.Millisecond || !strings.Contains(c.waitFor, ".property-list-title") {
		t.Fatalf("unexpected list load %+v", c)
	}

	marker, err := src.ProbeMarker(context.Background(), "porto", 1)
	if err != nil {
		t.Fatalf("ProbeMarker: %v", err)
	}
	if marker.NoResults || marker.ReportedPage != 1 {
		t.Fatalf("unexpected marker %+v", marker)
	}
	if len(loader.calls) != 1 {
		t.Fatalf("probe should reuse the loaded page, got %d loads", len(loader.calls))
	}

	listing, err := src.FetchListing(context.Background(), "/venda/i1")
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if listing.Price != "99 000 €" || listing.Identifier != "/venda/i1" {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if c := loader.calls[1]; c.settle != 200*time.Millisecond || c.waitFor != "" {
		t.Fatalf("unexpected listing load %+v", c)
	}
}

func TestHTMLSourceProbeReloadsOtherPage(t *testing.T) {
	loader := &fakeLoader{pages: map[string]Page{
		"https://supercasa.pt/comprar-casas/faro-distrito/pagina-4": {
			URL:  "https://supercasa.pt/comprar-casas/faro-distrito/pagina-2",
			HTML: `<div class="property-list-title"><a href="/venda/i9">9</a></div>`,
		},
	}}
	src, err := New(supercasasConfig(), loader)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	marker, err := src.ProbeMarker(context.Background(), "faro", 4)
	if err != nil {
		t.Fatalf("ProbeMarker: %v", err)
	}
	if marker.ReportedPage != 2 {
		t.Fatalf("expected redirect to page 2 to be reported, got %+v", marker)
	}
	if len(loader.calls) != 1 || loader.calls[0].waitFor != "" {
		t.Fatalf("unexpected loads %+v", loader.calls)
	}
}

func TestHTMLSourceErrors(t *testing.T) {
	if _, err := New(Config{ID: "olx"}, &fakeLoader{}); err == nil {
		t.Fatalf("expected unknown profile error")
	}
	if _, err := New(supercasasConfig(), nil); err == nil {
		t.Fatalf("expected nil loader error")
	}

	remax, err := New(Config{ID: "remax", ListURL: "https://remax/{page}"}, &fakeLoader{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := remax.ProbeMarker(context.Background(), "", 1); !errors.Is(err, ErrNoMarker) {
		t.Fatalf("expected ErrNoMarker, got %v", err)
	}

	boom := errors.New("navigation failed")
	src, _ := New(supercasasConfig(), &fakeLoader{err: boom})
	if _, err := src.FetchPageIdentifiers(context.Background(), "porto", 1); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if _, err := src.FetchListing(context.Background(), "/venda/i1"); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestHTTPLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Language") != "pt-PT" {
			t.Errorf("missing configured header")
		}
		if r.URL.Path == "/gone" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte(`<html><body><div class="card"><a href="/imovel/1">1</a></div></body></html>`))
	}))
	defer srv.Close()

	loader := NewHTTPLoader(httpclient.NewRestyClient(5*time.Second), map[string]string{"Accept-Language": "pt-PT"})
	page, err := loader.Load(context.Background(), srv.URL+"/list", time.Hour, ".never")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if page.URL != srv.URL+"/list" || !strings.Contains(page.HTML, "imovel/1") {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := loader.Load(context.Background(), srv.URL+"/gone", 0, ""); err == nil || !strings.Contains(err.Error(), "410") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestStalledMarkerSiteHonoursPageTimeout(t *testing.T) {
	loader := &stallingLoader{}
	src, err := New(Config{
		ID:          "imovirtual",
		ListURL:     "https://www.imovirtual.com/comprar/apartamento/?page={page}",
		ListingURL:  "https://www.imovirtual.com{id}",
		Termination: "marker",
	}, loader)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc, err := crawler.NewService(src, crawler.Options{
		Sink: discardSink{},
		Settings: crawler.Settings{
			Termination: crawler.TerminateMarker,
			PageTimeout: 100 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	report, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("run took %s with a 100ms page timeout", elapsed)
	}
	sr := report.Scopes[0]
	if sr.Aborted() || sr.TimedOut != 1 || sr.Final != crawler.StateExhausted {
		t.Fatalf("unexpected scope report %+v", sr)
	}
	loader.mu.Lock()
	defer loader.mu.Unlock()
	if loader.loads != 1 {
		t.Fatalf("loads = %d, want 1", loader.loads)
	}
}

func TestProbeMarkerReloadHonoursContext(t *testing.T) {
	src, err := New(Config{ID: "idealista", ListURL: "https://www.idealista.pt/comprar-casas/{scope}/pagina-{page}", Scopes: []string{"porto"}}, &stallingLoader{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = src.ProbeMarker(ctx, "porto", 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
