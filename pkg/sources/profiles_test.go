package sources

import (
	"errors"
	"slices"
	"testing"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/PuerkitoBio/goquery"
)

func TestRemaxProfile(t *testing.T) {
	list, err := parseDocument(`<div class="pl-0"><a href="/pt/imoveis/a/1">A</a><a href="/pt/imoveis/b/2">B</a><a href="/pt/imoveis/a/1">A</a></div>
		<div class="pl-0"><a href="/elsewhere">x</a></div>`)
	if err != nil {
		t.Fatal(err)
	}
	ids := remaxProfile{}.Identifiers(list)
	if want := []string{"/pt/imoveis/a/1", "/pt/imoveis/b/2"}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	detail, _ := parseDocument(`<main><h2><b>250 000 €</b></h2></main>
		<div id="description">  Bright flat
		near the river </div>
		<div id="details"><div class="flex">Área útil 90 m²</div><div class="flex">Quartos 2</div></div>`)
	listing, err := remaxProfile{}.Listing(detail, "/pt/imoveis/a/1")
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if listing.Price != "250 000 €" || listing.Identifier != "/pt/imoveis/a/1" {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if listing.Description == nil || *listing.Description != "Bright flat\nnear the river" {
		t.Fatalf("unexpected description %v", listing.Description)
	}
	if !slices.Equal(listing.Details, []string{"Área útil 90 m²", "Quartos 2"}) {
		t.Fatalf("unexpected details %v", listing.Details)
	}

	missing, _ := parseDocument(`<main><h2><b>1 €</b></h2></main>`)
	if _, err := (remaxProfile{}).Listing(missing, "x"); !errors.Is(err, ErrMissingElement) {
		t.Fatalf("expected missing description error, got %v", err)
	}
}

func TestEraProfile(t *testing.T) {
	list, _ := parseDocument(`<div class="card"><a href="https://www.era.pt/imovel/1">one</a><a href="https://www.era.pt/agente">agent</a></div>
		<div class="card"><a href="https://www.era.pt/imovel/2">two</a></div>
		<div class="card">no link</div>`)
	ids := eraProfile{}.Identifiers(list)
	if want := []string{"https://www.era.pt/imovel/1", "https://www.era.pt/imovel/2"}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	detail, _ := parseDocument(`<span class="price-value">180.000 €</span><div class="detail">T3</div>`)
	listing, err := eraProfile{}.Listing(detail, ids[0])
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if listing.Description != nil {
		t.Fatalf("expected absent description, got %q", *listing.Description)
	}
	if listing.Price != "180.000 €" || !slices.Equal(listing.Details, []string{"T3"}) {
		t.Fatalf("unexpected listing %+v", listing)
	}
}

func TestSupercasasMarker(t *testing.T) {
	p := supercasasProfile{}
	results, _ := parseDocument(`<div class="property-list-title"><a href="/venda/i1">1</a></div>`)
	empty, _ := parseDocument(`<div class="home-search-content">Não encontrámos imóveis para o que procuras...</div>`)

	cases := []struct {
		name string
		url  string
		doc  *goquery.Document
		want domain.PageMarker
	}{
		{"current page", "https://supercasa.pt/comprar-casas/porto-distrito/pagina-3?ordem=atualizado-desc", results, domain.PageMarker{ReportedPage: 3}},
		{"clamped page", "https://supercasa.pt/comprar-casas/porto-distrito/pagina-7", results, domain.PageMarker{ReportedPage: 7}},
		{"first page has no suffix", "https://supercasa.pt/comprar-casas/porto-distrito", results, domain.PageMarker{ReportedPage: 1}},
		{"redirected away", "https://supercasa.pt/comprar-casas", results, domain.PageMarker{NoResults: true}},
		{"empty banner", "https://supercasa.pt/comprar-casas/porto-distrito/pagina-9", empty, domain.PageMarker{NoResults: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Marker(Page{URL: tc.url}, tc.doc, "porto", nil)
			if got != tc.want {
				t.Fatalf("marker = %+v, want %+v", got, tc.want)
			}
		})
	}

	if ids := p.Identifiers(results); !slices.Equal(ids, []string{"/venda/i1"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestImovirtualProfile(t *testing.T) {
	p := imovirtualProfile{}
	empty, _ := parseDocument(`<div data-cy="no-search-results">Nenhum resultado encontrado</div>`)
	if m := p.Marker(Page{}, empty, "", nil); !m.NoResults {
		t.Fatalf("expected no results marker")
	}
	full, _ := parseDocument(`<a data-cy="listing-item-link" href="/pt/anuncio/a">a</a><a data-cy="listing-item-link" href="/pt/anuncio/b">b</a>`)
	if m := p.Marker(Page{}, full, "", nil); m != (domain.PageMarker{}) {
		t.Fatalf("expected neutral marker, got %+v", m)
	}
	if ids := p.Identifiers(full); len(ids) != 2 {
		t.Fatalf("unexpected ids %v", ids)
	}

	detail, _ := parseDocument(`<div data-cy="adPageAdDescription">Moradia</div>`)
	listing, err := p.Listing(detail, "/pt/anuncio/a")
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if listing.Price != "" {
		t.Fatalf("price is optional, got %q", listing.Price)
	}
}

func TestIdealistaProfile(t *testing.T) {
	p := idealistaProfile{}
	list, _ := parseDocument(`<a href="/imovel/1/">1</a><a href="/imovel/1/">again</a><a href="/imovel/2/">2</a><a href="/agencia/x">x</a>
		<ul><li class="selected"><span>4</span></li></ul>`)
	ids := p.Identifiers(list)
	if !slices.Equal(ids, []string{"/imovel/1/", "/imovel/2/"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if m := p.Marker(Page{}, list, "lisboa", ids); m.ReportedPage != 4 || m.NoResults {
		t.Fatalf("unexpected marker %+v", m)
	}

	single, _ := parseDocument(`<a href="/imovel/9/">9</a>`)
	if m := p.Marker(Page{}, single, "beja", []string{"/imovel/9/"}); m.ReportedPage != 1 {
		t.Fatalf("single page without paginator should report page 1, got %+v", m)
	}
	blank, _ := parseDocument(`<p>nada</p>`)
	if m := p.Marker(Page{}, blank, "beja", nil); !m.NoResults {
		t.Fatalf("expected no results, got %+v", m)
	}

	detail, _ := parseDocument(`<span class="info-data-price">320.000 €</span>
		<div class="details-property">
			<li>120 m² área bruta</li>
			<li>T3</li>
		</div>`)
	listing, err := p.Listing(detail, "/imovel/1/")
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if !slices.Equal(listing.Details, []string{"120 m² área bruta", "T3"}) {
		t.Fatalf("unexpected details %q", listing.Details)
	}
	if listing.Description != nil {
		t.Fatalf("expected no description")
	}
}
