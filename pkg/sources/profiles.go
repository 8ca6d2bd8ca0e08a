package sources

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/PuerkitoBio/goquery"
)

// remax: listing ids are relative paths under .pl-0 containers.
type remaxProfile struct{}

func (remaxProfile) ListReady() string { return ".pl-0 a" }

func (remaxProfile) Identifiers(doc *goquery.Document) []string {
	return hrefs(doc.Find(".pl-0").First().Find("a"))
}

func (remaxProfile) Listing(doc *goquery.Document, id string) (domain.RawListing, error) {
	description, err := requiredText(doc, "#description")
	if err != nil {
		return domain.RawListing{}, err
	}
	price, err := requiredText(doc, "main h2 b")
	if err != nil {
		return domain.RawListing{}, err
	}
	return domain.RawListing{
		Identifier:  id,
		Price:       price,
		Description: &description,
		Details:     allTexts(doc, "#details .flex"),
	}, nil
}

// era: ids are the absolute URLs of each card's first link.
type eraProfile struct{}

func (eraProfile) ListReady() string { return ".card a" }

func (eraProfile) Identifiers(doc *goquery.Document) []string {
	return hrefs(firstLinks(doc, ".card"))
}

func (eraProfile) Listing(doc *goquery.Document, id string) (domain.RawListing, error) {
	price, err := requiredText(doc, ".price-value")
	if err != nil {
		return domain.RawListing{}, err
	}
	return domain.RawListing{
		Identifier:  id,
		Price:       price,
		Description: optionalText(doc, "#detail-description"),
		Details:     allTexts(doc, ".detail"),
	}, nil
}

const supercasasEmptyText = "Não encontrámos imóveis para o que procuras..."

var paginaPattern = regexp.MustCompile(`pagina-(\d+)`)

// supercasas walks districts; a redirect away from the district or the
// empty-results banner ends it.
type supercasasProfile struct{}

func (supercasasProfile) ListReady() string {
	return ".property-list-title a, .home-search-content"
}

func (supercasasProfile) Identifiers(doc *goquery.Document) []string {
	return hrefs(firstLinks(doc, ".property-list-title"))
}

func (supercasasProfile) Listing(doc *goquery.Document, id string) (domain.RawListing, error) {
	price, err := requiredText(doc, ".property-price span")
	if err != nil {
		return domain.RawListing{}, err
	}
	return domain.RawListing{
		Identifier:  id,
		Price:       price,
		Description: optionalText(doc, ".detail-info-description-txt"),
		Details:     allTexts(doc, ".detail-info-features-list"),
	}, nil
}

func (supercasasProfile) Marker(page Page, doc *goquery.Document, scope string, _ []string) domain.PageMarker {
	if text, ok := firstText(doc, ".home-search-content"); ok && strings.Contains(text, supercasasEmptyText) {
		return domain.PageMarker{NoResults: true}
	}
	if scope != "" && !strings.Contains(page.URL, scope) {
		return domain.PageMarker{NoResults: true}
	}
	reported := 1
	if m := paginaPattern.FindStringSubmatch(page.URL); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			reported = n
		}
	}
	return domain.PageMarker{ReportedPage: reported}
}

const imovirtualEmptyText = "Nenhum resultado encontrado"

type imovirtualProfile struct{}

func (imovirtualProfile) ListReady() string {
	return "[data-cy='listing-item-link'], [data-cy='no-search-results']"
}

func (imovirtualProfile) Identifiers(doc *goquery.Document) []string {
	return hrefs(doc.Find("[data-cy='listing-item-link']"))
}

func (imovirtualProfile) Listing(doc *goquery.Document, id string) (domain.RawListing, error) {
	description, err := requiredText(doc, "[data-cy='adPageAdDescription']")
	if err != nil {
		return domain.RawListing{}, err
	}
	price, _ := firstText(doc, "[data-cy='adPageHeaderPrice']")
	return domain.RawListing{
		Identifier:  id,
		Price:       price,
		Description: &description,
		Details:     allTexts(doc, ".e15n0fyo2"),
	}, nil
}

func (imovirtualProfile) Marker(_ Page, doc *goquery.Document, _ string, _ []string) domain.PageMarker {
	text, ok := firstText(doc, "[data-cy='no-search-results']")
	return domain.PageMarker{NoResults: ok && strings.Contains(text, imovirtualEmptyText)}
}

// idealista shows the current page in its paginator. Past the last page it
// either drops the paginator or highlights the last real page.
type idealistaProfile struct{}

func (idealistaProfile) ListReady() string { return "" }

func (idealistaProfile) Identifiers(doc *goquery.Document) []string {
	return hrefs(doc.Find("a[href^='/imovel']"))
}

func (idealistaProfile) Listing(doc *goquery.Document, id string) (domain.RawListing, error) {
	details, err := requiredText(doc, ".details-property")
	if err != nil {
		return domain.RawListing{}, err
	}
	price, err := requiredText(doc, ".info-data-price")
	if err != nil {
		return domain.RawListing{}, err
	}
	return domain.RawListing{
		Identifier:  id,
		Price:       price,
		Description: optionalText(doc, ".comment"),
		Details:     strings.Split(details, "\n"),
	}, nil
}

func (idealistaProfile) Marker(_ Page, doc *goquery.Document, _ string, ids []string) domain.PageMarker {
	text, ok := firstText(doc, "li.selected span")
	if !ok {
		if len(ids) == 0 {
			return domain.PageMarker{NoResults: true}
		}
		return domain.PageMarker{ReportedPage: 1}
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return domain.PageMarker{ReportedPage: 1}
	}
	return domain.PageMarker{ReportedPage: n}
}
