// Package domain contains core models shared by crawl and enrichment.
package domain

import "strconv"

// RawListing is a listing as scraped from a source, written once as a JSON line.
type RawListing struct {
	Identifier  string   `json:"identifier"`
	Price       string   `json:"price"`
	Description *string  `json:"description"`
	Details     []string `json:"details"`
}

// Cursor marks crawl progress through a paginated scope.
type Cursor struct {
	Scope string
	Page  int
}

func (c Cursor) String() string {
	if c.Scope == "" {
		return "page " + strconv.Itoa(c.Page)
	}
	return c.Scope + " page " + strconv.Itoa(c.Page)
}

// PageMarker is what a result page says about itself. ReportedPage is zero
// when the page does not show a current page number.
type PageMarker struct {
	NoResults    bool
	ReportedPage int
}
