package sources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMissingElement marks a required element absent from a page.
var ErrMissingElement = errors.New("required element not found")

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// cleanText collapses runs of spaces within each line and drops blank lines.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// firstText returns the cleaned text of the first match and whether one existed.
func firstText(doc *goquery.Document, selector string) (string, bool) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return cleanText(sel.Text()), true
}

func requiredText(doc *goquery.Document, selector string) (string, error) {
	text, ok := firstText(doc, selector)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingElement, selector)
	}
	return text, nil
}

func optionalText(doc *goquery.Document, selector string) *string {
	text, ok := firstText(doc, selector)
	if !ok {
		return nil
	}
	return &text
}

// allTexts returns the cleaned text of every match, skipping empty ones.
func allTexts(doc *goquery.Document, selector string) []string {
	out := []string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := cleanText(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// hrefs returns the href of every match in document order, without repeats.
func hrefs(sel *goquery.Selection) []string {
	seen := make(map[string]struct{})
	out := []string{}
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		out = append(out, href)
	})
	return out
}

// firstLinks selects the first anchor inside each container match.
func firstLinks(doc *goquery.Document, container string) *goquery.Selection {
	containers := doc.Find(container)
	out := containers.Slice(0, 0)
	containers.Each(func(_ int, s *goquery.Selection) {
		out = out.AddSelection(s.Find("a").First())
	})
	return out
}
