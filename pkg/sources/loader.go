package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/casa-harvester/pkg/browser"
	"github.com/Adda-Baaj/casa-harvester/pkg/httpclient"
)

const maxHTMLBodyBytes = 4 << 20 // 4 MiB

// Page is a loaded document.
type Page = browser.Page

// Loader fetches a rendered page. settle is the wait after navigation and
// waitFor an optional CSS selector that must be visible before reading.
type Loader interface {
	Load(ctx context.Context, url string, settle time.Duration, waitFor string) (Page, error)
}

// HTTPLoader fetches pages without a browser. It ignores settle and waitFor,
// so it only suits sites that render listings server side.
type HTTPLoader struct {
	client  httpclient.Client
	headers map[string]string
}

// NewHTTPLoader wraps client; headers are sent with every request.
func NewHTTPLoader(client httpclient.Client, headers map[string]string) *HTTPLoader {
	if client == nil {
		client = httpclient.NewRestyClient(30 * time.Second)
	}
	return &HTTPLoader{client: client, headers: headers}
}

func (l *HTTPLoader) Load(ctx context.Context, url string, _ time.Duration, _ string) (Page, error) {
	resp, err := l.client.Get(ctx, url, l.headers)
	if err != nil {
		return Page{}, fmt.Errorf("http fetch %s: %w", url, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return Page{}, fmt.Errorf("%s returned status %d body: %s", url, resp.StatusCode(), responseSnippet(body))
	}
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}
	return Page{URL: url, HTML: string(body)}, nil
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
