// Package browser drives a single headless Chrome tab through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrStart is returned when the browser process cannot be launched.
	ErrStart = errors.New("browser start failed")
	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("browser session closed")
)

// Options configures the browser process.
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
}

// Page is a rendered document and the URL the tab ended up on.
type Page struct {
	URL  string
	HTML string
}

// Session owns one browser tab. Navigation is serialized, so a session must
// not be shared between sources.
type Session struct {
	mu          sync.Mutex
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closed      bool
}

// Start launches the browser and opens the tab.
func Start(opts Options) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// an empty Run starts the process so a missing binary fails here
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrStart, err)
	}

	return &Session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

// Load navigates to url, waits settle, optionally waits until waitFor is
// visible, and returns the rendered HTML with the final location. When ctx
// ends first the navigation is abandoned and the tab stays usable.
func (s *Session) Load(ctx context.Context, url string, settle time.Duration, waitFor string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Page{}, ErrClosed
	}

	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var page Page
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		hideWebDriver(),
	}
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	if waitFor != "" {
		actions = append(actions, chromedp.WaitVisible(waitFor, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
		chromedp.Location(&page.URL),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, fmt.Errorf("load %s: %w", url, err)
	}
	return page, nil
}

// Close shuts down the tab and the browser process.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.tabCancel()
	s.allocCancel()
	return nil
}
