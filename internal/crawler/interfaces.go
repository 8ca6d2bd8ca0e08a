package crawler

import (
	"context"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/Adda-Baaj/casa-harvester/pkg/publishers"
)

// Source is a paginated listing site.
type Source interface {
	Name() string
	// Scopes lists the partitions walked in order. Nil means one unnamed scope.
	Scopes() []string
	FetchPageIdentifiers(ctx context.Context, scope string, page int) ([]string, error)
	FetchListing(ctx context.Context, identifier string) (domain.RawListing, error)
}

// MarkerProbe is implemented by sources whose result pages report their own
// position. It inspects the page most recently loaded for scope/page.
type MarkerProbe interface {
	ProbeMarker(ctx context.Context, scope string, page int) (domain.PageMarker, error)
}

// ListingSink persists raw listings.
type ListingSink interface {
	Append(v any) error
}

// CursorStore persists crawl progress for resumable sources.
type CursorStore interface {
	Load() (domain.Cursor, bool, error)
	Save(domain.Cursor) error
	Clear() error
}

// EventPublisher publishes persisted listings downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) error
}
