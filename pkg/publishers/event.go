package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
)

// Event kinds.
const (
	KindListingPersisted = "listing.persisted"
	KindListingEnriched  = "listing.enriched"
)

// Event represents the payload published downstream.
type Event struct {
	Kind        string          `json:"kind"`
	Source      string          `json:"source"`
	Identifier  string          `json:"identifier"`
	Payload     json.RawMessage `json:"payload"`
	CollectedAt time.Time       `json:"collected_at"`
}

// NewListingEvent wraps a freshly persisted raw listing.
func NewListingEvent(source string, listing domain.RawListing) (Event, error) {
	raw, err := json.Marshal(listing)
	if err != nil {
		return Event{}, fmt.Errorf("marshal listing: %w", err)
	}
	return Event{
		Kind:        KindListingPersisted,
		Source:      source,
		Identifier:  listing.Identifier,
		Payload:     raw,
		CollectedAt: time.Now().UTC(),
	}, nil
}

// NewEnrichmentEvent wraps a serialized enrichment response. response must be
// valid JSON.
func NewEnrichmentEvent(identifier, response string) Event {
	return Event{
		Kind:        KindListingEnriched,
		Source:      "llm",
		Identifier:  identifier,
		Payload:     json.RawMessage(response),
		CollectedAt: time.Now().UTC(),
	}
}
