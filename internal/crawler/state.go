package crawler

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Adda-Baaj/casa-harvester/internal/domain"
	"github.com/Adda-Baaj/casa-harvester/internal/retry"
)

// State is a pagination controller state.
type State int

const (
	StateFetching State = iota + 1
	StateEvaluating
	StateAdvancing
	StateExhausted
	StateTimedOut
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateEvaluating:
		return "evaluating"
	case StateAdvancing:
		return "advancing"
	case StateExhausted:
		return "exhausted"
	case StateTimedOut:
		return "timed_out"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Termination selects how a source signals its last page.
type Termination string

const (
	// TerminateEquality stops when a page repeats the previous page's identifiers.
	TerminateEquality Termination = "equality"
	// TerminateMarker stops when the page marker reports no results or a
	// different page than the one requested.
	TerminateMarker Termination = "marker"
)

// ParseTermination validates a configured termination policy name.
func ParseTermination(raw string) (Termination, error) {
	switch t := Termination(strings.ToLower(strings.TrimSpace(raw))); t {
	case TerminateEquality, TerminateMarker:
		return t, nil
	case "":
		return TerminateEquality, nil
	default:
		return "", fmt.Errorf("unknown termination policy %q", raw)
	}
}

// Settings are the per-source knobs of the controller.
type Settings struct {
	Termination Termination
	// PageTimeout bounds a page identifier fetch, retries included. Zero
	// disables the bound.
	PageTimeout time.Duration
	PageRetry   retry.Policy
	ItemRetry   retry.Policy
	// ItemDelay is the minimum spacing between listing fetches.
	ItemDelay time.Duration
	// MaxPages bounds pages walked per scope in one run. Zero is unbounded.
	MaxPages int
}

func (s Settings) withDefaults() Settings {
	if s.Termination == "" {
		s.Termination = TerminateEquality
	}
	if s.PageRetry.MaxAttempts <= 0 {
		s.PageRetry = retry.Once()
	}
	if s.ItemRetry.MaxAttempts <= 0 {
		s.ItemRetry = retry.Once()
	}
	return s
}

// equalityStop reports whether ids repeat prev. The first page compares
// against an empty sequence, so an empty first page stops the scope.
func equalityStop(prev, ids []string) bool {
	return slices.Equal(prev, ids)
}

// markerStop reports whether marker says page is past the end.
func markerStop(marker domain.PageMarker, page int) bool {
	if marker.NoResults {
		return true
	}
	return marker.ReportedPage != 0 && marker.ReportedPage != page
}
