package app

import (
	"errors"
	"fmt"
)

var (
	// ErrFatalConfig marks failures that no retry can fix: missing
	// credentials, unreadable registries, a browser that will not start.
	ErrFatalConfig = errors.New("fatal configuration error")
	// ErrPartial marks a crawl that finished with aborted scopes.
	ErrPartial = errors.New("crawl finished with aborted scopes")
)

// Exit codes returned by the harvester binary.
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitPartial = 2
)

func fatal(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrFatalConfig, fmt.Errorf(format, args...))
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPartial):
		return ExitPartial
	default:
		return ExitFailed
	}
}
