package app

import (
	"context"
	"errors"
	"time"

	"github.com/Adda-Baaj/casa-harvester/internal/logger"
	"github.com/Adda-Baaj/casa-harvester/internal/retry"
)

// Supervisor re-runs a whole crawl or enrichment pass after operational
// failures. Ledger, cursor and cache make a rerun resume rather than repeat.
type Supervisor struct {
	policy retry.Policy
	log    logger.Logger
}

// NewSupervisor retries up to maxAttempts times with exponential waits from
// 500ms to 30s. maxAttempts of zero runs once.
func NewSupervisor(maxAttempts int, log logger.Logger) Supervisor {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return Supervisor{
		policy: retry.Exponential(500*time.Millisecond, 30*time.Second, maxAttempts),
		log:    logger.Ensure(log),
	}
}

// Run calls op until it succeeds. Fatal and partial outcomes are returned
// without retrying.
func (s Supervisor) Run(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, ErrFatalConfig) || errors.Is(err, ErrPartial) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		s.log.WarnObj("run failed; restarting", "supervisor", map[string]any{
			"run":          name,
			"attempt":      attempt,
			"max_attempts": s.policy.MaxAttempts,
			"wait_ms":      wait.Milliseconds(),
			"error":        err.Error(),
		})
	})
}
