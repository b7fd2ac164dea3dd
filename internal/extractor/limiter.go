package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/models"
)

// Limited wraps an Extractor with the inference service's own concurrency
// cap and call rate, independent of the mailbox worker pool. Callers park
// here waiting for a slot without holding any mailbox connection.
type Limited struct {
	inner       Extractor
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
	callTimeout time.Duration
	maxRetries  int
}

// NewLimited wraps inner with the configured concurrency and rate caps
func NewLimited(inner Extractor, cfg *config.ExtractorConfig) *Limited {
	return &Limited{
		inner:       inner,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrency),
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.CallsPerMinute)/60.0), cfg.CallsPerMinute),
		callTimeout: cfg.CallTimeout,
		maxRetries:  cfg.MaxRetries,
	}
}

// ExtractBatch acquires an extraction slot, waits out the rate limiter, and
// retries a failed call a bounded number of times before giving up.
func (l *Limited) ExtractBatch(ctx context.Context, bodies []string) ([]models.ScheduleEvent, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire extraction slot: %w", err)
	}
	defer l.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}

		callCtx := ctx
		cancel := func() {}
		if l.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, l.callTimeout)
		}

		events, err := l.inner.ExtractBatch(callCtx, bodies)
		cancel()
		if err == nil {
			return events, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logrus.Warnf("Extraction call failed (attempt %d/%d): %v", attempt+1, l.maxRetries+1, err)
	}
	return nil, fmt.Errorf("extraction failed after %d attempts: %w", l.maxRetries+1, lastErr)
}

// Close closes the wrapped extractor
func (l *Limited) Close() error {
	return l.inner.Close()
}
