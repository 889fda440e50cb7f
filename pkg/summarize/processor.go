package summarize

import (
	"context"
	"log/slog"
	"time"
)

// ProcessFunc handles one work item, typically summarizing a single cleaned
// article file.
type ProcessFunc func(ctx context.Context, item string) error

// Processor drives a list of work items through a handler with bounded
// retries. Items are processed strictly one at a time so a local model is
// never asked to serve concurrent requests.
type Processor struct {
	// MaxRetries is the total number of attempts per item, not the number
	// of retries after the first failure.
	MaxRetries int
	// Delay is the pause between items; after a failed attempt the pause
	// before the retry is doubled.
	Delay time.Duration

	Logger *slog.Logger
}

// Result reports which items succeeded and which exhausted their attempts.
type Result struct {
	Succeeded []string
	Failed    []string
}

// ProcessAll runs every item through fn, retrying failures up to MaxRetries
// attempts each. Returns early with the partial result when ctx is
// cancelled.
func (p *Processor) ProcessAll(ctx context.Context, items []string, fn ProcessFunc) Result {
	maxRetries := p.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var result Result
	for i, item := range items {
		if ctx.Err() != nil {
			result.Failed = append(result.Failed, items[i:]...)
			return result
		}

		var lastErr error
		succeeded := false
		for attempt := 1; attempt <= maxRetries; attempt++ {
			if err := fn(ctx, item); err != nil {
				lastErr = err
				logger.Warn("item attempt failed",
					"item", item, "attempt", attempt, "max_retries", maxRetries, "error", err)
				if attempt < maxRetries && !sleep(ctx, p.Delay*2) {
					break
				}
				continue
			}
			succeeded = true
			break
		}

		if succeeded {
			result.Succeeded = append(result.Succeeded, item)
		} else {
			result.Failed = append(result.Failed, item)
			logger.Error("item failed after all attempts", "item", item, "error", lastErr)
		}

		if i < len(items)-1 && !sleep(ctx, p.Delay) {
			result.Failed = append(result.Failed, items[i+1:]...)
			return result
		}
	}
	return result
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
