package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often idle cases are checked.
const DefaultSweepInterval = 5 * time.Minute

// CleanupCallback is called when a case is removed by the TTL worker.
type CleanupCallback func(caseID string)

// StartTTLWorker runs a background goroutine that periodically removes cases
// idle for longer than ttl.
func StartTTLWorker(ctx context.Context, repo Repository, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredCases(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpiredCases(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) int {
	expired, err := repo.GetExpired(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to get expired cases", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("TTL worker found expired cases", "count", len(expired))

	cleaned := 0
	for _, c := range expired {
		if err := repo.Delete(ctx, c.ID); err != nil {
			slog.Warn("TTL worker failed to delete case", "case_id", c.ID, "error", err)
			continue
		}
		cleaned++
		if onCleanup != nil {
			onCleanup(c.ID)
		}
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	return cleaned
}
