package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// DefaultExpiry is how long cached responses stay replayable.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys drops records older than expiry once and reports how many
// were removed.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("idempotency cleanup failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		slog.Info("expired idempotency records removed", "deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// RunPeriodicCleanup drops expired records every interval until ctx is
// cancelled. It runs one cleanup immediately, then blocks; run it in a
// goroutine.
func RunPeriodicCleanup(ctx context.Context, repo Repository, interval, expiry time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_, _ = CleanupOldKeys(repo, expiry)
	for {
		select {
		case <-ticker.C:
			_, _ = CleanupOldKeys(repo, expiry)
		case <-ctx.Done():
			return
		}
	}
}
