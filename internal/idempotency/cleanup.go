package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// RunPeriodicCleanup drops expired records from store every interval until
// ctx is cancelled. It blocks; run it in a goroutine.
func RunPeriodicCleanup(ctx context.Context, store *InMemoryStore, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stopping idempotency cleanup")
			return
		case <-ticker.C:
			if n := store.DeleteExpired(); n > 0 {
				logger.Info("cleaned up expired idempotency keys", "deleted", n)
			}
		}
	}
}
