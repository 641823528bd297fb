package tasks

import (
	"context"
	"fmt"
	"time"
)

// newPollTransactionsTask creates the scheduled task that runs the per-chat
// poll tick. The task itself runs every minute; whether a chat actually polls
// is decided by its own interval settings.
func newPollTransactionsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "poll_transactions")

	return func(ctx context.Context) error {
		startTime := time.Now()

		if err := deps.Poller.Tick(ctx, startTime); err != nil {
			log.ErrorContext(ctx, "Poll tick failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("poll tick failed: %w", err)
		}

		log.DebugContext(ctx, "Poll tick completed", "duration", time.Since(startTime))
		return nil
	}
}
