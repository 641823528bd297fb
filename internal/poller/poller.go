// Package poller decides, per registered chat, when a reconciliation pass is
// due and runs it. The scheduler invokes Tick every minute; the per-chat poll
// interval lives in the chat's settings.
package poller

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/reconciler"
)

// Reconciler runs one reconciliation pass for a chat.
type Reconciler interface {
	Reconcile(ctx context.Context, chatID int64, mode reconciler.Mode) (reconciler.Result, error)
}

// Poller drives periodic reconciliation across all registered chats.
type Poller struct {
	store  database.Store
	engine Reconciler
	logger *slog.Logger
}

// New creates a Poller.
func New(store database.Store, engine Reconciler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		store:  store,
		engine: engine,
		logger: logger.With("component", "poller"),
	}
}

// Due reports whether a chat's next poll has arrived. A chat that has never
// been polled is always due; an interval of zero disables polling.
func Due(settings *database.Settings, now time.Time) bool {
	if settings.PollIntervalSecs == 0 {
		return false
	}
	if !settings.LastPollAt.Valid {
		return true
	}
	next := settings.LastPollAt.Time.Add(time.Duration(settings.PollIntervalSecs) * time.Second)
	return !now.Before(next)
}

// Tick runs reconciliation for every chat whose poll is due. Chats are
// processed sequentially; one chat's failure does not stop the others. The
// last-poll timestamp advances even when the pass fails, so broken
// credentials cannot cause a hot retry loop.
func (p *Poller) Tick(ctx context.Context, now time.Time) error {
	chats, err := p.store.GetRegisteredChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		p.logger.DebugContext(ctx, "No chats registered yet")
		return nil
	}

	for i := range chats {
		settings := &chats[i]
		if !Due(settings, now) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mode := reconciler.ModePosted
		if settings.PollPending {
			mode = reconciler.ModePending
		}

		result, err := p.engine.Reconcile(ctx, settings.ChatID, mode)
		if err != nil {
			p.logger.ErrorContext(ctx, "Scheduled reconciliation failed",
				"chat_id", settings.ChatID, "mode", mode.String(), "error", err)
		} else {
			p.logger.InfoContext(ctx, "Scheduled reconciliation completed",
				"chat_id", settings.ChatID, "mode", mode.String(),
				"fetched", result.Fetched, "dispatched", result.Dispatched)
		}

		if err := p.store.UpdateLastPollAt(ctx, settings.ChatID, now); err != nil {
			p.logger.ErrorContext(ctx, "Failed to update last poll time",
				"chat_id", settings.ChatID, "error", err)
		}
	}

	return nil
}
