package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/lunchmoney"
	"github.com/edgard/lanchebot/internal/telegram"
)

// setReviewStatus patches the upstream status, refetches the transaction, and
// re-renders its chat message. Used by both review buttons.
func setReviewStatus(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, ref callbackRef, txID int64, status string) {
	unlock := deps.Engine.LockChat(ref.ChatID)
	defer unlock()

	provider, settings, err := deps.Engine.ProviderFor(ctx, ref.ChatID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to resolve provider", "chat_id", ref.ChatID, "error", err)
		answerCallbackAlert(ctx, b, ref.QueryID, "Could not reach your account. Please try again.")
		return
	}

	if err := provider.UpdateTransaction(ctx, txID, lunchmoney.TransactionUpdate{Status: &status}); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to update transaction status",
			"chat_id", ref.ChatID, "tx_id", txID, "status", status, "error", err)
		answerCallbackAlert(ctx, b, ref.QueryID, "Could not update the transaction. Please try again.")
		return
	}

	tx, err := provider.GetTransaction(ctx, txID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to refetch transaction", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		answerCallback(ctx, b, ref.QueryID, "")
		return
	}

	if err := deps.Engine.DispatchUpdate(ctx, ref.ChatID, settings, ref.MessageID, tx); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to re-render transaction", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
	}

	if status == lunchmoney.StatusCleared {
		answerCallback(ctx, b, ref.QueryID, "Marked as reviewed")
	} else {
		answerCallback(ctx, b, ref.QueryID, "Marked as unreviewed")
	}
}

// NewMarkReviewedCallback marks a transaction cleared upstream.
func NewMarkReviewedCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "mark_reviewed")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackReview)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}
		setReviewStatus(ctx, deps, b, ref, txID, lunchmoney.StatusCleared)
	}
}

// NewMarkUnreviewedCallback marks a transaction uncleared upstream.
func NewMarkUnreviewedCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "mark_unreviewed")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackUnreview)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}
		setReviewStatus(ctx, deps, b, ref, txID, lunchmoney.StatusUncleared)
	}
}

// NewSkipCallback removes the buttons without touching upstream state.
func NewSkipCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "skip")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}

		if err := deps.Transport.EditKeyboard(ctx, ref.ChatID, ref.MessageID, nil); err != nil {
			log.ErrorContext(ctx, "Failed to remove keyboard", "chat_id", ref.ChatID, "error", err)
		}
		answerCallbackAlert(ctx, b, ref.QueryID,
			"Transaction was left intact. You will need to review it from lunchmoney.app")
	}
}

// keyboardOptionsFromLedger rebuilds the button set for a transaction from the
// sent-transaction record, without an upstream refetch.
func keyboardOptionsFromLedger(ctx context.Context, deps HandlerDeps, chatID, txID int64) (telegram.TxKeyboardOptions, error) {
	sent, err := deps.Store.GetSentTransaction(ctx, txID, chatID)
	if err != nil {
		return telegram.TxKeyboardOptions{}, err
	}

	opts := telegram.TxKeyboardOptions{
		Categorize:   true,
		Skip:         true,
		MarkReviewed: true,
		Suggest:      deps.Transport.AIEnabled(),
	}
	if sent != nil {
		opts.Reviewed = sent.Reviewed()
		if sent.Pending {
			opts.Skip = false
			opts.MarkReviewed = false
		}
		if sent.RecurringType.Valid && sent.RecurringType.String != "" {
			opts.Categorize = false
			opts.Suggest = false
		}
	}
	return opts, nil
}

// NewCollapseCallback shrinks the keyboard to a single expand button.
func NewCollapseCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "collapse")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackCollapse)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		markup := telegram.TransactionKeyboard(txID, telegram.TxKeyboardOptions{Collapsed: true})
		if err := deps.Transport.EditKeyboard(ctx, ref.ChatID, ref.MessageID, markup); err != nil {
			log.ErrorContext(ctx, "Failed to collapse keyboard", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		}
		answerCallback(ctx, b, ref.QueryID, "")
	}
}

// NewExpandCallback restores the full keyboard from the ledger record.
func NewExpandCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "expand")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackExpand)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		opts, err := keyboardOptionsFromLedger(ctx, deps, ref.ChatID, txID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to rebuild keyboard options", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
			answerCallback(ctx, b, ref.QueryID, "")
			return
		}

		if err := deps.Transport.EditKeyboard(ctx, ref.ChatID, ref.MessageID, telegram.TransactionKeyboard(txID, opts)); err != nil {
			log.ErrorContext(ctx, "Failed to expand keyboard", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		}
		answerCallback(ctx, b, ref.QueryID, "")
	}
}
