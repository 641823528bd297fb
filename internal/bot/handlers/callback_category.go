package handlers

import (
	"context"
	"errors"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/ai"
	"github.com/edgard/lanchebot/internal/lunchmoney"
	"github.com/edgard/lanchebot/internal/telegram"
)

// NewShowCategoriesCallback swaps the transaction keyboard for the category
// group picker.
func NewShowCategoriesCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "show_categories")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackCategorize)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		provider, _, err := deps.Engine.ProviderFor(ctx, ref.ChatID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to resolve provider", "chat_id", ref.ChatID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not reach your account. Please try again.")
			return
		}

		categories, err := provider.GetCategories(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch categories", "chat_id", ref.ChatID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not fetch your categories. Please try again.")
			return
		}

		if err := deps.Transport.EditKeyboard(ctx, ref.ChatID, ref.MessageID, telegram.CategoryKeyboard(txID, categories)); err != nil {
			log.ErrorContext(ctx, "Failed to show category keyboard", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		}
		answerCallback(ctx, b, ref.QueryID, "")
	}
}

// NewShowSubcategoriesCallback descends into one category group.
func NewShowSubcategoriesCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "show_subcategories")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, groupID, err := parseCallbackIDPair(ref.Data, telegram.CallbackSubcategorize)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		provider, _, err := deps.Engine.ProviderFor(ctx, ref.ChatID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to resolve provider", "chat_id", ref.ChatID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not reach your account. Please try again.")
			return
		}

		categories, err := provider.GetCategories(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch categories", "chat_id", ref.ChatID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not fetch your categories. Please try again.")
			return
		}

		if err := deps.Transport.EditKeyboard(ctx, ref.ChatID, ref.MessageID, telegram.SubcategoryKeyboard(txID, groupID, categories)); err != nil {
			log.ErrorContext(ctx, "Failed to show subcategory keyboard", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		}
		answerCallback(ctx, b, ref.QueryID, "")
	}
}

// applyCategory patches the category upstream, optionally marks the
// transaction reviewed, and re-renders the message.
func applyCategory(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, ref callbackRef, txID, categoryID int64) error {
	unlock := deps.Engine.LockChat(ref.ChatID)
	defer unlock()

	provider, settings, err := deps.Engine.ProviderFor(ctx, ref.ChatID)
	if err != nil {
		return fmt.Errorf("failed to resolve provider for chat %d: %w", ref.ChatID, err)
	}

	update := lunchmoney.TransactionUpdate{CategoryID: &categoryID}
	if settings.MarkReviewedAfterCategorized {
		status := lunchmoney.StatusCleared
		update.Status = &status
	}
	if err := provider.UpdateTransaction(ctx, txID, update); err != nil {
		return fmt.Errorf("failed to set category on transaction %d: %w", txID, err)
	}

	tx, err := provider.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to refetch transaction %d: %w", txID, err)
	}

	if err := deps.Engine.DispatchUpdate(ctx, ref.ChatID, settings, ref.MessageID, tx); err != nil {
		return err
	}

	if err := deps.Store.IncrementMetric(ctx, "categorizations", 1); err != nil {
		deps.Logger.WarnContext(ctx, "Failed to record categorization metric", "chat_id", ref.ChatID, "error", err)
	}
	return nil
}

// NewApplyCategoryCallback applies the picked category.
func NewApplyCategoryCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "apply_category")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, categoryID, err := parseCallbackIDPair(ref.Data, telegram.CallbackApplyCategory)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		if err := applyCategory(ctx, deps, b, ref, txID, categoryID); err != nil {
			log.ErrorContext(ctx, "Failed to apply category", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not categorize the transaction. Please try again.")
			return
		}
		answerCallback(ctx, b, ref.QueryID, "Transaction categorized")
	}
}

// NewCancelCategorizationCallback restores the transaction keyboard.
func NewCancelCategorizationCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "cancel_categorization")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackCancelCat)
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
			log.ErrorContext(ctx, "Failed to restore keyboard", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		}
		answerCallback(ctx, b, ref.QueryID, "")
	}
}

// NewSuggestCategoryCallback asks the AI for a category and applies it.
func NewSuggestCategoryCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "suggest_category")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, telegram.CallbackSuggest)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		if deps.Categorizer == nil {
			answerCallbackAlert(ctx, b, ref.QueryID, "Category suggestions are not enabled.")
			return
		}

		provider, _, err := deps.Engine.ProviderFor(ctx, ref.ChatID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to resolve provider", "chat_id", ref.ChatID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not reach your account. Please try again.")
			return
		}

		tx, err := provider.GetTransaction(ctx, txID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch transaction", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not fetch the transaction. Please try again.")
			return
		}

		categories, err := provider.GetCategories(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch categories", "chat_id", ref.ChatID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not fetch your categories. Please try again.")
			return
		}

		suggestion, err := deps.Categorizer.SuggestCategory(ctx, tx, categories)
		switch {
		case errors.Is(err, ai.ErrNoSuggestion):
			answerCallbackAlert(ctx, b, ref.QueryID, "No suitable category came to mind for this one.")
			return
		case err != nil:
			log.ErrorContext(ctx, "Category suggestion failed", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not get a suggestion. Please try again.")
			return
		}

		if err := deps.Store.IncrementMetric(ctx, "ai_suggestions", 1); err != nil {
			log.WarnContext(ctx, "Failed to record suggestion metric", "chat_id", ref.ChatID, "error", err)
		}

		if tx.CategoryID != nil && *tx.CategoryID == suggestion.ID {
			answerCallbackAlert(ctx, b, ref.QueryID, "Already categorized as "+suggestion.Name)
			return
		}

		if err := applyCategory(ctx, deps, b, ref, txID, suggestion.ID); err != nil {
			log.ErrorContext(ctx, "Failed to apply suggested category", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not apply the suggestion. Please try again.")
			return
		}
		answerCallbackAlert(ctx, b, ref.QueryID, "Recategorized as "+suggestion.Name)
	}
}
