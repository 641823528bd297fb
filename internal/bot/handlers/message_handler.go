package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/ai"
	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/lunchmoney"
	"github.com/edgard/lanchebot/internal/reconciler"
)

// maxNotesLength caps free-text notes before they are sent upstream.
const maxNotesLength = 350

// ackReaction marks a free-text edit as applied.
const ackReaction = "✍"

// NewMessageHandler is the default handler for free-text messages. It first
// checks whether the chat owes a reply to an earlier prompt, then whether the
// message is a reply to a known transaction message, and otherwise ignores
// the text.
func NewMessageHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "message")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		if update.Message == nil || update.Message.Text == "" {
			return
		}
		if strings.HasPrefix(update.Message.Text, "/") {
			return
		}
		chatID := update.Message.Chat.ID

		state, err := deps.Store.GetConversationState(ctx, chatID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to load conversation state", "chat_id", chatID, "error", err)
			return
		}
		if state != nil {
			consumeExpectation(ctx, deps, b, update.Message, state)
			return
		}

		if reply := update.Message.ReplyToMessage; reply != nil {
			txID, err := deps.Store.GetTransactionID(ctx, reply.ID, chatID)
			if err != nil {
				log.ErrorContext(ctx, "Failed to resolve replied-to message", "chat_id", chatID, "error", err)
				return
			}
			if txID != 0 {
				annotateTransaction(ctx, deps, b, update.Message, txID, reply.ID)
				return
			}
		}

		log.DebugContext(ctx, "Ignoring unrelated message", "chat_id", chatID)
	}
}

// consumeExpectation completes the pending prompt with the message text. The
// expectation is cleared before acting, so a failing edit does not wedge the
// chat in a loop.
func consumeExpectation(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, msg *models.Message, state *database.ConversationState) {
	log := deps.Logger.With("handler", "message")
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if err := deps.Store.ClearConversationState(ctx, chatID); err != nil {
		log.ErrorContext(ctx, "Failed to clear conversation state", "chat_id", chatID, "error", err)
	}

	switch state.Kind {
	case database.ExpectToken:
		// Remove the prompt; completeRegistration removes the token message.
		if _, err := b.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: chatID, MessageID: state.MessageID}); err != nil {
			log.WarnContext(ctx, "Failed to delete token prompt", "chat_id", chatID, "error", err)
		}
		completeRegistration(ctx, deps, b, chatID, msg.ID, text)

	case database.ExpectTimezone:
		if _, err := time.LoadLocation(text); err != nil {
			_, _ = sendText(ctx, b, chatID,
				"I do not know that timezone. Please send an IANA name like Europe/Berlin.")
			return
		}
		if err := deps.Store.UpdateSetting(ctx, chatID, "timezone", text); err != nil {
			log.ErrorContext(ctx, "Failed to update timezone", "chat_id", chatID, "error", err)
			_, _ = sendText(ctx, b, chatID, "Something went wrong saving the timezone. Please try again.")
			return
		}
		_, _ = sendText(ctx, b, chatID, "Timezone set to "+text)

	case database.ExpectRenamePayee:
		applyTransactionEdit(ctx, deps, b, msg, state.TxID, state.MessageID,
			lunchmoney.TransactionUpdate{Payee: &text}, false)

	case database.ExpectEditNotes:
		notes := truncateNotes(text)
		applyTransactionEdit(ctx, deps, b, msg, state.TxID, state.MessageID,
			lunchmoney.TransactionUpdate{Notes: &notes}, true)

	case database.ExpectSetTags:
		applyTransactionEdit(ctx, deps, b, msg, state.TxID, state.MessageID,
			lunchmoney.TransactionUpdate{Tags: parseTags(text)}, false)

	default:
		log.WarnContext(ctx, "Unknown conversation state", "chat_id", chatID, "kind", state.Kind)
	}
}

// annotateTransaction handles a plain reply to a transaction message: a
// message of nothing but hashtags sets the tags, anything else becomes the
// notes.
func annotateTransaction(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, msg *models.Message, txID int64, txMessageID int) {
	text := strings.TrimSpace(msg.Text)

	if tags, allTags := tagsOnly(text); allTags {
		applyTransactionEdit(ctx, deps, b, msg, txID, txMessageID,
			lunchmoney.TransactionUpdate{Tags: tags}, false)
		return
	}

	notes := truncateNotes(text)
	applyTransactionEdit(ctx, deps, b, msg, txID, txMessageID,
		lunchmoney.TransactionUpdate{Notes: &notes}, true)
}

// applyTransactionEdit patches the transaction upstream, optionally follows
// up with an AI categorization for fresh notes, re-renders the transaction
// message, and acknowledges the user's message with a reaction.
func applyTransactionEdit(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, msg *models.Message, txID int64, txMessageID int, update lunchmoney.TransactionUpdate, isNotes bool) {
	log := deps.Logger.With("handler", "message")
	chatID := msg.Chat.ID

	unlock := deps.Engine.LockChat(chatID)
	defer unlock()

	provider, settings, err := deps.Engine.ProviderFor(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve provider", "chat_id", chatID, "error", err)
		_, _ = sendText(ctx, b, chatID, "Could not reach your account. Please try again.")
		return
	}

	if err := provider.UpdateTransaction(ctx, txID, update); err != nil {
		log.ErrorContext(ctx, "Failed to update transaction", "chat_id", chatID, "tx_id", txID, "error", err)
		_, _ = sendText(ctx, b, chatID, "Could not update the transaction. Please try again.")
		return
	}

	tx, err := provider.GetTransaction(ctx, txID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to refetch transaction", "chat_id", chatID, "tx_id", txID, "error", err)
		return
	}

	if isNotes && settings.AutoCategorizeAfterNotes && deps.Categorizer != nil && !tx.IsRecurring() {
		tx = autoCategorize(ctx, deps, provider, tx)
	}

	if err := deps.Engine.DispatchUpdate(ctx, chatID, settings, txMessageID, tx); err != nil {
		log.ErrorContext(ctx, "Failed to re-render transaction", "chat_id", chatID, "tx_id", txID, "error", err)
	}

	if err := deps.Transport.React(ctx, chatID, msg.ID, ackReaction); err != nil {
		log.WarnContext(ctx, "Failed to react to message", "chat_id", chatID, "error", err)
	}
}

// autoCategorize runs an AI suggestion over the freshly annotated transaction
// and applies it. Suggestion failures leave the transaction as-is.
func autoCategorize(ctx context.Context, deps HandlerDeps, provider reconciler.Provider, tx *lunchmoney.Transaction) *lunchmoney.Transaction {
	log := deps.Logger.With("handler", "message")

	categories, err := provider.GetCategories(ctx)
	if err != nil {
		log.WarnContext(ctx, "Failed to fetch categories for auto-categorization", "tx_id", tx.ID, "error", err)
		return tx
	}

	suggestion, err := deps.Categorizer.SuggestCategory(ctx, tx, categories)
	switch {
	case errors.Is(err, ai.ErrNoSuggestion):
		return tx
	case err != nil:
		log.WarnContext(ctx, "Auto-categorization failed", "tx_id", tx.ID, "error", err)
		return tx
	}

	if tx.CategoryID != nil && *tx.CategoryID == suggestion.ID {
		return tx
	}

	if err := provider.UpdateTransaction(ctx, tx.ID, lunchmoney.TransactionUpdate{CategoryID: &suggestion.ID}); err != nil {
		log.WarnContext(ctx, "Failed to apply suggested category", "tx_id", tx.ID, "error", err)
		return tx
	}

	updated, err := provider.GetTransaction(ctx, tx.ID)
	if err != nil {
		log.WarnContext(ctx, "Failed to refetch after auto-categorization", "tx_id", tx.ID, "error", err)
		return tx
	}
	return updated
}

// tagsOnly reports whether every word of the text is a hashtag, and returns
// the tag names with the markers stripped.
func tagsOnly(text string) ([]string, bool) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, false
	}
	tags := make([]string, 0, len(words))
	for _, word := range words {
		if !strings.HasPrefix(word, "#") || len(word) < 2 {
			return nil, false
		}
		tags = append(tags, strings.TrimPrefix(word, "#"))
	}
	return tags, true
}

// parseTags extracts tag names from free text, accepting both hashtags and
// bare words.
func parseTags(text string) []string {
	var tags []string
	for _, word := range strings.Fields(text) {
		tag := strings.TrimPrefix(word, "#")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func truncateNotes(text string) string {
	if len(text) <= maxNotesLength {
		return text
	}
	return text[:maxNotesLength]
}
