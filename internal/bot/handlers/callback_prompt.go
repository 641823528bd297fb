package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/telegram"
)

// newFreeTextPrompt builds a callback handler that asks for a free-text reply
// and records what the reply should complete. The stored message id is the
// transaction message, so the edit can re-render it afterwards.
func newFreeTextPrompt(deps HandlerDeps, callbackPrefix, stateKind, promptText string) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", stateKind)

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable callback", "error", err)
			return
		}
		txID, err := parseCallbackID(ref.Data, callbackPrefix)
		if err != nil {
			log.WarnContext(ctx, "Bad callback payload", "data", ref.Data, "error", err)
			return
		}

		_, err = b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:          ref.ChatID,
			Text:            promptText,
			ReplyParameters: &models.ReplyParameters{MessageID: ref.MessageID},
			ReplyMarkup:     &models.ForceReply{ForceReply: true},
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send prompt", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
			answerCallbackAlert(ctx, b, ref.QueryID, "Could not start the edit. Please try again.")
			return
		}

		state := &database.ConversationState{
			ChatID:    ref.ChatID,
			Kind:      stateKind,
			MessageID: ref.MessageID,
			TxID:      txID,
		}
		if err := deps.Store.SetConversationState(ctx, state); err != nil {
			log.ErrorContext(ctx, "Failed to save expectation", "chat_id", ref.ChatID, "tx_id", txID, "error", err)
		}
		answerCallback(ctx, b, ref.QueryID, "")
	}
}

// NewRenamePayeeCallback asks for the new payee name.
func NewRenamePayeeCallback(deps HandlerDeps) tgbot.HandlerFunc {
	return newFreeTextPrompt(deps, telegram.CallbackRenamePayee, database.ExpectRenamePayee,
		"What should the payee be called?")
}

// NewEditNotesCallback asks for the new notes text.
func NewEditNotesCallback(deps HandlerDeps) tgbot.HandlerFunc {
	return newFreeTextPrompt(deps, telegram.CallbackEditNotes, database.ExpectEditNotes,
		"Send me the notes for this transaction.")
}

// NewSetTagsCallback asks for the tag list.
func NewSetTagsCallback(deps HandlerDeps) tgbot.HandlerFunc {
	return newFreeTextPrompt(deps, telegram.CallbackSetTags, database.ExpectSetTags,
		"Send me the tags for this transaction, for example: #food #travel")
}
