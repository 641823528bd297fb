package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

// Transport adapts the Telegram bot API to the shapes the reconciliation
// engine and the handlers need: send or edit a rendered transaction message,
// and react to a message.
type Transport struct {
	b         *bot.Bot
	logger    *slog.Logger
	aiEnabled bool
}

// NewTransport creates a Transport. aiEnabled controls whether transaction
// keyboards carry the AI suggestion button.
func NewTransport(b *bot.Bot, logger *slog.Logger, aiEnabled bool) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		b:         b,
		logger:    logger.With("component", "transport"),
		aiEnabled: aiEnabled,
	}
}

// AIEnabled reports whether keyboards carry the AI suggestion button.
func (t *Transport) AIEnabled() bool {
	return t.aiEnabled
}

// SendTransaction sends a new transaction message and returns its message id.
// replyToMessageID of 0 means no threading.
func (t *Transport) SendTransaction(ctx context.Context, chatID int64, settings *database.Settings, tx *lunchmoney.Transaction, replyToMessageID int) (int, error) {
	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        RenderTransaction(tx, settings),
		ParseMode:   models.ParseModeMarkdown,
		ReplyMarkup: TransactionKeyboard(tx.ID, KeyboardOptionsFor(tx, t.aiEnabled)),
	}
	if replyToMessageID > 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyToMessageID}
	}

	msg, err := t.b.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to send transaction message (chat %d, tx %d): %w", chatID, tx.ID, err)
	}

	t.logger.DebugContext(ctx, "Transaction message sent",
		"chat_id", chatID, "tx_id", tx.ID, "message_id", msg.ID)
	return msg.ID, nil
}

// EditTransaction re-renders an existing transaction message in place. An
// edit that changes nothing is treated as success.
func (t *Transport) EditTransaction(ctx context.Context, chatID int64, settings *database.Settings, messageID int, tx *lunchmoney.Transaction) error {
	_, err := t.b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        RenderTransaction(tx, settings),
		ParseMode:   models.ParseModeMarkdown,
		ReplyMarkup: TransactionKeyboard(tx.ID, KeyboardOptionsFor(tx, t.aiEnabled)),
	})
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("failed to edit transaction message (chat %d, message %d): %w", chatID, messageID, err)
	}
	return nil
}

// EditKeyboard replaces only the inline keyboard of a message. Used by the
// categorization flow and the collapse/expand buttons.
func (t *Transport) EditKeyboard(ctx context.Context, chatID int64, messageID int, markup *models.InlineKeyboardMarkup) error {
	_, err := t.b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	})
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("failed to edit keyboard (chat %d, message %d): %w", chatID, messageID, err)
	}
	return nil
}

// React sets an emoji reaction on a message.
func (t *Transport) React(ctx context.Context, chatID int64, messageID int, emoji string) error {
	_, err := t.b.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction: []models.ReactionType{
			{
				Type:              models.ReactionTypeTypeEmoji,
				ReactionTypeEmoji: &models.ReactionTypeEmoji{Type: models.ReactionTypeTypeEmoji, Emoji: emoji},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to react to message (chat %d, message %d): %w", chatID, messageID, err)
	}
	return nil
}

// isNotModified matches the Telegram error for an edit that changed nothing.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
