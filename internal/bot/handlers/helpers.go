package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// callbackRef locates the message a callback query was attached to.
type callbackRef struct {
	QueryID   string
	ChatID    int64
	MessageID int
	Data      string
}

// callbackFrom extracts the chat, message and payload of a callback query.
// Queries on inaccessible messages (older than 48h) carry no usable message
// reference and are rejected.
func callbackFrom(update *models.Update) (callbackRef, error) {
	if update.CallbackQuery == nil {
		return callbackRef{}, fmt.Errorf("update has no callback query")
	}
	query := update.CallbackQuery
	if query.Message.Message == nil {
		return callbackRef{}, fmt.Errorf("callback query message is inaccessible")
	}
	return callbackRef{
		QueryID:   query.ID,
		ChatID:    query.Message.Message.Chat.ID,
		MessageID: query.Message.Message.ID,
		Data:      query.Data,
	}, nil
}

// parseCallbackID parses callback data of the form "<prefix>_<id>".
func parseCallbackID(data, prefix string) (int64, error) {
	raw, ok := strings.CutPrefix(data, prefix+"_")
	if !ok {
		return 0, fmt.Errorf("callback data %q does not match prefix %q", data, prefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("callback data %q carries no valid id: %w", data, err)
	}
	return id, nil
}

// parseCallbackIDPair parses callback data of the form "<prefix>_<id>_<id>".
func parseCallbackIDPair(data, prefix string) (int64, int64, error) {
	raw, ok := strings.CutPrefix(data, prefix+"_")
	if !ok {
		return 0, 0, fmt.Errorf("callback data %q does not match prefix %q", data, prefix)
	}
	first, second, found := strings.Cut(raw, "_")
	if !found {
		return 0, 0, fmt.Errorf("callback data %q carries a single id, expected two", data)
	}
	firstID, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("callback data %q carries no valid first id: %w", data, err)
	}
	secondID, err := strconv.ParseInt(second, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("callback data %q carries no valid second id: %w", data, err)
	}
	return firstID, secondID, nil
}

// answerCallback acknowledges a callback query, optionally with a toast.
func answerCallback(ctx context.Context, b *tgbot.Bot, queryID, text string) {
	_, _ = b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
	})
}

// answerCallbackAlert acknowledges a callback query with a modal alert.
func answerCallbackAlert(ctx context.Context, b *tgbot.Bot, queryID, text string) {
	_, _ = b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       true,
	})
}

// sendText sends a plain text message to a chat.
func sendText(ctx context.Context, b *tgbot.Bot, chatID int64, text string) (*models.Message, error) {
	msg, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return msg, nil
}

// messageChatID returns the chat of a plain message update, or 0.
func messageChatID(update *models.Update) int64 {
	if update.Message == nil {
		return 0
	}
	return update.Message.Chat.ID
}
