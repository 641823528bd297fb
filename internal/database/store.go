package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotRegistered is returned when an operation needs chat settings but the
// chat has no registration row.
var ErrNotRegistered = errors.New("chat is not registered")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveToken registers a chat with an upstream API token, or replaces the
	// token of an existing registration. Other settings keep their values.
	SaveToken(ctx context.Context, chatID int64, token string) error

	// GetSettings retrieves the settings row for a chat.
	// Returns ErrNotRegistered when the chat has no registration.
	GetSettings(ctx context.Context, chatID int64) (*Settings, error)

	// GetRegisteredChats retrieves the settings of every registered chat.
	GetRegisteredChats(ctx context.Context) ([]Settings, error)

	// UpdateLastPollAt records when a polling pass for the chat last ran.
	UpdateLastPollAt(ctx context.Context, chatID int64, at time.Time) error

	// UpdateSetting sets a single settings column for a chat. The column name
	// must be one of the known settings columns.
	UpdateSetting(ctx context.Context, chatID int64, column string, value any) error

	// DeleteChatData removes the registration, the sent-transaction ledger,
	// and any conversation state for a chat, atomically.
	DeleteChatData(ctx context.Context, chatID int64) error

	// WasAlreadySent reports whether a transaction was already dispatched
	// with the given pending flag, in any chat.
	WasAlreadySent(ctx context.Context, txID int64, pending bool) (bool, error)

	// MarkAsSent appends a sent-transaction record. Records are never
	// updated by this method; dispatching again appends a new row.
	MarkAsSent(ctx context.Context, sent *SentTransaction) error

	// MarkAsReviewed stamps the reviewed timestamp on the latest record for
	// (txID, chatID). No-op when no record exists.
	MarkAsReviewed(ctx context.Context, txID, chatID int64) error

	// MarkAsUnreviewed clears the reviewed timestamp on the latest record
	// for (txID, chatID). No-op when no record exists.
	MarkAsUnreviewed(ctx context.Context, txID, chatID int64) error

	// GetSentTransaction retrieves the latest record for (txID, chatID).
	// Returns nil, nil when no record exists.
	GetSentTransaction(ctx context.Context, txID, chatID int64) (*SentTransaction, error)

	// GetMessageID returns the chat message id the transaction was last
	// rendered as, or 0 when the transaction was never sent to the chat.
	GetMessageID(ctx context.Context, txID, chatID int64) (int, error)

	// GetTransactionID returns the transaction a chat message renders, or 0
	// when the message is not a known transaction message.
	GetTransactionID(ctx context.Context, messageID int, chatID int64) (int64, error)

	// GetSentTransactionsForChat retrieves every sent-transaction record for
	// a chat, oldest first.
	GetSentTransactionsForChat(ctx context.Context, chatID int64) ([]SentTransaction, error)

	// SetConversationState records what the next free-text message from the
	// chat should complete, replacing any previous expectation.
	SetConversationState(ctx context.Context, state *ConversationState) error

	// GetConversationState retrieves the pending expectation for a chat.
	// Returns nil, nil when there is none.
	GetConversationState(ctx context.Context, chatID int64) (*ConversationState, error)

	// ClearConversationState removes the pending expectation for a chat.
	// No-op when there is none.
	ClearConversationState(ctx context.Context, chatID int64) error

	// IncrementMetric adds delta to today's value of a usage counter.
	IncrementMetric(ctx context.Context, key string, delta float64) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// settingsColumns are the columns UpdateSetting accepts. Guarding the column
// name here keeps the single generic setter safe to build with Sprintf.
var settingsColumns = map[string]bool{
	"poll_interval_secs":              true,
	"auto_mark_reviewed":              true,
	"poll_pending":                    true,
	"show_datetime":                   true,
	"tagging":                         true,
	"mark_reviewed_after_categorized": true,
	"auto_categorize_after_notes":     true,
	"timezone":                        true,
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveToken registers a chat or replaces the token of an existing registration.
func (s *sqlxStore) SaveToken(ctx context.Context, chatID int64, token string) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	query := `
        INSERT INTO settings (chat_id, token, created_at)
        VALUES (?, ?, ?)
        ON CONFLICT (chat_id) DO UPDATE SET token = excluded.token;
    `
	if _, err := s.db.ExecContext(ctx, query, chatID, token, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error saving token", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to save token for chat %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Token saved", "chat_id", chatID)
	return nil
}

// GetSettings retrieves the settings row for a chat.
func (s *sqlxStore) GetSettings(ctx context.Context, chatID int64) (*Settings, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	var settings Settings
	query := `SELECT * FROM settings WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &settings, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("chat %d: %w", chatID, ErrNotRegistered)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting settings", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get settings for chat %d: %w", chatID, err)
	}

	return &settings, nil
}

// GetRegisteredChats retrieves the settings of every registered chat.
func (s *sqlxStore) GetRegisteredChats(ctx context.Context) ([]Settings, error) {
	var chats []Settings
	query := `SELECT * FROM settings ORDER BY chat_id`

	if err := s.db.SelectContext(ctx, &chats, query); err != nil {
		s.logger.ErrorContext(ctx, "Error getting registered chats", "error", err)
		return nil, fmt.Errorf("failed to get registered chats: %w", err)
	}

	return chats, nil
}

// UpdateLastPollAt records when a polling pass for the chat last ran.
func (s *sqlxStore) UpdateLastPollAt(ctx context.Context, chatID int64, at time.Time) error {
	query := `UPDATE settings SET last_poll_at = ? WHERE chat_id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error updating last poll time", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to update last poll time for chat %d: %w", chatID, err)
	}
	return nil
}

// UpdateSetting sets a single settings column for a chat.
func (s *sqlxStore) UpdateSetting(ctx context.Context, chatID int64, column string, value any) error {
	if !settingsColumns[column] {
		return fmt.Errorf("unknown settings column %q", column)
	}

	query := fmt.Sprintf(`UPDATE settings SET %s = ? WHERE chat_id = ?`, column)
	result, err := s.db.ExecContext(ctx, query, value, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating setting", "chat_id", chatID, "column", column, "error", err)
		return fmt.Errorf("failed to update setting %s for chat %d: %w", column, chatID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("chat %d: %w", chatID, ErrNotRegistered)
	}

	s.logger.DebugContext(ctx, "Setting updated", "chat_id", chatID, "column", column)
	return nil
}

// DeleteChatData removes everything stored for a chat in one transaction.
func (s *sqlxStore) DeleteChatData(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for chat data deletion", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	var sentCount int64
	for _, table := range []string{"conversation_states", "sent_transactions", "settings"} {
		result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE chat_id = ?`, table), chatID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error deleting chat data", "chat_id", chatID, "table", table, "error", err)
			return fmt.Errorf("failed to delete %s for chat %d: %w", table, chatID, err)
		}
		if table == "sent_transactions" {
			sentCount, _ = result.RowsAffected()
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Deleted chat data", "chat_id", chatID, "sent_transactions_deleted", sentCount)
	return nil
}

// WasAlreadySent reports whether a transaction was already dispatched with
// the given pending flag.
func (s *sqlxStore) WasAlreadySent(ctx context.Context, txID int64, pending bool) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM sent_transactions WHERE tx_id = ? AND pending = ?`

	if err := s.db.GetContext(ctx, &count, query, txID, pending); err != nil {
		s.logger.ErrorContext(ctx, "Error checking sent state", "tx_id", txID, "pending", pending, "error", err)
		return false, fmt.Errorf("failed to check sent state for transaction %d: %w", txID, err)
	}

	return count > 0, nil
}

// MarkAsSent appends a sent-transaction record.
func (s *sqlxStore) MarkAsSent(ctx context.Context, sent *SentTransaction) error {
	if sent == nil {
		return fmt.Errorf("cannot save nil sent transaction")
	}
	if sent.ChatID == 0 {
		return fmt.Errorf("sent transaction must have a non-zero chat_id")
	}
	if sent.TxID == 0 {
		return fmt.Errorf("sent transaction must have a non-zero tx_id")
	}
	if sent.MessageID == 0 {
		return fmt.Errorf("sent transaction must have a non-zero message_id")
	}

	if sent.CreatedAt.IsZero() {
		sent.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for marking as sent",
			"chat_id", sent.ChatID, "tx_id", sent.TxID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        INSERT INTO sent_transactions (message_id, tx_id, chat_id, pending, recurring_type, plaid_id, created_at, reviewed_at)
        VALUES (:message_id, :tx_id, :chat_id, :pending, :recurring_type, :plaid_id, :created_at, :reviewed_at);
    `

	result, err := tx.NamedExecContext(ctx, query, sent)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking transaction as sent",
			"chat_id", sent.ChatID, "tx_id", sent.TxID, "error", err)
		return fmt.Errorf("failed to mark transaction %d as sent (chat %d): %w", sent.TxID, sent.ChatID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		sent.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after marking as sent",
			"chat_id", sent.ChatID, "tx_id", sent.TxID, "error", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction",
			"chat_id", sent.ChatID, "tx_id", sent.TxID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Transaction marked as sent",
		"chat_id", sent.ChatID, "tx_id", sent.TxID, "message_id", sent.MessageID, "pending", sent.Pending)
	return nil
}

// setReviewedAt stamps or clears reviewed_at on the latest record for
// (txID, chatID). A missing record is not an error.
func (s *sqlxStore) setReviewedAt(ctx context.Context, txID, chatID int64, at sql.NullTime) error {
	query := `
        UPDATE sent_transactions SET reviewed_at = ?
        WHERE id = (
            SELECT id FROM sent_transactions
            WHERE tx_id = ? AND chat_id = ?
            ORDER BY created_at DESC, id DESC
            LIMIT 1
        );
    `

	result, err := s.db.ExecContext(ctx, query, at, txID, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating reviewed state", "tx_id", txID, "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to update reviewed state for transaction %d: %w", txID, err)
	}

	affected, _ := result.RowsAffected()
	s.logger.DebugContext(ctx, "Reviewed state updated",
		"tx_id", txID, "chat_id", chatID, "reviewed", at.Valid, "affected", affected)
	return nil
}

// MarkAsReviewed stamps the reviewed timestamp. No-op when no record exists.
func (s *sqlxStore) MarkAsReviewed(ctx context.Context, txID, chatID int64) error {
	return s.setReviewedAt(ctx, txID, chatID, sql.NullTime{Time: time.Now().UTC(), Valid: true})
}

// MarkAsUnreviewed clears the reviewed timestamp. No-op when no record exists.
func (s *sqlxStore) MarkAsUnreviewed(ctx context.Context, txID, chatID int64) error {
	return s.setReviewedAt(ctx, txID, chatID, sql.NullTime{})
}

// GetSentTransaction retrieves the latest record for (txID, chatID).
func (s *sqlxStore) GetSentTransaction(ctx context.Context, txID, chatID int64) (*SentTransaction, error) {
	var sent SentTransaction
	query := `
        SELECT * FROM sent_transactions
        WHERE tx_id = ? AND chat_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1;
    `

	err := s.db.GetContext(ctx, &sent, query, txID, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting sent transaction", "tx_id", txID, "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get sent transaction %d (chat %d): %w", txID, chatID, err)
	}

	return &sent, nil
}

// GetMessageID returns the message the transaction was last rendered as.
func (s *sqlxStore) GetMessageID(ctx context.Context, txID, chatID int64) (int, error) {
	sent, err := s.GetSentTransaction(ctx, txID, chatID)
	if err != nil {
		return 0, err
	}
	if sent == nil {
		return 0, nil
	}
	return sent.MessageID, nil
}

// GetTransactionID returns the transaction a chat message renders.
func (s *sqlxStore) GetTransactionID(ctx context.Context, messageID int, chatID int64) (int64, error) {
	var txID int64
	query := `
        SELECT tx_id FROM sent_transactions
        WHERE message_id = ? AND chat_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1;
    `

	err := s.db.GetContext(ctx, &txID, query, messageID, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error resolving message to transaction", "message_id", messageID, "chat_id", chatID, "error", err)
		return 0, fmt.Errorf("failed to resolve message %d (chat %d): %w", messageID, chatID, err)
	}

	return txID, nil
}

// GetSentTransactionsForChat retrieves every sent-transaction record for a
// chat, oldest first.
func (s *sqlxStore) GetSentTransactionsForChat(ctx context.Context, chatID int64) ([]SentTransaction, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	var sent []SentTransaction
	query := `
        SELECT * FROM sent_transactions
        WHERE chat_id = ?
        ORDER BY created_at ASC, id ASC;
    `

	if err := s.db.SelectContext(ctx, &sent, query, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting sent transactions", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get sent transactions for chat %d: %w", chatID, err)
	}

	return sent, nil
}

// SetConversationState records the pending expectation for a chat, replacing
// any previous one.
func (s *sqlxStore) SetConversationState(ctx context.Context, state *ConversationState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil conversation state")
	}
	if state.ChatID == 0 {
		return fmt.Errorf("conversation state must have a non-zero chat_id")
	}
	if state.Kind == "" {
		return fmt.Errorf("conversation state must have a kind")
	}

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO conversation_states (chat_id, kind, message_id, tx_id, created_at)
        VALUES (:chat_id, :kind, :message_id, :tx_id, :created_at)
        ON CONFLICT (chat_id) DO UPDATE SET
            kind = excluded.kind,
            message_id = excluded.message_id,
            tx_id = excluded.tx_id,
            created_at = excluded.created_at;
    `

	if _, err := s.db.NamedExecContext(ctx, query, state); err != nil {
		s.logger.ErrorContext(ctx, "Error saving conversation state", "chat_id", state.ChatID, "kind", state.Kind, "error", err)
		return fmt.Errorf("failed to save conversation state for chat %d: %w", state.ChatID, err)
	}

	s.logger.DebugContext(ctx, "Conversation state saved", "chat_id", state.ChatID, "kind", state.Kind)
	return nil
}

// GetConversationState retrieves the pending expectation for a chat.
func (s *sqlxStore) GetConversationState(ctx context.Context, chatID int64) (*ConversationState, error) {
	var state ConversationState
	query := `SELECT * FROM conversation_states WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &state, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting conversation state", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get conversation state for chat %d: %w", chatID, err)
	}

	return &state, nil
}

// ClearConversationState removes the pending expectation for a chat.
func (s *sqlxStore) ClearConversationState(ctx context.Context, chatID int64) error {
	query := `DELETE FROM conversation_states WHERE chat_id = ?`
	if _, err := s.db.ExecContext(ctx, query, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error clearing conversation state", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to clear conversation state for chat %d: %w", chatID, err)
	}
	return nil
}

// IncrementMetric adds delta to today's value of a usage counter.
func (s *sqlxStore) IncrementMetric(ctx context.Context, key string, delta float64) error {
	if key == "" {
		return fmt.Errorf("metric key cannot be empty")
	}

	day := time.Now().UTC().Truncate(24 * time.Hour)
	query := `
        INSERT INTO analytics (key, date, value)
        VALUES (?, ?, ?)
        ON CONFLICT (key, date) DO UPDATE SET value = value + excluded.value;
    `

	if _, err := s.db.ExecContext(ctx, query, key, day, delta); err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing metric", "key", key, "error", err)
		return fmt.Errorf("failed to increment metric %s: %w", key, err)
	}

	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
