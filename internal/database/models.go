package database

import (
	"database/sql"
	"time"
)

// Settings is the registration record for a chat: the upstream API token plus
// the per-chat behavior flags. One row per chat.
type Settings struct {
	ChatID    int64     `db:"chat_id"`
	Token     string    `db:"token"`
	CreatedAt time.Time `db:"created_at"`

	// PollIntervalSecs is the minimum spacing between polling passes for the
	// chat. Zero disables polling entirely.
	PollIntervalSecs int64        `db:"poll_interval_secs"`
	LastPollAt       sql.NullTime `db:"last_poll_at"`

	AutoMarkReviewed             bool   `db:"auto_mark_reviewed"`
	PollPending                  bool   `db:"poll_pending"`
	ShowDateTime                 bool   `db:"show_datetime"`
	Tagging                      bool   `db:"tagging"`
	MarkReviewedAfterCategorized bool   `db:"mark_reviewed_after_categorized"`
	AutoCategorizeAfterNotes     bool   `db:"auto_categorize_after_notes"`
	Timezone                     string `db:"timezone"`
}

// SentTransaction records that an upstream transaction was rendered as a chat
// message. Rows are append-only; only the reviewed timestamp is mutated after
// insert. At most one non-pending row exists per (chat, transaction) pair,
// which is the dedup key for dispatch.
type SentTransaction struct {
	ID        int64     `db:"id"`
	MessageID int       `db:"message_id"`
	TxID      int64     `db:"tx_id"`
	ChatID    int64     `db:"chat_id"`
	Pending   bool      `db:"pending"`
	CreatedAt time.Time `db:"created_at"`

	// ReviewedAt presence means "reviewed". This is local bookkeeping,
	// independent of the upstream status field.
	ReviewedAt sql.NullTime `db:"reviewed_at"`

	// Denormalized from the upstream transaction so keyboards can be rebuilt
	// without a refetch.
	RecurringType sql.NullString `db:"recurring_type"`
	PlaidID       sql.NullString `db:"plaid_id"`
}

// Reviewed reports whether the record carries a reviewed timestamp.
func (t *SentTransaction) Reviewed() bool {
	return t.ReviewedAt.Valid
}

// Conversation-state kinds: what the next free-text message from the chat is
// expected to complete.
const (
	ExpectToken       = "token"
	ExpectTimezone    = "timezone"
	ExpectRenamePayee = "rename_payee"
	ExpectEditNotes   = "edit_notes"
	ExpectSetTags     = "set_tags"
)

// ConversationState is the persisted per-chat expectation: the bot prompted
// for a free-text reply and the next message should complete the pending
// edit. Consumed on use, superseded by any newer expectation.
type ConversationState struct {
	ChatID    int64     `db:"chat_id"`
	Kind      string    `db:"kind"`
	MessageID int       `db:"message_id"`
	TxID      int64     `db:"tx_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Metric is a daily usage counter.
type Metric struct {
	ID    int64     `db:"id"`
	Key   string    `db:"key"`
	Date  time.Time `db:"date"`
	Value float64   `db:"value"`
}
