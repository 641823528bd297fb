package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
)

func newTestStore(t *testing.T) (Store, *sqlx.DB) {
	t.Helper()

	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { CloseDB(db) })

	return NewStore(db, nil), db
}

func TestSaveTokenAndDefaults(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, 10, "secret"); err != nil {
		t.Fatalf("save token failed: %v", err)
	}

	settings, err := store.GetSettings(ctx, 10)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings.Token != "secret" {
		t.Fatalf("expected token to round-trip, got %q", settings.Token)
	}
	if settings.PollIntervalSecs != 3600 {
		t.Fatalf("expected default poll interval 3600, got %d", settings.PollIntervalSecs)
	}
	if settings.Timezone != "UTC" {
		t.Fatalf("expected default timezone UTC, got %q", settings.Timezone)
	}
	if !settings.ShowDateTime || !settings.Tagging {
		t.Fatal("expected datetime and tagging enabled by default")
	}
	if settings.LastPollAt.Valid {
		t.Fatal("a fresh registration must have no poll timestamp")
	}

	// Re-registering replaces the token and keeps the other settings.
	if err := store.UpdateSetting(ctx, 10, "poll_interval_secs", 600); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}
	if err := store.SaveToken(ctx, 10, "rotated"); err != nil {
		t.Fatalf("second save token failed: %v", err)
	}
	settings, err = store.GetSettings(ctx, 10)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings.Token != "rotated" || settings.PollIntervalSecs != 600 {
		t.Fatalf("token rotation must not reset settings, got %+v", settings)
	}
}

func TestGetSettingsUnregistered(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.GetSettings(context.Background(), 99)
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestUpdateSettingRejectsUnknownColumn(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, 10, "secret"); err != nil {
		t.Fatalf("save token failed: %v", err)
	}
	if err := store.UpdateSetting(ctx, 10, "token", "stolen"); err == nil {
		t.Fatal("expected unknown column to be rejected")
	}
	if err := store.UpdateSetting(ctx, 99, "tagging", false); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered for unknown chat, got %v", err)
	}
}

func TestSentTransactionLifecycle(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	sent, err := store.WasAlreadySent(ctx, 1000, false)
	if err != nil {
		t.Fatalf("sent check failed: %v", err)
	}
	if sent {
		t.Fatal("nothing was sent yet")
	}

	record := &SentTransaction{MessageID: 7, TxID: 1000, ChatID: 10, Pending: false}
	if err := store.MarkAsSent(ctx, record); err != nil {
		t.Fatalf("mark as sent failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected insert id to be backfilled")
	}

	sent, err = store.WasAlreadySent(ctx, 1000, false)
	if err != nil || !sent {
		t.Fatalf("expected transaction recorded as sent, got %v/%v", sent, err)
	}
	// The pending ledger is independent of the posted one.
	sent, err = store.WasAlreadySent(ctx, 1000, true)
	if err != nil || sent {
		t.Fatalf("pending flag must partition the ledger, got %v/%v", sent, err)
	}

	messageID, err := store.GetMessageID(ctx, 1000, 10)
	if err != nil || messageID != 7 {
		t.Fatalf("expected message id 7, got %d/%v", messageID, err)
	}
	txID, err := store.GetTransactionID(ctx, 7, 10)
	if err != nil || txID != 1000 {
		t.Fatalf("expected transaction id 1000, got %d/%v", txID, err)
	}
	txID, err = store.GetTransactionID(ctx, 8, 10)
	if err != nil || txID != 0 {
		t.Fatalf("unknown message must resolve to 0, got %d/%v", txID, err)
	}
}

func TestReviewedStamping(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	// Stamping a transaction that was never sent is a no-op, not an error.
	if err := store.MarkAsReviewed(ctx, 1000, 10); err != nil {
		t.Fatalf("no-op stamp failed: %v", err)
	}

	if err := store.MarkAsSent(ctx, &SentTransaction{MessageID: 7, TxID: 1000, ChatID: 10}); err != nil {
		t.Fatalf("mark as sent failed: %v", err)
	}

	if err := store.MarkAsReviewed(ctx, 1000, 10); err != nil {
		t.Fatalf("mark as reviewed failed: %v", err)
	}
	record, err := store.GetSentTransaction(ctx, 1000, 10)
	if err != nil || record == nil {
		t.Fatalf("get sent transaction failed: %v", err)
	}
	if !record.Reviewed() {
		t.Fatal("expected reviewed timestamp set")
	}

	if err := store.MarkAsUnreviewed(ctx, 1000, 10); err != nil {
		t.Fatalf("mark as unreviewed failed: %v", err)
	}
	record, err = store.GetSentTransaction(ctx, 1000, 10)
	if err != nil || record == nil {
		t.Fatalf("get sent transaction failed: %v", err)
	}
	if record.Reviewed() {
		t.Fatal("expected reviewed timestamp cleared")
	}
}

func TestGetSentTransactionMissing(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	record, err := store.GetSentTransaction(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if record != nil {
		t.Fatal("expected nil record for unknown transaction")
	}
}

func TestConversationStateRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	state, err := store.GetConversationState(ctx, 10)
	if err != nil || state != nil {
		t.Fatalf("expected no state, got %+v/%v", state, err)
	}

	if err := store.SetConversationState(ctx, &ConversationState{ChatID: 10, Kind: ExpectToken, MessageID: 3}); err != nil {
		t.Fatalf("set state failed: %v", err)
	}
	// A newer expectation replaces the old one.
	if err := store.SetConversationState(ctx, &ConversationState{ChatID: 10, Kind: ExpectEditNotes, MessageID: 4, TxID: 1000}); err != nil {
		t.Fatalf("replace state failed: %v", err)
	}

	state, err = store.GetConversationState(ctx, 10)
	if err != nil || state == nil {
		t.Fatalf("get state failed: %+v/%v", state, err)
	}
	if state.Kind != ExpectEditNotes || state.MessageID != 4 || state.TxID != 1000 {
		t.Fatalf("unexpected state: %+v", state)
	}

	if err := store.ClearConversationState(ctx, 10); err != nil {
		t.Fatalf("clear state failed: %v", err)
	}
	state, err = store.GetConversationState(ctx, 10)
	if err != nil || state != nil {
		t.Fatalf("expected state cleared, got %+v/%v", state, err)
	}
}

func TestDeleteChatData(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, 10, "secret"); err != nil {
		t.Fatalf("save token failed: %v", err)
	}
	if err := store.MarkAsSent(ctx, &SentTransaction{MessageID: 7, TxID: 1000, ChatID: 10}); err != nil {
		t.Fatalf("mark as sent failed: %v", err)
	}
	if err := store.SetConversationState(ctx, &ConversationState{ChatID: 10, Kind: ExpectToken}); err != nil {
		t.Fatalf("set state failed: %v", err)
	}

	if err := store.DeleteChatData(ctx, 10); err != nil {
		t.Fatalf("delete chat data failed: %v", err)
	}

	if _, err := store.GetSettings(ctx, 10); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected registration gone, got %v", err)
	}
	records, err := store.GetSentTransactionsForChat(ctx, 10)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected ledger gone, got %d records/%v", len(records), err)
	}
	state, err := store.GetConversationState(ctx, 10)
	if err != nil || state != nil {
		t.Fatalf("expected state gone, got %+v/%v", state, err)
	}
}

func TestUpdateLastPollAt(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveToken(ctx, 10, "secret"); err != nil {
		t.Fatalf("save token failed: %v", err)
	}

	at := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateLastPollAt(ctx, 10, at); err != nil {
		t.Fatalf("update last poll failed: %v", err)
	}

	settings, err := store.GetSettings(ctx, 10)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if !settings.LastPollAt.Valid || !settings.LastPollAt.Time.Equal(at) {
		t.Fatalf("expected poll timestamp %v, got %+v", at, settings.LastPollAt)
	}
}

func TestIncrementMetricAccumulates(t *testing.T) {
	t.Parallel()

	store, db := newTestStore(t)
	ctx := context.Background()

	if err := store.IncrementMetric(ctx, "categorizations", 1); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := store.IncrementMetric(ctx, "categorizations", 2); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	var value float64
	if err := db.GetContext(ctx, &value, `SELECT value FROM analytics WHERE key = ?`, "categorizations"); err != nil {
		t.Fatalf("metric lookup failed: %v", err)
	}
	if value != 3 {
		t.Fatalf("expected accumulated value 3, got %v", value)
	}
}
