package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

// fakeStore implements the store methods the engine touches; everything else
// panics via the embedded nil interface.
type fakeStore struct {
	database.Store

	settings map[int64]*database.Settings
	sent     []*database.SentTransaction
}

func newFakeStore(chats ...*database.Settings) *fakeStore {
	s := &fakeStore{settings: make(map[int64]*database.Settings)}
	for _, chat := range chats {
		s.settings[chat.ChatID] = chat
	}
	return s
}

func (s *fakeStore) GetSettings(_ context.Context, chatID int64) (*database.Settings, error) {
	settings, ok := s.settings[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %d: %w", chatID, database.ErrNotRegistered)
	}
	return settings, nil
}

func (s *fakeStore) WasAlreadySent(_ context.Context, txID int64, pending bool) (bool, error) {
	for _, record := range s.sent {
		if record.TxID == txID && record.Pending == pending {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, sent *database.SentTransaction) error {
	if sent.CreatedAt.IsZero() {
		sent.CreatedAt = time.Now().UTC()
	}
	sent.ID = int64(len(s.sent) + 1)
	s.sent = append(s.sent, sent)
	return nil
}

func (s *fakeStore) GetMessageID(_ context.Context, txID, chatID int64) (int, error) {
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].TxID == txID && s.sent[i].ChatID == chatID {
			return s.sent[i].MessageID, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) latest(txID, chatID int64) *database.SentTransaction {
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].TxID == txID && s.sent[i].ChatID == chatID {
			return s.sent[i]
		}
	}
	return nil
}

func (s *fakeStore) MarkAsReviewed(_ context.Context, txID, chatID int64) error {
	if record := s.latest(txID, chatID); record != nil {
		record.ReviewedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	return nil
}

func (s *fakeStore) MarkAsUnreviewed(_ context.Context, txID, chatID int64) error {
	if record := s.latest(txID, chatID); record != nil {
		record.ReviewedAt = sql.NullTime{}
	}
	return nil
}

func (s *fakeStore) GetSentTransactionsForChat(_ context.Context, chatID int64) ([]database.SentTransaction, error) {
	var records []database.SentTransaction
	for _, record := range s.sent {
		if record.ChatID == chatID {
			records = append(records, *record)
		}
	}
	return records, nil
}

// sentCall records one SendTransaction invocation.
type sentCall struct {
	TxID    int64
	ReplyTo int
	Status  string
}

type fakeMessenger struct {
	nextMessageID int
	sends         []sentCall
	edits         []int64
}

func (m *fakeMessenger) SendTransaction(_ context.Context, _ int64, _ *database.Settings, tx *lunchmoney.Transaction, replyTo int) (int, error) {
	m.nextMessageID++
	m.sends = append(m.sends, sentCall{TxID: tx.ID, ReplyTo: replyTo, Status: tx.Status})
	return m.nextMessageID, nil
}

func (m *fakeMessenger) EditTransaction(_ context.Context, _ int64, _ *database.Settings, _ int, tx *lunchmoney.Transaction) error {
	m.edits = append(m.edits, tx.ID)
	return nil
}

type fakeProvider struct {
	transactions []lunchmoney.Transaction
	updates      []int64
	failUpdates  bool
}

func (p *fakeProvider) ListTransactions(_ context.Context, _ lunchmoney.TransactionFilter) ([]lunchmoney.Transaction, error) {
	return p.transactions, nil
}

func (p *fakeProvider) GetTransaction(_ context.Context, id int64) (*lunchmoney.Transaction, error) {
	for i := range p.transactions {
		if p.transactions[i].ID == id {
			return &p.transactions[i], nil
		}
	}
	return nil, fmt.Errorf("transaction %d not found", id)
}

func (p *fakeProvider) UpdateTransaction(_ context.Context, id int64, _ lunchmoney.TransactionUpdate) error {
	if p.failUpdates {
		return fmt.Errorf("update of transaction %d rejected", id)
	}
	p.updates = append(p.updates, id)
	return nil
}

func (p *fakeProvider) GetCategories(_ context.Context) ([]lunchmoney.Category, error) {
	return nil, nil
}

func (p *fakeProvider) GetUser(_ context.Context) (*lunchmoney.User, error) {
	return &lunchmoney.User{UserID: 1, UserName: "tester"}, nil
}

func newTestEngine(store *fakeStore, messenger *fakeMessenger, provider *fakeProvider) *Engine {
	return New(store, messenger, func(string) Provider { return provider }, nil,
		WithClock(func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }))
}

func chatSettings(chatID int64) *database.Settings {
	return &database.Settings{ChatID: chatID, Token: "t", Timezone: "UTC"}
}

func postedTx(id int64, amount string) lunchmoney.Transaction {
	return lunchmoney.Transaction{
		ID:     id,
		Amount: decimal.RequireFromString(amount),
		Date:   "2026-08-14",
		Payee:  fmt.Sprintf("payee-%d", id),
		Status: lunchmoney.StatusUncleared,
	}
}

func TestReconcilePostedDispatchesOnce(t *testing.T) {
	t.Parallel()

	store := newFakeStore(chatSettings(10))
	messenger := &fakeMessenger{}
	provider := &fakeProvider{transactions: []lunchmoney.Transaction{postedTx(1, "10.00"), postedTx(2, "20.00")}}
	engine := newTestEngine(store, messenger, provider)

	result, err := engine.Reconcile(context.Background(), 10, ModePosted)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Fetched != 2 || result.Dispatched != 2 {
		t.Fatalf("expected 2 fetched and dispatched, got %+v", result)
	}

	// A second pass over the same upstream data must not re-send anything.
	result, err = engine.Reconcile(context.Background(), 10, ModePosted)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if result.Dispatched != 0 {
		t.Fatalf("expected idempotent second pass, dispatched %d", result.Dispatched)
	}
	if len(messenger.sends) != 2 {
		t.Fatalf("expected 2 sends total, got %d", len(messenger.sends))
	}
}

func TestReconcilePostedAutoMarkBeforeSend(t *testing.T) {
	t.Parallel()

	settings := chatSettings(10)
	settings.AutoMarkReviewed = true
	store := newFakeStore(settings)
	messenger := &fakeMessenger{}
	provider := &fakeProvider{transactions: []lunchmoney.Transaction{postedTx(1, "10.00")}}
	engine := newTestEngine(store, messenger, provider)

	if _, err := engine.Reconcile(context.Background(), 10, ModePosted); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if len(provider.updates) != 1 || provider.updates[0] != 1 {
		t.Fatalf("expected upstream patch for transaction 1, got %v", provider.updates)
	}
	if len(messenger.sends) != 1 || messenger.sends[0].Status != lunchmoney.StatusCleared {
		t.Fatalf("expected message rendered with cleared status, got %+v", messenger.sends)
	}
}

func TestReconcilePostedSkipsOnPatchFailure(t *testing.T) {
	t.Parallel()

	settings := chatSettings(10)
	settings.AutoMarkReviewed = true
	store := newFakeStore(settings)
	messenger := &fakeMessenger{}
	provider := &fakeProvider{
		transactions: []lunchmoney.Transaction{postedTx(1, "10.00")},
		failUpdates:  true,
	}
	engine := newTestEngine(store, messenger, provider)

	result, err := engine.Reconcile(context.Background(), 10, ModePosted)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Dispatched != 0 || len(messenger.sends) != 0 {
		t.Fatal("transaction must not be dispatched when the upstream patch fails")
	}
	// Nothing was recorded, so the next pass can retry.
	if len(store.sent) != 0 {
		t.Fatalf("expected no ledger records, got %d", len(store.sent))
	}
}

func TestReconcilePostedThreadsRelated(t *testing.T) {
	t.Parallel()

	store := newFakeStore(chatSettings(10))
	messenger := &fakeMessenger{}
	payment := postedTx(1, "100.00")
	counterpart := postedTx(2, "-100.00")
	counterpart.Payee = payment.Payee
	provider := &fakeProvider{transactions: []lunchmoney.Transaction{payment, counterpart}}
	engine := newTestEngine(store, messenger, provider)

	if _, err := engine.Reconcile(context.Background(), 10, ModePosted); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if len(messenger.sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(messenger.sends))
	}
	first, second := messenger.sends[0], messenger.sends[1]
	if first.ReplyTo != 0 {
		t.Fatalf("first message should not be threaded, got reply to %d", first.ReplyTo)
	}
	if second.ReplyTo != 1 {
		t.Fatalf("counterpart should thread under message 1, got %d", second.ReplyTo)
	}
}

func TestReconcilePendingFiltersAndDedupsIndependently(t *testing.T) {
	t.Parallel()

	store := newFakeStore(chatSettings(10))
	messenger := &fakeMessenger{}

	notes := "already annotated"
	pendingNew := postedTx(1, "10.00")
	pendingNew.IsPending = true
	pendingAnnotated := postedTx(2, "20.00")
	pendingAnnotated.IsPending = true
	pendingAnnotated.Notes = &notes

	provider := &fakeProvider{transactions: []lunchmoney.Transaction{pendingNew, pendingAnnotated}}
	engine := newTestEngine(store, messenger, provider)

	result, err := engine.Reconcile(context.Background(), 10, ModePending)
	if err != nil {
		t.Fatalf("pending reconcile failed: %v", err)
	}
	if result.Fetched != 1 || result.Dispatched != 1 {
		t.Fatalf("expected only the note-less pending transaction, got %+v", result)
	}

	// The same transaction posting later is a separate dispatch: pending and
	// posted ledger entries do not collide.
	posted := postedTx(1, "10.00")
	provider.transactions = []lunchmoney.Transaction{posted}
	result, err = engine.Reconcile(context.Background(), 10, ModePosted)
	if err != nil {
		t.Fatalf("posted reconcile failed: %v", err)
	}
	if result.Dispatched != 1 {
		t.Fatalf("posted form of a pending transaction must dispatch again, got %+v", result)
	}
}

func TestDispatchUpdateReconcilesReviewedFlag(t *testing.T) {
	t.Parallel()

	store := newFakeStore(chatSettings(10))
	messenger := &fakeMessenger{}
	provider := &fakeProvider{transactions: []lunchmoney.Transaction{postedTx(1, "10.00")}}
	engine := newTestEngine(store, messenger, provider)

	if _, err := engine.Reconcile(context.Background(), 10, ModePosted); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	cleared := postedTx(1, "10.00")
	cleared.Status = lunchmoney.StatusCleared
	if err := engine.DispatchUpdate(context.Background(), 10, chatSettings(10), 1, &cleared); err != nil {
		t.Fatalf("dispatch update failed: %v", err)
	}
	if record := store.latest(1, 10); record == nil || !record.Reviewed() {
		t.Fatal("expected ledger record marked reviewed after cleared update")
	}

	uncleared := postedTx(1, "10.00")
	if err := engine.DispatchUpdate(context.Background(), 10, chatSettings(10), 1, &uncleared); err != nil {
		t.Fatalf("dispatch update failed: %v", err)
	}
	if record := store.latest(1, 10); record == nil || record.Reviewed() {
		t.Fatal("expected ledger record unreviewed after uncleared update")
	}
}

func TestResyncEditsKnownMessages(t *testing.T) {
	t.Parallel()

	store := newFakeStore(chatSettings(10))
	messenger := &fakeMessenger{}
	provider := &fakeProvider{transactions: []lunchmoney.Transaction{postedTx(1, "10.00"), postedTx(2, "20.00")}}
	engine := newTestEngine(store, messenger, provider)

	if _, err := engine.Reconcile(context.Background(), 10, ModePosted); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	// Transaction 2 disappears upstream.
	provider.transactions = provider.transactions[:1]

	result, err := engine.Resync(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if result.Synced != 1 || result.Missing != 1 || result.Errors != 0 {
		t.Fatalf("expected 1 synced and 1 missing, got %+v", result)
	}
	if len(messenger.edits) != 1 || messenger.edits[0] != 1 {
		t.Fatalf("expected one edit for transaction 1, got %v", messenger.edits)
	}
}

func TestResyncEmptyLedgerIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore(chatSettings(10))
	messenger := &fakeMessenger{}
	provider := &fakeProvider{}
	engine := newTestEngine(store, messenger, provider)

	result, err := engine.Resync(context.Background(), 10, 15)
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if result != (ResyncResult{}) {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
