// Package reconciler implements the dispatch/reconciliation engine: it pulls
// transactions from the upstream provider, decides which ones the chat has
// not seen yet, threads related transactions together, and keeps already-sent
// messages in sync with upstream state.
package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

// Polling windows. Posted transactions settle slowly, so their window is
// wider than the pending one.
const (
	postedWindowDays  = 30
	pendingWindowDays = 15
)

// Mode selects which kind of transactions a reconciliation pass looks at.
type Mode int

const (
	// ModePosted fetches settled, unreviewed transactions.
	ModePosted Mode = iota
	// ModePending fetches pending transactions that carry no notes yet.
	ModePending
)

func (m Mode) String() string {
	if m == ModePending {
		return "pending"
	}
	return "posted"
}

// Provider is the upstream transactions API, one instance per token.
type Provider interface {
	ListTransactions(ctx context.Context, filter lunchmoney.TransactionFilter) ([]lunchmoney.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*lunchmoney.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, update lunchmoney.TransactionUpdate) error
	GetCategories(ctx context.Context) ([]lunchmoney.Category, error)
	GetUser(ctx context.Context) (*lunchmoney.User, error)
}

// Messenger renders transactions into chat messages. Implemented by the
// telegram transport.
type Messenger interface {
	// SendTransaction sends a new transaction message and returns its
	// message id. replyToMessageID of 0 means no threading.
	SendTransaction(ctx context.Context, chatID int64, settings *database.Settings, tx *lunchmoney.Transaction, replyToMessageID int) (int, error)

	// EditTransaction re-renders an existing transaction message in place.
	EditTransaction(ctx context.Context, chatID int64, settings *database.Settings, messageID int, tx *lunchmoney.Transaction) error
}

// Result summarizes one reconciliation pass.
type Result struct {
	Fetched    int
	Dispatched int
}

// ResyncResult summarizes one resync pass.
type ResyncResult struct {
	Synced  int
	Errors  int
	Missing int
}

// Engine coordinates reconciliation passes. A per-chat mutex spans each whole
// pass, and user-triggered actions can take the same lock, so a chat never
// has two passes mutating its message state concurrently.
type Engine struct {
	store       database.Store
	messenger   Messenger
	providerFor func(token string) Provider
	clock       func() time.Time
	logger      *slog.Logger

	locks sync.Map // chatID -> *sync.Mutex
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New creates an Engine. providerFor builds an upstream client for a chat's
// token.
func New(store database.Store, messenger Messenger, providerFor func(token string) Provider, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		store:       store,
		messenger:   messenger,
		providerFor: providerFor,
		clock:       time.Now,
		logger:      logger.With("component", "reconciler"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LockChat acquires the chat's reconciliation lock and returns the unlock
// function. Handlers mutating transaction messages outside a full pass take
// this lock too.
func (e *Engine) LockChat(chatID int64) func() {
	mu, _ := e.locks.LoadOrStore(chatID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

// ProviderFor resolves the chat's registration into an upstream client.
func (e *Engine) ProviderFor(ctx context.Context, chatID int64) (Provider, *database.Settings, error) {
	settings, err := e.store.GetSettings(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve provider for chat %d: %w", chatID, err)
	}
	return e.providerFor(settings.Token), settings, nil
}

// Reconcile runs one full pass for a chat in the given mode.
func (e *Engine) Reconcile(ctx context.Context, chatID int64, mode Mode) (Result, error) {
	unlock := e.LockChat(chatID)
	defer unlock()

	provider, settings, err := e.ProviderFor(ctx, chatID)
	if err != nil {
		return Result{}, err
	}

	if mode == ModePending {
		return e.reconcilePending(ctx, chatID, settings, provider)
	}
	return e.reconcilePosted(ctx, chatID, settings, provider)
}

// reconcilePosted fetches settled unreviewed transactions from the last 30
// days and dispatches the ones the chat has not seen.
func (e *Engine) reconcilePosted(ctx context.Context, chatID int64, settings *database.Settings, provider Provider) (Result, error) {
	end := startOfDay(e.clock())
	start := end.AddDate(0, 0, -postedWindowDays)
	e.logger.InfoContext(ctx, "Polling for posted transactions",
		"chat_id", chatID, "start", start, "end", end)

	pending := false
	txs, err := provider.ListTransactions(ctx, lunchmoney.TransactionFilter{
		StartDate: start,
		EndDate:   end,
		Status:    lunchmoney.StatusUncleared,
		Pending:   &pending,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch posted transactions for chat %d: %w", chatID, err)
	}

	result := Result{Fetched: len(txs)}
	e.logger.InfoContext(ctx, "Found unreviewed transactions", "chat_id", chatID, "count", len(txs))

	for i := range txs {
		tx := &txs[i]

		if settings.AutoMarkReviewed {
			// The upstream patch must land before the message is rendered,
			// so the message never shows a stale unreviewed state.
			status := lunchmoney.StatusCleared
			if err := provider.UpdateTransaction(ctx, tx.ID, lunchmoney.TransactionUpdate{Status: &status}); err != nil {
				e.logger.ErrorContext(ctx, "Failed to auto-mark transaction as reviewed",
					"chat_id", chatID, "tx_id", tx.ID, "error", err)
				continue
			}
			tx.Status = lunchmoney.StatusCleared
		}

		sent, err := e.store.WasAlreadySent(ctx, tx.ID, false)
		if err != nil {
			return result, err
		}
		if sent {
			continue
		}

		// Thread the message under its counterpart, like a credit-card
		// payment that shows up on both accounts.
		replyTo := 0
		if related := FindRelated(tx, txs); related != nil {
			e.logger.InfoContext(ctx, "Found related transaction",
				"chat_id", chatID, "tx_id", tx.ID, "related_tx_id", related.ID)
			replyTo, err = e.store.GetMessageID(ctx, related.ID, chatID)
			if err != nil {
				e.logger.WarnContext(ctx, "Failed to resolve related message",
					"chat_id", chatID, "related_tx_id", related.ID, "error", err)
				replyTo = 0
			}
		}

		if err := e.dispatchNew(ctx, chatID, settings, tx, replyTo, false); err != nil {
			e.logger.ErrorContext(ctx, "Failed to dispatch transaction",
				"chat_id", chatID, "tx_id", tx.ID, "error", err)
			continue
		}
		result.Dispatched++
	}

	return result, nil
}

// reconcilePending fetches pending transactions from the last 15 days and
// dispatches the note-less ones the chat has not seen. Pending passes never
// auto-mark anything upstream.
func (e *Engine) reconcilePending(ctx context.Context, chatID int64, settings *database.Settings, provider Provider) (Result, error) {
	end := startOfDay(e.clock())
	start := end.AddDate(0, 0, -pendingWindowDays)
	e.logger.InfoContext(ctx, "Polling for pending transactions",
		"chat_id", chatID, "start", start, "end", end)

	pending := true
	fetched, err := provider.ListTransactions(ctx, lunchmoney.TransactionFilter{
		StartDate: start,
		EndDate:   end,
		Pending:   &pending,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch pending transactions for chat %d: %w", chatID, err)
	}

	// A pending transaction with notes was already annotated by the user;
	// re-sending it would only add noise.
	var txs []lunchmoney.Transaction
	for _, tx := range fetched {
		if tx.IsPending && tx.Notes == nil {
			txs = append(txs, tx)
		}
	}

	result := Result{Fetched: len(txs)}
	e.logger.InfoContext(ctx, "Found pending transactions", "chat_id", chatID, "count", len(txs))

	for i := range txs {
		tx := &txs[i]

		sent, err := e.store.WasAlreadySent(ctx, tx.ID, true)
		if err != nil {
			return result, err
		}
		if sent {
			e.logger.DebugContext(ctx, "Skipping already sent pending transaction",
				"chat_id", chatID, "tx_id", tx.ID)
			continue
		}

		if err := e.dispatchNew(ctx, chatID, settings, tx, 0, true); err != nil {
			e.logger.ErrorContext(ctx, "Failed to dispatch pending transaction",
				"chat_id", chatID, "tx_id", tx.ID, "error", err)
			continue
		}
		result.Dispatched++
	}

	return result, nil
}

// dispatchNew sends a transaction to the chat for the first time and records
// the sent fact. Recording happens after the send so a failed send can be
// retried by the next pass.
func (e *Engine) dispatchNew(ctx context.Context, chatID int64, settings *database.Settings, tx *lunchmoney.Transaction, replyTo int, pending bool) error {
	messageID, err := e.messenger.SendTransaction(ctx, chatID, settings, tx, replyTo)
	if err != nil {
		return fmt.Errorf("failed to send transaction %d: %w", tx.ID, err)
	}

	sent := &database.SentTransaction{
		MessageID: messageID,
		TxID:      tx.ID,
		ChatID:    chatID,
		Pending:   pending,
	}
	if tx.RecurringType != nil {
		sent.RecurringType = sql.NullString{String: *tx.RecurringType, Valid: true}
	}
	if plaidID := tx.PlaidTransactionID(); plaidID != "" {
		sent.PlaidID = sql.NullString{String: plaidID, Valid: true}
	}

	if err := e.store.MarkAsSent(ctx, sent); err != nil {
		return fmt.Errorf("failed to record sent transaction %d: %w", tx.ID, err)
	}
	return nil
}

// DispatchUpdate re-renders a transaction's existing message and reconciles
// the local reviewed flag with the upstream status.
func (e *Engine) DispatchUpdate(ctx context.Context, chatID int64, settings *database.Settings, messageID int, tx *lunchmoney.Transaction) error {
	if err := e.messenger.EditTransaction(ctx, chatID, settings, messageID, tx); err != nil {
		return fmt.Errorf("failed to edit message for transaction %d: %w", tx.ID, err)
	}

	if tx.Status == lunchmoney.StatusCleared {
		return e.store.MarkAsReviewed(ctx, tx.ID, chatID)
	}
	return e.store.MarkAsUnreviewed(ctx, tx.ID, chatID)
}

// Resync re-fetches the chat's known transactions from upstream and edits
// every message in place, bringing chat history back in line with upstream
// edits made elsewhere. lastNDays of 0 covers the chat's whole ledger.
func (e *Engine) Resync(ctx context.Context, chatID int64, lastNDays int) (ResyncResult, error) {
	unlock := e.LockChat(chatID)
	defer unlock()

	provider, settings, err := e.ProviderFor(ctx, chatID)
	if err != nil {
		return ResyncResult{}, err
	}

	rows, err := e.store.GetSentTransactionsForChat(ctx, chatID)
	if err != nil {
		return ResyncResult{}, err
	}
	if len(rows) == 0 {
		return ResyncResult{}, nil
	}

	// Window from the ledger's creation bounds, padded at the start because
	// transactions post a few days before they are dispatched.
	earliest := startOfDay(rows[0].CreatedAt).AddDate(0, 0, -5)
	latest := startOfDay(rows[len(rows)-1].CreatedAt)
	if lastNDays > 0 {
		earliest = latest.AddDate(0, 0, -lastNDays)
	}

	e.logger.InfoContext(ctx, "Resyncing transactions",
		"chat_id", chatID, "start", earliest, "end", latest)

	upstream, err := provider.ListTransactions(ctx, lunchmoney.TransactionFilter{
		StartDate: earliest,
		EndDate:   latest,
	})
	if err != nil {
		return ResyncResult{}, fmt.Errorf("failed to fetch transactions for resync (chat %d): %w", chatID, err)
	}

	byID := make(map[int64]*lunchmoney.Transaction, len(upstream))
	for i := range upstream {
		byID[upstream[i].ID] = &upstream[i]
	}

	var result ResyncResult
	for _, row := range rows {
		if lastNDays > 0 && row.CreatedAt.Before(earliest) {
			continue
		}

		tx, ok := byID[row.TxID]
		if !ok {
			// Fell outside the listing window, or was deleted upstream.
			tx, err = provider.GetTransaction(ctx, row.TxID)
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to fetch transaction during resync",
					"chat_id", chatID, "tx_id", row.TxID, "error", err)
				result.Missing++
				continue
			}
		}

		if err := e.DispatchUpdate(ctx, chatID, settings, row.MessageID, tx); err != nil {
			e.logger.ErrorContext(ctx, "Failed to update message during resync",
				"chat_id", chatID, "tx_id", row.TxID, "error", err)
			result.Errors++
			continue
		}
		result.Synced++
	}

	e.logger.InfoContext(ctx, "Resync completed", "chat_id", chatID,
		"synced", result.Synced, "errors", result.Errors, "missing", result.Missing)
	return result, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
