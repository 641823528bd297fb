package lunchmoney

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses used by the upstream API. "uncleared" is what the bot
// treats as unreviewed.
const (
	StatusCleared   = "cleared"
	StatusUncleared = "uncleared"
)

// Recurring transaction types the upstream API reports.
const (
	RecurringCleared   = "cleared"
	RecurringSuggested = "suggested"
)

// Tag is a label attached to a transaction.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Transaction is a single upstream transaction. Amounts are decoded into
// decimal.Decimal so sign inversion and equality are exact; the API shows
// credits as negative amounts.
type Transaction struct {
	ID       int64           `json:"id"`
	Date     string          `json:"date"`
	Payee    string          `json:"payee"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Notes    *string         `json:"notes"`
	Status   string          `json:"status"`

	CategoryID        *int64 `json:"category_id"`
	CategoryName      string `json:"category_name"`
	CategoryGroupName string `json:"category_group_name"`

	IsPending     bool    `json:"is_pending"`
	RecurringType *string `json:"recurring_type"`

	PlaidAccountID          *int64  `json:"plaid_account_id"`
	PlaidAccountDisplayName *string `json:"plaid_account_display_name"`
	AssetID                 *int64  `json:"asset_id"`
	AssetDisplayName        *string `json:"asset_display_name"`
	AccountType             *string `json:"account_display_type"`

	Tags []Tag `json:"tags"`

	// PlaidMetadata carries the raw bank feed record when the transaction
	// came through an aggregator. Keys of interest: transaction_id,
	// authorized_datetime, date, merchant_name, name.
	PlaidMetadata map[string]any `json:"plaid_metadata"`
}

// IsRecurring reports whether the transaction belongs to a recurring series.
// Recurring transactions are not categorizable.
func (t *Transaction) IsRecurring() bool {
	return t.RecurringType != nil && *t.RecurringType != ""
}

// IsCredit reports whether the upstream amount is negative, which the API
// uses for money coming in.
func (t *Transaction) IsCredit() bool {
	return t.Amount.IsNegative()
}

// PlaidTransactionID returns the aggregator's own transaction id, when present.
func (t *Transaction) PlaidTransactionID() string {
	if t.PlaidMetadata == nil {
		return ""
	}
	if id, ok := t.PlaidMetadata["transaction_id"].(string); ok {
		return id
	}
	return ""
}

// AuthorizedAt returns the bank-feed authorization time, when present.
func (t *Transaction) AuthorizedAt() (time.Time, bool) {
	if t.PlaidMetadata == nil {
		return time.Time{}, false
	}
	raw, ok := t.PlaidMetadata["authorized_datetime"].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// AccountKind classifies the account a transaction belongs to, collapsing the
// upstream's two account families (aggregator-linked and manually tracked)
// into one enum for rendering.
type AccountKind int

const (
	AccountUnknown AccountKind = iota
	AccountDepository
	AccountCredit
	AccountInvestment
	AccountCrypto
	AccountCash
)

// Account is the rendering view of a transaction's account.
type Account struct {
	Kind AccountKind
	Name string
}

// Account resolves the transaction's account variant. Aggregator-linked
// accounts take precedence over manually tracked assets.
func (t *Transaction) Account() Account {
	acct := Account{Kind: AccountUnknown}

	switch {
	case t.PlaidAccountID != nil:
		if t.PlaidAccountDisplayName != nil {
			acct.Name = *t.PlaidAccountDisplayName
		}
	case t.AssetID != nil:
		if t.AssetDisplayName != nil {
			acct.Name = *t.AssetDisplayName
		}
	default:
		return acct
	}

	if t.AccountType == nil {
		return acct
	}
	switch *t.AccountType {
	case "depository":
		acct.Kind = AccountDepository
	case "credit":
		acct.Kind = AccountCredit
	case "investment", "brokerage":
		acct.Kind = AccountInvestment
	case "crypto":
		acct.Kind = AccountCrypto
	case "cash":
		acct.Kind = AccountCash
	}
	return acct
}

// Category is a node of the two-level category tree. Group nodes have
// IsGroup set and carry their subcategories in Children; leaf nodes attached
// to a group carry the group's id in GroupID.
type Category struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	IsGroup  bool       `json:"is_group"`
	GroupID  *int64     `json:"group_id"`
	Children []Category `json:"children"`
}

// User identifies the token owner, used to validate tokens at registration.
type User struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	AccountID int64  `json:"account_id"`
}

// TransactionFilter narrows a transaction listing. Zero-value fields are
// omitted from the request.
type TransactionFilter struct {
	StartDate time.Time
	EndDate   time.Time
	Status    string
	Pending   *bool
}

// TransactionUpdate is a partial update; nil fields are left untouched.
type TransactionUpdate struct {
	Status     *string  `json:"status,omitempty"`
	CategoryID *int64   `json:"category_id,omitempty"`
	Payee      *string  `json:"payee,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}
