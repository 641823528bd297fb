package telegram

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

func testSettings() *database.Settings {
	return &database.Settings{
		ChatID:       10,
		Tagging:      true,
		ShowDateTime: true,
		Timezone:     "UTC",
	}
}

func baseTx() *lunchmoney.Transaction {
	return &lunchmoney.Transaction{
		ID:                1,
		Date:              "2026-08-14",
		Payee:             "Corner Store",
		Amount:            decimal.RequireFromString("12.34"),
		Currency:          "usd",
		Status:            lunchmoney.StatusUncleared,
		CategoryName:      "Groceries",
		CategoryGroupName: "Food",
	}
}

func TestMakeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Food", "#Food"},
		{"food and drink", "#FoodAndDrink"},
		{"misc. expenses", "#MiscExpenses"},
	}

	for _, tc := range tests {
		if got := MakeTag(tc.in); got != tc.want {
			t.Errorf("MakeTag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTransactionBasics(t *testing.T) {
	t.Parallel()

	body := RenderTransaction(baseTx(), testSettings())

	for _, want := range []string{"#Food", "Corner Store", "12.34", "#Groceries", "2026-08-14"} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered message missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "pending") {
		t.Error("non-pending transaction must not carry the pending notice")
	}
	if strings.Contains(body, "➕") {
		t.Error("debit must not carry the credit marker")
	}
}

func TestRenderTransactionCredit(t *testing.T) {
	t.Parallel()

	tx := baseTx()
	tx.Amount = decimal.RequireFromString("-56.78")

	body := RenderTransaction(tx, testSettings())
	if !strings.Contains(body, "➕") {
		t.Error("credit must carry the plus marker")
	}
	if !strings.Contains(body, "56.78") {
		t.Error("credit must render the absolute amount")
	}
	if strings.Contains(body, "-56.78") {
		t.Error("credit must not render the raw negative amount")
	}
}

func TestRenderTransactionPendingAndRecurring(t *testing.T) {
	t.Parallel()

	tx := baseTx()
	tx.IsPending = true
	recurring := "cleared"
	tx.RecurringType = &recurring

	body := RenderTransaction(tx, testSettings())
	if !strings.Contains(body, "This is a pending transaction") {
		t.Error("pending notice missing")
	}
	if !strings.Contains(body, "recurring") {
		t.Error("recurring marker missing")
	}
}

func TestRenderTransactionTaggingDisabled(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Tagging = false

	body := RenderTransaction(baseTx(), settings)
	if strings.Contains(body, "#Food") || strings.Contains(body, "#Groceries") {
		t.Errorf("hashtags rendered with tagging disabled:\n%s", body)
	}
	if !strings.Contains(body, "Food") || !strings.Contains(body, "Groceries") {
		t.Error("plain names missing with tagging disabled")
	}
}

func TestRenderDateTimePrefersAuthorizedTime(t *testing.T) {
	t.Parallel()

	tx := baseTx()
	tx.PlaidMetadata = map[string]any{"authorized_datetime": "2026-08-14T15:04:05Z"}

	body := RenderTransaction(tx, testSettings())
	if !strings.Contains(body, "Aug 14 at 3:04 PM") {
		t.Errorf("expected formatted authorization time:\n%s", body)
	}

	settings := testSettings()
	settings.ShowDateTime = false
	body = RenderTransaction(tx, settings)
	if !strings.Contains(body, "2026-08-14") || strings.Contains(body, "3:04 PM") {
		t.Errorf("expected bare date when datetime display is off:\n%s", body)
	}
}

func keyboardCallbacks(t *testing.T, txID int64, opts TxKeyboardOptions) []string {
	t.Helper()

	markup := TransactionKeyboard(txID, opts)
	var data []string
	for _, row := range markup.InlineKeyboard {
		if len(row) > buttonsPerRow {
			t.Fatalf("row wider than %d buttons: %d", buttonsPerRow, len(row))
		}
		for _, button := range row {
			data = append(data, button.CallbackData)
		}
	}
	return data
}

func TestTransactionKeyboardVariants(t *testing.T) {
	t.Parallel()

	full := keyboardCallbacks(t, 5, TxKeyboardOptions{
		Categorize: true, Skip: true, MarkReviewed: true, Suggest: true,
	})
	joined := strings.Join(full, " ")
	for _, want := range []string{"categorize_5", "suggestCategory_5", "renamePayee_5", "editNotes_5", "setTags_5", "skip_5", "review_5", "collapse_5"} {
		if !strings.Contains(joined, want) {
			t.Errorf("full keyboard missing %q: %v", want, full)
		}
	}

	reviewed := keyboardCallbacks(t, 5, TxKeyboardOptions{MarkReviewed: true, Reviewed: true})
	if !strings.Contains(strings.Join(reviewed, " "), "unreview_5") {
		t.Errorf("reviewed keyboard must offer undo: %v", reviewed)
	}

	pending := keyboardCallbacks(t, 5, TxKeyboardOptions{Categorize: true})
	joined = strings.Join(pending, " ")
	if strings.Contains(joined, "skip_5") || strings.Contains(joined, "review_5") {
		t.Errorf("pending keyboard must not offer skip or review: %v", pending)
	}

	collapsed := keyboardCallbacks(t, 5, TxKeyboardOptions{Collapsed: true})
	if len(collapsed) != 1 || collapsed[0] != "expand_5" {
		t.Errorf("collapsed keyboard must be a single expand button: %v", collapsed)
	}
}

func TestKeyboardOptionsFor(t *testing.T) {
	t.Parallel()

	tx := baseTx()
	opts := KeyboardOptionsFor(tx, true)
	if !opts.Categorize || !opts.Skip || !opts.MarkReviewed || !opts.Suggest || opts.Reviewed {
		t.Fatalf("unexpected options for plain transaction: %+v", opts)
	}

	recurring := "cleared"
	tx.RecurringType = &recurring
	opts = KeyboardOptionsFor(tx, true)
	if opts.Categorize || opts.Suggest {
		t.Fatalf("recurring transactions are not categorizable: %+v", opts)
	}

	tx = baseTx()
	tx.IsPending = true
	opts = KeyboardOptionsFor(tx, false)
	if opts.Skip || opts.MarkReviewed || opts.Suggest {
		t.Fatalf("unexpected options for pending transaction without AI: %+v", opts)
	}

	tx = baseTx()
	tx.Status = lunchmoney.StatusCleared
	if opts = KeyboardOptionsFor(tx, false); !opts.Reviewed {
		t.Fatal("cleared transaction must render as reviewed")
	}
}

func TestCategoryKeyboard(t *testing.T) {
	t.Parallel()

	groupID := int64(1)
	categories := []lunchmoney.Category{
		{ID: 1, Name: "Food", IsGroup: true, Children: []lunchmoney.Category{{ID: 2, Name: "Groceries", GroupID: &groupID}}},
		{ID: 3, Name: "Misc"},
	}

	markup := CategoryKeyboard(9, categories)
	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, button := range row {
			data = append(data, button.CallbackData)
		}
	}
	joined := strings.Join(data, " ")

	if !strings.Contains(joined, "subcategorize_9_1") {
		t.Errorf("group must descend into subcategories: %v", data)
	}
	if !strings.Contains(joined, "applyCategory_9_3") {
		t.Errorf("ungrouped category must apply directly: %v", data)
	}
	if strings.Contains(joined, "applyCategory_9_2") {
		t.Errorf("subcategory must not appear at the top level: %v", data)
	}
	if !strings.Contains(joined, "cancelCategorization_9") {
		t.Errorf("cancel button missing: %v", data)
	}

	sub := SubcategoryKeyboard(9, 1, categories)
	data = nil
	for _, row := range sub.InlineKeyboard {
		for _, button := range row {
			data = append(data, button.CallbackData)
		}
	}
	if !strings.Contains(strings.Join(data, " "), "applyCategory_9_2") {
		t.Errorf("subcategory keyboard missing child: %v", data)
	}
}
