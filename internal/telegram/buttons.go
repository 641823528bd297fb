package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/lunchmoney"
)

// Callback-data prefixes for transaction buttons. The payload is the
// transaction id, plus the category id for the categorization flow.
const (
	CallbackCategorize    = "categorize"
	CallbackSubcategorize = "subcategorize"
	CallbackApplyCategory = "applyCategory"
	CallbackCancelCat     = "cancelCategorization"
	CallbackSuggest       = "suggestCategory"
	CallbackReview        = "review"
	CallbackUnreview      = "unreview"
	CallbackSkip          = "skip"
	CallbackCollapse      = "collapse"
	CallbackExpand        = "expand"
	CallbackRenamePayee   = "renamePayee"
	CallbackEditNotes     = "editNotes"
	CallbackSetTags       = "setTags"
)

// buttonsPerRow is the keyboard geometry for transaction and category
// keyboards.
const buttonsPerRow = 2

// Keyboard accumulates buttons and lays them out in fixed-width rows.
type Keyboard struct {
	buttons []models.InlineKeyboardButton
}

// Add appends a button.
func (k *Keyboard) Add(text, callbackData string) {
	k.buttons = append(k.buttons, models.InlineKeyboardButton{Text: text, CallbackData: callbackData})
}

// Build lays the buttons out with at most columns per row.
func (k *Keyboard) Build(columns int) *models.InlineKeyboardMarkup {
	if columns <= 0 {
		columns = buttonsPerRow
	}
	var rows [][]models.InlineKeyboardButton
	for i := 0; i < len(k.buttons); i += columns {
		end := i + columns
		if end > len(k.buttons) {
			end = len(k.buttons)
		}
		rows = append(rows, k.buttons[i:end])
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// TxKeyboardOptions selects which buttons a transaction message carries.
type TxKeyboardOptions struct {
	// Categorize is false for recurring transactions, which are not
	// categorizable.
	Categorize bool
	// Skip and MarkReviewed are false for pending transactions.
	Skip         bool
	MarkReviewed bool
	// Reviewed flips the review button to its undo form.
	Reviewed bool
	// Collapsed renders only the expand button.
	Collapsed bool
	// Suggest adds the AI suggestion button.
	Suggest bool
}

// KeyboardOptionsFor derives the button set from the transaction's state.
func KeyboardOptionsFor(tx *lunchmoney.Transaction, aiEnabled bool) TxKeyboardOptions {
	opts := TxKeyboardOptions{
		Categorize:   !tx.IsRecurring(),
		Skip:         !tx.IsPending,
		MarkReviewed: !tx.IsPending,
		Reviewed:     tx.Status == lunchmoney.StatusCleared,
		Suggest:      aiEnabled && !tx.IsRecurring(),
	}
	return opts
}

// TransactionKeyboard builds the inline keyboard for a transaction message.
func TransactionKeyboard(txID int64, opts TxKeyboardOptions) *models.InlineKeyboardMarkup {
	kbd := &Keyboard{}

	if opts.Collapsed {
		kbd.Add("Show options", fmt.Sprintf("%s_%d", CallbackExpand, txID))
		return kbd.Build(1)
	}

	if opts.Categorize {
		kbd.Add("Categorize", fmt.Sprintf("%s_%d", CallbackCategorize, txID))
	}
	if opts.Suggest {
		kbd.Add("Suggest category 🤖", fmt.Sprintf("%s_%d", CallbackSuggest, txID))
	}
	kbd.Add("Rename payee", fmt.Sprintf("%s_%d", CallbackRenamePayee, txID))
	kbd.Add("Edit notes", fmt.Sprintf("%s_%d", CallbackEditNotes, txID))
	kbd.Add("Set tags", fmt.Sprintf("%s_%d", CallbackSetTags, txID))
	if opts.Skip {
		kbd.Add("Skip", fmt.Sprintf("%s_%d", CallbackSkip, txID))
	}
	if opts.MarkReviewed {
		if opts.Reviewed {
			kbd.Add("Mark as unreviewed", fmt.Sprintf("%s_%d", CallbackUnreview, txID))
		} else {
			kbd.Add("Mark as reviewed", fmt.Sprintf("%s_%d", CallbackReview, txID))
		}
	}
	kbd.Add("Collapse", fmt.Sprintf("%s_%d", CallbackCollapse, txID))

	return kbd.Build(buttonsPerRow)
}

// CategoryKeyboard builds the group-selection keyboard of the categorization
// flow. Groups lead to their subcategories; ungrouped categories apply
// directly.
func CategoryKeyboard(txID int64, categories []lunchmoney.Category) *models.InlineKeyboardMarkup {
	kbd := &Keyboard{}
	for _, category := range categories {
		if category.GroupID != nil {
			continue
		}
		if len(category.Children) > 0 {
			kbd.Add(category.Name, fmt.Sprintf("%s_%d_%d", CallbackSubcategorize, txID, category.ID))
		} else {
			kbd.Add(category.Name, fmt.Sprintf("%s_%d_%d", CallbackApplyCategory, txID, category.ID))
		}
	}
	kbd.Add("Cancel", fmt.Sprintf("%s_%d", CallbackCancelCat, txID))
	return kbd.Build(buttonsPerRow)
}

// SubcategoryKeyboard builds the subcategory-selection keyboard for one group.
func SubcategoryKeyboard(txID, groupID int64, categories []lunchmoney.Category) *models.InlineKeyboardMarkup {
	kbd := &Keyboard{}
	for _, category := range categories {
		if category.ID != groupID {
			continue
		}
		for _, sub := range category.Children {
			kbd.Add(sub.Name, fmt.Sprintf("%s_%d_%d", CallbackApplyCategory, txID, sub.ID))
		}
	}
	kbd.Add("Cancel", fmt.Sprintf("%s_%d", CallbackCancelCat, txID))
	return kbd.Build(buttonsPerRow)
}
