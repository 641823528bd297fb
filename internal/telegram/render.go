package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

const displayTimeLayout = "Mon, Jan 02 at 3:04 PM"

// MakeTag turns a free-form name into a Telegram hashtag: title case, no
// spaces or dots.
func MakeTag(s string) string {
	cleaned := strings.NewReplacer(" ", "", ".", "").Replace(strings.Title(s)) //nolint:staticcheck // ASCII category names only
	return "#" + cleaned
}

// tagOrPlain renders a name as a hashtag when tagging is enabled, or as-is
// otherwise.
func tagOrPlain(s string, tagging bool) string {
	if tagging {
		return MakeTag(s)
	}
	return s
}

// accountLabel prefixes the account name with a marker for its kind.
func accountLabel(acct lunchmoney.Account) string {
	name := acct.Name
	if name == "" {
		name = "N/A"
	}

	switch acct.Kind {
	case lunchmoney.AccountDepository:
		return "🏦 " + name
	case lunchmoney.AccountCredit:
		return "💳 " + name
	case lunchmoney.AccountInvestment:
		return "📈 " + name
	case lunchmoney.AccountCrypto:
		return "🪙 " + name
	case lunchmoney.AccountCash:
		return "💵 " + name
	default:
		return name
	}
}

// RenderTransaction renders a transaction as the Markdown body of a chat
// message. Credits are shown with an explicit plus marker and the absolute
// value, since upstream represents them as negative amounts.
func RenderTransaction(tx *lunchmoney.Transaction, settings *database.Settings) string {
	categoryGroup := tx.CategoryGroupName
	if categoryGroup == "" {
		categoryGroup = "No Group"
	}
	category := tx.CategoryName
	if category == "" {
		category = "Uncategorized"
	}

	recurring := ""
	if tx.IsRecurring() {
		recurring = " (recurring 🔄)"
	}

	explicitSign := ""
	if tx.IsCredit() {
		explicitSign = "➕"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s%s\n\n", tagOrPlain(categoryGroup, settings.Tagging), recurring))
	sb.WriteString(fmt.Sprintf("*Payee*: %s\n", tx.Payee))
	sb.WriteString(fmt.Sprintf("*Amount*: `%s%s``%s`\n", explicitSign, tx.Amount.Abs().StringFixed(2), tx.Currency))
	sb.WriteString(fmt.Sprintf("*Date/Time*: %s\n", renderDateTime(tx, settings)))
	sb.WriteString(fmt.Sprintf("*Category*: %s\n", tagOrPlain(category, settings.Tagging)))

	acct := tx.Account()
	if settings.Tagging && acct.Name != "" {
		sb.WriteString(fmt.Sprintf("*Account*: %s\n", MakeTag(acct.Name)))
	} else {
		sb.WriteString(fmt.Sprintf("*Account*: %s\n", accountLabel(acct)))
	}

	if tx.Notes != nil && *tx.Notes != "" {
		sb.WriteString(fmt.Sprintf("*Notes*: %s\n", *tx.Notes))
	}
	if len(tx.Tags) > 0 {
		tags := make([]string, 0, len(tx.Tags))
		for _, tag := range tx.Tags {
			tags = append(tags, "#"+tag.Name)
		}
		sb.WriteString(fmt.Sprintf("*Tags*: %s\n", strings.Join(tags, ", ")))
	}
	if tx.IsPending {
		sb.WriteString("\n_This is a pending transaction_\n")
	}

	return sb.String()
}

// renderDateTime prefers the bank feed's authorization time in the chat's
// timezone; the bare posting date is the fallback, and the only form shown
// when the chat disabled full times.
func renderDateTime(tx *lunchmoney.Transaction, settings *database.Settings) string {
	if !settings.ShowDateTime {
		return tx.Date
	}

	at, ok := tx.AuthorizedAt()
	if !ok {
		return tx.Date
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return at.In(loc).Format(displayTimeLayout)
}
