package reconciler

import (
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

// FindRelated scans a fetched batch for a transaction that looks like the
// counterpart of tx, such as a credit-card payment showing up on both the
// card and the checking account. A candidate matches when its amount is the
// exact negation of tx's and it shares the date or the payee. The first match
// wins; tx itself is never a candidate. False positives are acceptable since
// the relation only threads the chat message as a reply.
func FindRelated(tx *lunchmoney.Transaction, batch []lunchmoney.Transaction) *lunchmoney.Transaction {
	negated := tx.Amount.Neg()
	for i := range batch {
		candidate := &batch[i]
		if candidate.ID == tx.ID {
			continue
		}
		if !candidate.Amount.Equal(negated) {
			continue
		}
		if candidate.Date == tx.Date || candidate.Payee == tx.Payee {
			return candidate
		}
	}
	return nil
}
