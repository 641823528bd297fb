package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/edgard/lanchebot/internal/lunchmoney"
)

func tx(id int64, amount, date, payee string) lunchmoney.Transaction {
	return lunchmoney.Transaction{
		ID:     id,
		Amount: decimal.RequireFromString(amount),
		Date:   date,
		Payee:  payee,
	}
}

func TestFindRelated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject lunchmoney.Transaction
		batch   []lunchmoney.Transaction
		wantID  int64
	}{
		{
			name:    "negated amount and same date",
			subject: tx(1, "120.50", "2026-08-01", "CC Payment"),
			batch: []lunchmoney.Transaction{
				tx(1, "120.50", "2026-08-01", "CC Payment"),
				tx(2, "-120.50", "2026-08-01", "Payment Received"),
			},
			wantID: 2,
		},
		{
			name:    "negated amount and same payee, different date",
			subject: tx(1, "120.50", "2026-08-01", "CC Payment"),
			batch: []lunchmoney.Transaction{
				tx(2, "-120.50", "2026-08-03", "CC Payment"),
			},
			wantID: 2,
		},
		{
			name:    "negated amount but nothing else in common",
			subject: tx(1, "120.50", "2026-08-01", "CC Payment"),
			batch: []lunchmoney.Transaction{
				tx(2, "-120.50", "2026-08-03", "Groceries"),
			},
			wantID: 0,
		},
		{
			name:    "same amount sign does not match",
			subject: tx(1, "120.50", "2026-08-01", "CC Payment"),
			batch: []lunchmoney.Transaction{
				tx(2, "120.50", "2026-08-01", "CC Payment"),
			},
			wantID: 0,
		},
		{
			name:    "never matches itself",
			subject: tx(1, "0.00", "2026-08-01", "Zero"),
			batch: []lunchmoney.Transaction{
				tx(1, "0.00", "2026-08-01", "Zero"),
			},
			wantID: 0,
		},
		{
			name:    "first match wins",
			subject: tx(1, "50.00", "2026-08-01", "Transfer"),
			batch: []lunchmoney.Transaction{
				tx(2, "-50.00", "2026-08-01", "Transfer"),
				tx(3, "-50.00", "2026-08-01", "Transfer"),
			},
			wantID: 2,
		},
		{
			name:    "exact decimal comparison, not string equality",
			subject: tx(1, "10.5", "2026-08-01", "Split"),
			batch: []lunchmoney.Transaction{
				tx(2, "-10.50", "2026-08-01", "Split"),
			},
			wantID: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := FindRelated(&tc.subject, tc.batch)
			switch {
			case tc.wantID == 0 && got != nil:
				t.Fatalf("expected no related transaction, got id %d", got.ID)
			case tc.wantID != 0 && got == nil:
				t.Fatalf("expected related transaction %d, got none", tc.wantID)
			case tc.wantID != 0 && got.ID != tc.wantID:
				t.Fatalf("expected related transaction %d, got %d", tc.wantID, got.ID)
			}
		})
	}
}
