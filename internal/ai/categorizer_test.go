package ai

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/edgard/lanchebot/internal/lunchmoney"
)

func testCategories() []lunchmoney.Category {
	groupID := int64(1)
	return []lunchmoney.Category{
		{ID: 1, Name: "Food 🍔", IsGroup: true, Children: []lunchmoney.Category{
			{ID: 2, Name: "Groceries", GroupID: &groupID},
			{ID: 3, Name: "Restaurants", GroupID: &groupID},
		}},
		{ID: 4, Name: "Misc"},
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	notes := "weekly shop"
	tx := &lunchmoney.Transaction{
		ID:       1,
		Payee:    "Corner Store",
		Amount:   decimal.RequireFromString("12.34"),
		Currency: "usd",
		Notes:    &notes,
		PlaidMetadata: map[string]any{
			"merchant_name": "CORNER STORE LLC",
			"name":          "POS PURCHASE CORNER",
		},
	}

	prompt := buildPrompt(tx, testCategories())

	for _, want := range []string{
		"Payee: Corner Store",
		"Amount: 12.34 usd",
		"merchant_name: CORNER STORE LLC",
		"name: POS PURCHASE CORNER",
		"notes: weekly shop",
		"2:Groceries (Food)",
		"3:Restaurants (Food)",
		"4:Misc",
		"JUST RESPOND WITH THE ID or null",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// Group nodes are not assignable and must not appear as options.
	if strings.Contains(prompt, "1:Food") {
		t.Error("group node leaked into the option list")
	}
}

func TestFlattenCategoriesStripsEmojis(t *testing.T) {
	t.Parallel()

	flat := flattenCategories(testCategories())
	if strings.Contains(flat, "🍔") {
		t.Errorf("emoji survived flattening: %s", flat)
	}
	if !strings.Contains(flat, "(Food)") {
		t.Errorf("group annotation missing: %s", flat)
	}
}

func TestFindCategory(t *testing.T) {
	t.Parallel()

	categories := testCategories()

	if got := findCategory(categories, 3); got == nil || got.Name != "Restaurants" {
		t.Fatalf("expected to find subcategory 3, got %+v", got)
	}
	if got := findCategory(categories, 4); got == nil || got.Name != "Misc" {
		t.Fatalf("expected to find top-level category 4, got %+v", got)
	}
	if got := findCategory(categories, 99); got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestStripEmojis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Food 🍔", "Food"},
		{"Plain", "Plain"},
		{"  padded  ", "padded"},
	}

	for _, tc := range tests {
		if got := stripEmojis(tc.in); got != tc.want {
			t.Errorf("stripEmojis(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
