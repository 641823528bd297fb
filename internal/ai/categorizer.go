// Package ai implements Gemini-backed category suggestion for transactions.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"google.golang.org/genai"

	"github.com/edgard/lanchebot/internal/config"
	"github.com/edgard/lanchebot/internal/lunchmoney"
)

// ErrNoSuggestion is returned when the model declines to pick a category or
// picks one that does not exist.
var ErrNoSuggestion = errors.New("no category suggestion")

// Categorizer suggests a category for a transaction.
type Categorizer interface {
	SuggestCategory(ctx context.Context, tx *lunchmoney.Transaction, categories []lunchmoney.Category) (*lunchmoney.Category, error)
}

type sdkCategorizer struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
}

// NewCategorizer creates a Gemini-backed Categorizer.
func NewCategorizer(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Categorizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
	}

	logger := log.With("component", "ai_categorizer")
	logger.Info("Gemini categorizer initialized successfully", "model", cfg.ModelName)
	return &sdkCategorizer{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		modelName:     cfg.ModelName,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

// SuggestCategory asks the model to pick a category id for the transaction
// and resolves it against the category tree.
func (c *sdkCategorizer) SuggestCategory(ctx context.Context, tx *lunchmoney.Transaction, categories []lunchmoney.Category) (*lunchmoney.Category, error) {
	prompt := buildPrompt(tx, categories)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, contents)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini category suggestion failed", "tx_id", tx.ID, "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" || strings.EqualFold(text, "null") {
		return nil, ErrNoSuggestion
	}

	categoryID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		c.log.WarnContext(ctx, "Model response is not a category id", "tx_id", tx.ID, "response", text)
		return nil, fmt.Errorf("%w: unparseable response %q", ErrNoSuggestion, text)
	}

	category := findCategory(categories, categoryID)
	if category == nil {
		c.log.WarnContext(ctx, "Model picked an unknown category", "tx_id", tx.ID, "category_id", categoryID)
		return nil, fmt.Errorf("%w: unknown category %d", ErrNoSuggestion, categoryID)
	}

	c.log.DebugContext(ctx, "Category suggested", "tx_id", tx.ID, "category_id", category.ID, "category", category.Name)
	return category, nil
}

func (c *sdkCategorizer) generateContentWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError",
					"delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// buildPrompt assembles the single-turn prompt: the transaction's details and
// the flattened category list, with the instruction to answer with a bare id.
func buildPrompt(tx *lunchmoney.Transaction, categories []lunchmoney.Category) string {
	var sb strings.Builder
	sb.WriteString("This is the transaction information:\n")
	sb.WriteString(fmt.Sprintf("Payee: %s\n", tx.Payee))
	sb.WriteString(fmt.Sprintf("Amount: %s %s\n", tx.Amount.StringFixed(2), tx.Currency))
	if tx.PlaidMetadata != nil {
		if merchant, ok := tx.PlaidMetadata["merchant_name"].(string); ok && merchant != "" {
			sb.WriteString(fmt.Sprintf("merchant_name: %s\n", merchant))
		}
		if name, ok := tx.PlaidMetadata["name"].(string); ok && name != "" {
			sb.WriteString(fmt.Sprintf("name: %s\n", name))
		}
	}
	if tx.Notes != nil && *tx.Notes != "" {
		sb.WriteString(fmt.Sprintf("notes: %s\n", *tx.Notes))
	}

	sb.WriteString("\nWhat of the following categories would you suggest for this transaction?\n\n")
	sb.WriteString("If the Payee is Amazon, then choose the Amazon category ONLY if the notes of the transaction can't be categorized as a specific non-Amazon category.\n\n")
	sb.WriteString("Respond with the ID of the category, and only the ID.\n\n")
	sb.WriteString("These are the available categories (using the format `ID:Category Name`):\n\n")
	sb.WriteString(flattenCategories(categories))
	sb.WriteString("\n\nRemember to ONLY RESPOND with the ID, and nothing else.\n")
	sb.WriteString("DO NOT EXPLAIN YOURSELF. JUST RESPOND WITH THE ID or null.\n")
	return sb.String()
}

// flattenCategories renders the two-level tree as one line per assignable
// category: "id:name (group)" for subcategories, "id:name" for ungrouped ones.
func flattenCategories(categories []lunchmoney.Category) string {
	var lines []string
	for _, category := range categories {
		switch {
		case len(category.Children) > 0:
			for _, sub := range category.Children {
				lines = append(lines, fmt.Sprintf("%d:%s (%s)", sub.ID, stripEmojis(sub.Name), stripEmojis(category.Name)))
			}
		case category.GroupID == nil && !category.IsGroup:
			lines = append(lines, fmt.Sprintf("%d:%s", category.ID, stripEmojis(category.Name)))
		}
	}
	return strings.Join(lines, "\n")
}

// findCategory looks up an assignable category by id, descending into groups.
func findCategory(categories []lunchmoney.Category, id int64) *lunchmoney.Category {
	for i := range categories {
		if categories[i].ID == id {
			return &categories[i]
		}
		for j := range categories[i].Children {
			if categories[i].Children[j].ID == id {
				return &categories[i].Children[j]
			}
		}
	}
	return nil
}

// stripEmojis drops symbol runes so category names stay parseable in the
// prompt.
func stripEmojis(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsSymbol(r) || unicode.In(r, unicode.So, unicode.Sk) {
			return -1
		}
		return r
	}, s))
}
