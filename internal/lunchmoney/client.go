// Package lunchmoney is a thin client for the Lunch Money v1 REST API,
// covering the endpoints the bot needs: transactions, categories, and the
// token-owner lookup.
package lunchmoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://dev.lunchmoney.app/v1"
	defaultTimeout = 30 * time.Second

	dateLayout = "2006-01-02"
)

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lunchmoney api error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to the Lunch Money API with a single bearer token. One client
// per registered chat.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "lunchmoney")
	}
}

// NewClient creates a client for the given API token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("component", "lunchmoney"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one API request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "Error closing response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.DebugContext(ctx, "API request completed",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Message: extractErrorMessage(respBody)}
	}

	// The API reports some failures inside 200 responses.
	var probe struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(respBody, &probe); err == nil && probe.Error != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: extractErrorMessage(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response for %s %s: %w", method, path, err)
		}
	}
	return nil
}

// extractErrorMessage pulls a human-readable message out of the API's error
// payload, which is sometimes a string and sometimes a list.
func extractErrorMessage(body []byte) string {
	var payload struct {
		Error  json.RawMessage `json:"error"`
		Errors []string        `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Errors) > 0 {
			return payload.Errors[0]
		}
		if len(payload.Error) > 0 {
			var msg string
			if json.Unmarshal(payload.Error, &msg) == nil {
				return msg
			}
			var msgs []string
			if json.Unmarshal(payload.Error, &msgs) == nil && len(msgs) > 0 {
				return msgs[0]
			}
			return string(payload.Error)
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// GetUser retrieves the token owner. Used to validate a token at registration.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListTransactions retrieves transactions matching the filter.
func (c *Client) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := url.Values{}
	if !filter.StartDate.IsZero() {
		query.Set("start_date", filter.StartDate.Format(dateLayout))
	}
	if !filter.EndDate.IsZero() {
		query.Set("end_date", filter.EndDate.Format(dateLayout))
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Pending != nil {
		query.Set("pending", strconv.FormatBool(*filter.Pending))
	}

	var payload struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/transactions", query, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return payload.Transactions, nil
}

// GetTransaction retrieves a single transaction by id.
func (c *Client) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/transactions/%d", id), nil, nil, &tx); err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return &tx, nil
}

// UpdateTransaction applies a partial update to a transaction.
func (c *Client) UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) error {
	body := struct {
		Transaction TransactionUpdate `json:"transaction"`
	}{Transaction: update}

	var result struct {
		Updated bool `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/transactions/%d", id), nil, body, &result); err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", id, err)
	}
	if !result.Updated {
		return fmt.Errorf("transaction %d was not updated", id)
	}
	return nil
}

// GetCategories retrieves the category tree. Group nodes carry their
// subcategories in Children.
func (c *Client) GetCategories(ctx context.Context) ([]Category, error) {
	var payload struct {
		Categories []Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return payload.Categories, nil
}
