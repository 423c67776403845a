// Package nyt reads the New York Times Books bestseller lists.
package nyt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/drallgood/bookfeed/internal/logger"
)

const DefaultBaseURL = "https://api.nytimes.com"

// DefaultLists are the list names fetched when none are configured
var DefaultLists = []string{
	"combined-print-and-e-book-nonfiction",
	"combined-print-and-e-book-fiction",
	"hardcover-graphic-books",
	"combined-print-fiction",
	"celebrities",
}

// Entry is one book on a bestseller list
type Entry struct {
	Title            string `json:"title"`
	Author           string `json:"author"`
	BookImage        string `json:"book_image"`
	AmazonProductURL string `json:"amazon_product_url"`
	WeeksOnList      int    `json:"weeks_on_list"`
	Description      string `json:"description"`
	PrimaryISBN10    string `json:"primary_isbn10"`
	PrimaryISBN13    string `json:"primary_isbn13"`
	Rank             int    `json:"rank"`
}

type listResponse struct {
	Status  string `json:"status"`
	Results struct {
		ListName string  `json:"list_name"`
		Books    []Entry `json:"books"`
	} `json:"results"`
}

// Client talks to the Books API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a Books API client. An empty baseURL selects the public API.
func NewClient(baseURL, apiKey string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logger.Get()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.Component("nyt"),
	}
}

// List fetches the current edition of a single list
func (c *Client) List(ctx context.Context, name string) ([]Entry, error) {
	if name == "" {
		return nil, fmt.Errorf("list name is required")
	}
	u := fmt.Sprintf("%s/svc/books/v3/lists/current/%s.json?%s",
		c.baseURL, url.PathEscape(name), url.Values{"api-key": {c.apiKey}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the API key, so drop it from the error
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("request for list %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Unexpected status code", map[string]interface{}{
			"list":   name,
			"status": resp.StatusCode,
		})
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result listResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Results.Books, nil
}

// Bestsellers concatenates the given lists in order. Lists that fail are
// logged and skipped; an error is returned only when every list failed.
func (c *Client) Bestsellers(ctx context.Context, lists []string) ([]Entry, error) {
	if len(lists) == 0 {
		lists = DefaultLists
	}

	var all []Entry
	var lastErr error
	failed := 0
	for _, name := range lists {
		entries, err := c.List(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			failed++
			lastErr = err
			c.logger.Warn("Failed to fetch bestseller list", map[string]interface{}{
				"list":  name,
				"error": err.Error(),
			})
			continue
		}
		c.logger.Debug("Fetched bestseller list", map[string]interface{}{
			"list":  name,
			"count": len(entries),
		})
		all = append(all, entries...)
	}

	if failed == len(lists) {
		return nil, fmt.Errorf("all %d bestseller lists failed: %w", failed, lastErr)
	}
	c.logger.Info("Fetched bestsellers", map[string]interface{}{
		"lists": len(lists),
		"books": len(all),
	})
	return all, nil
}
