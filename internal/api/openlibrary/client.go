// Package openlibrary looks up cover images and ISBNs by title.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/drallgood/bookfeed/internal/logger"
	"github.com/drallgood/bookfeed/internal/models"
)

const (
	DefaultBaseURL  = "https://openlibrary.org"
	coverURLPattern = "https://covers.openlibrary.org/b/id/%d-L.jpg"
	userAgent       = "bookfeed/1.0 (+https://github.com/drallgood/bookfeed)"
)

// ErrNotFound means the catalog had no exact match carrying both a cover and an ISBN
var ErrNotFound = errors.New("no exact catalog match")

// searchResponse is the subset of search.json the lookup reads
type searchResponse struct {
	NumFound      int         `json:"numFound"`
	NumFoundExact bool        `json:"numFoundExact"`
	Docs          []searchDoc `json:"docs"`
}

type searchDoc struct {
	Title  string   `json:"title"`
	CoverI *int64   `json:"cover_i"`
	ISBN   []string `json:"isbn"`
}

// Client queries the OpenLibrary search API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// Option customises a Client
type Option func(*Client)

// WithBaseURL points the client at another host, mostly for tests
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient builds a client limited to one request per second by default
func NewClient(log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Get()
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		logger:     log.Component("openlibrary"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchTitle returns the cover and ISBN of the first exact match for title.
func (c *Client) SearchTitle(ctx context.Context, title string) (models.Enrichment, error) {
	if title == "" {
		return models.Enrichment{}, fmt.Errorf("title is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return models.Enrichment{}, err
	}

	u := fmt.Sprintf("%s/search.json?%s", c.baseURL, url.Values{"title": {title}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.Enrichment{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.Enrichment{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	return fromSearch(result)
}

func fromSearch(result searchResponse) (models.Enrichment, error) {
	if !result.NumFoundExact || result.NumFound <= 0 || len(result.Docs) == 0 {
		return models.Enrichment{}, ErrNotFound
	}
	doc := result.Docs[0]
	if doc.CoverI == nil || len(doc.ISBN) == 0 {
		return models.Enrichment{}, ErrNotFound
	}
	return models.Enrichment{
		ImageURL: fmt.Sprintf(coverURLPattern, *doc.CoverI),
		ISBN:     doc.ISBN[0],
	}, nil
}

// Enrich is SearchTitle with every failure mapped to an empty enrichment.
func (c *Client) Enrich(ctx context.Context, title string) models.Enrichment {
	e, err := c.SearchTitle(ctx, title)
	if err != nil {
		fields := map[string]interface{}{"title": title}
		if !errors.Is(err, ErrNotFound) {
			fields["error"] = err.Error()
		}
		c.logger.Debug("No enrichment found", fields)
		return models.Enrichment{}
	}
	c.logger.Debug("Enriched title", map[string]interface{}{
		"title": title,
		"isbn":  e.ISBN,
	})
	return e
}
