// Package reddit reads discussion threads from a subreddit.
package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/drallgood/bookfeed/internal/logger"
)

const (
	PublicBaseURL   = "https://www.reddit.com"
	OAuthBaseURL    = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
)

// Config selects anonymous or application-only access
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	// BaseURL overrides the API host
	BaseURL string
	// TokenURL overrides the OAuth token endpoint
	TokenURL string
	Timeout  time.Duration
}

// Client fetches posts and comments
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient builds a client. With a client ID and secret it authenticates
// through the client credentials grant against the OAuth host.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Get()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bookfeed/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &userAgentTransport{agent: cfg.UserAgent, next: http.DefaultTransport},
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: base,
		logger:     log.Component("reddit"),
	}

	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.httpClient = cc.Client(ctx)
		c.httpClient.Timeout = cfg.Timeout
		if c.baseURL == "" {
			c.baseURL = OAuthBaseURL
		}
	}
	if c.baseURL == "" {
		c.baseURL = PublicBaseURL
	}
	c.baseURL = strings.TrimSuffix(c.baseURL, "/")
	return c
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(r)
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

// FindThread returns the ID of the newest post in subreddit whose title
// contains title, compared case-insensitively.
func (c *Client) FindThread(ctx context.Context, subreddit, title string) (string, error) {
	if subreddit == "" || title == "" {
		return "", fmt.Errorf("subreddit and title are required")
	}
	q := url.Values{
		"q":           {fmt.Sprintf("title:%q", title)},
		"restrict_sr": {"1"},
		"sort":        {"new"},
		"limit":       {"25"},
	}
	var result listing
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/search.json?%s", url.PathEscape(subreddit), q.Encode()), &result); err != nil {
		return "", err
	}

	want := strings.ToLower(title)
	var best *thingData
	for i := range result.Data.Children {
		post := &result.Data.Children[i].Data
		if !strings.Contains(strings.ToLower(post.Title), want) {
			continue
		}
		if best == nil || post.CreatedUTC > best.CreatedUTC {
			best = post
		}
	}
	if best == nil {
		return "", fmt.Errorf("no thread titled %q in r/%s", title, subreddit)
	}
	c.logger.Info("Found thread", map[string]interface{}{
		"thread_id": best.ID,
		"title":     best.Title,
	})
	return best.ID, nil
}

// Comments returns comment bodies of a thread, newest first. The tree is
// flattened breadth-first; deleted and removed comments are skipped.
func (c *Client) Comments(ctx context.Context, threadID string, limit int) ([]string, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}
	q := url.Values{"sort": {"new"}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	var listings []listing
	if err := c.getJSON(ctx, fmt.Sprintf("/comments/%s.json?%s", url.PathEscape(threadID), q.Encode()), &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("unexpected thread payload: %d listings", len(listings))
	}

	bodies := flatten(listings[1].Data.Children)
	c.logger.Debug("Fetched comments", map[string]interface{}{
		"thread_id": threadID,
		"count":     len(bodies),
	})
	return bodies, nil
}

func flatten(roots []thing) []string {
	var bodies []string
	queue := roots
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if t.Kind != "t1" {
			continue
		}
		switch t.Data.Body {
		case "", "[deleted]", "[removed]":
		default:
			bodies = append(bodies, t.Data.Body)
		}
		queue = append(queue, replies(t.Data.Replies)...)
	}
	return bodies
}

// replies decodes the replies field, which is "" when a comment has none
func replies(raw json.RawMessage) []thing {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var l listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	return l.Data.Children
}

func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Unexpected status code", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
		})
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
