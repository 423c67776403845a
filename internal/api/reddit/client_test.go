package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookfeed/internal/logger"
)

const threadPayload = `[
  {"kind": "Listing", "data": {"children": [{"kind": "t3", "data": {"id": "abc123", "title": "What We're Reading"}}]}},
  {"kind": "Listing", "data": {"children": [
    {"kind": "t1", "data": {"id": "c3", "body": "newest top", "replies": {"kind": "Listing", "data": {"children": [
      {"kind": "t1", "data": {"id": "c3a", "body": "reply to newest", "replies": ""}}
    ]}}}},
    {"kind": "t1", "data": {"id": "c2", "body": "[deleted]", "replies": ""}},
    {"kind": "t1", "data": {"id": "c1", "body": "oldest top", "replies": ""}},
    {"kind": "more", "data": {"id": "m1"}}
  ]}}
]`

func TestComments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments/abc123.json", r.URL.Path)
		assert.Equal(t, "new", r.URL.Query().Get("sort"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "bookfeed-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(threadPayload))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, UserAgent: "bookfeed-test"}, logger.Nop())
	bodies, err := c.Comments(context.Background(), "abc123", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest top", "oldest top", "reply to newest"}, bodies)
}

func TestCommentsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/comments/short.json" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	c := NewClient(Config{BaseURL: server.URL}, logger.Nop())

	_, err := c.Comments(context.Background(), "short", 10)
	assert.Error(t, err)
	_, err = c.Comments(context.Background(), "forbidden", 10)
	assert.Error(t, err)
	_, err = c.Comments(context.Background(), "", 10)
	assert.Error(t, err)
}

func TestFindThread(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/books/search.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("restrict_sr"))
		_, _ = w.Write([]byte(`{"kind": "Listing", "data": {"children": [
			{"kind": "t3", "data": {"id": "old", "title": "What We're Reading - March", "created_utc": 100}},
			{"kind": "t3", "data": {"id": "other", "title": "Weekly recommendations", "created_utc": 300}},
			{"kind": "t3", "data": {"id": "new", "title": "WHAT WE'RE READING - April", "created_utc": 200}}
		]}}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL}, logger.Nop())
	id, err := c.FindThread(context.Background(), "books", "What We're Reading")
	require.NoError(t, err)
	assert.Equal(t, "new", id)

	_, err = c.FindThread(context.Background(), "books", "Nonexistent title")
	assert.Error(t, err)
}

func TestClientCredentials(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "bookfeed-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok", "token_type": "bearer", "expires_in": 3600}`))
	})
	mux.HandleFunc("/comments/abc123.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(threadPayload))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "bookfeed-test",
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/api/v1/access_token",
	}, logger.Nop())

	_, err := c.Comments(context.Background(), "abc123", 0)
	require.NoError(t, err)
	_, err = c.Comments(context.Background(), "abc123", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
}

func TestNewClientDefaults(t *testing.T) {
	assert.Equal(t, PublicBaseURL, NewClient(Config{}, logger.Nop()).baseURL)
	assert.Equal(t, OAuthBaseURL, NewClient(Config{ClientID: "a", ClientSecret: "b"}, logger.Nop()).baseURL)
}
