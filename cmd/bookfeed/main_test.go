package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/drallgood/bookfeed/internal/config"
	"github.com/drallgood/bookfeed/internal/logger"
)

// fakeBackend stands in for every remote API and records album sizes
type fakeBackend struct {
	mu       sync.Mutex
	albums   []int
	messages []string
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/svc/books/v3/lists/current/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nyt-key", r.URL.Query().Get("api-key"))
		_, _ = w.Write([]byte(`{"status":"OK","results":{"books":[
			{"title":"JAMES","author":"Percival Everett","book_image":"https://img/james.jpg","primary_isbn10":"0385550367"},
			{"title":"INTERMEZZO","author":"Sally Rooney","book_image":"https://img/intermezzo.jpg","primary_isbn10":"0374602638"}
		]}}`))
	})
	mux.HandleFunc("/comments/thread1.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"thread1"}}]}},
			{"kind":"Listing","data":{"children":[
				{"kind":"t1","data":{"body":"Finished: Circe by Madeline Miller","replies":""}},
				{"kind":"t1","data":{"body":"no books this week","replies":""}}
			]}}
		]`))
	})
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "circe", r.URL.Query().Get("title"))
		_, _ = w.Write([]byte(`{"numFound":1,"numFoundExact":true,"docs":[{"cover_i":42,"isbn":["0316556343"]}]}`))
	})
	mux.HandleFunc("/botTOKEN/sendMediaGroup", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		var media []map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("media")), &media))
		f.mu.Lock()
		f.albums = append(f.albums, len(media))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	})
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.messages = append(f.messages, r.PostForm.Get("text"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})
	return mux
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Telegram.Token = "TOKEN"
	cfg.Telegram.ChatID = "-1"
	cfg.Telegram.BaseURL = baseURL
	cfg.NYT.APIKey = "nyt-key"
	cfg.NYT.BaseURL = baseURL
	cfg.NYT.Lists = []string{"hardcover-fiction"}
	cfg.Reddit.BaseURL = baseURL
	cfg.Reddit.ThreadID = "thread1"
	cfg.OpenLibrary.BaseURL = baseURL
	cfg.OpenLibrary.RateLimit = 0
	cfg.Delivery.Mode = "link"
	cfg.Delivery.PaceDelay = -1
	return cfg
}

func TestJobsEndToEnd(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	run := jobFunc(testConfig(srv.URL), logger.Nop())
	ctx := context.Background()

	require.NoError(t, run(ctx, config.JobBestsellers))
	require.NoError(t, run(ctx, config.JobThread))
	require.NoError(t, run(ctx, config.JobDigest))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []int{2, 1}, backend.albums)
	require.Len(t, backend.messages, 1)
	assert.Contains(t, backend.messages[0], "Percival Everett\nJAMES")
}

func TestJobValidation(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.NYT.APIKey = ""
	run := jobFunc(cfg, logger.Nop())

	err := run(context.Background(), config.JobBestsellers)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	assert.Error(t, run(context.Background(), "poetry"))
}

func TestBuildServiceRejectsBadPolicy(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Delivery.FailurePolicy = "retry-forever"
	_, err := buildService(cfg, logger.Nop())
	assert.Error(t, err)

	cfg = testConfig("http://127.0.0.1:1")
	cfg.Delivery.Mode = "fax"
	_, err = buildService(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestDryRunSendsNothing(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.App.DryRun = true
	require.NoError(t, jobFunc(cfg, logger.Nop())(context.Background(), config.JobBestsellers))
	assert.Empty(t, backend.albums)
}

func TestVersionCommand(t *testing.T) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	require.NoError(t, app.Run([]string{"bookfeed", "version"}))
	assert.Contains(t, out.String(), "bookfeed version dev")
}

func TestRunRequiresJobName(t *testing.T) {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run([]string{"bookfeed", "run"})
	assert.Error(t, err)
}
