package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookfeed/internal/logger"
)

func TestSendMediaGroupByURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMediaGroup", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "-100", r.PostForm.Get("chat_id"))

		var media []inputMedia
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("media")), &media))
		require.Len(t, media, 2)
		assert.Equal(t, inputMedia{Type: "photo", Media: "https://img/1.jpg", Caption: "one"}, media[0])
		assert.Equal(t, "https://img/2.jpg", media[1].Media)

		_, _ = w.Write([]byte(`{"ok": true, "result": []}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "TOKEN", 0, logger.Nop())
	err := c.SendMediaGroup(context.Background(), "-100", []InputPhoto{
		{URL: "https://img/1.jpg", Caption: "one"},
		{URL: "https://img/2.jpg", Caption: "two"},
	})
	require.NoError(t, err)
}

func TestSendMediaGroupUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "42", r.FormValue("chat_id"))

		var media []inputMedia
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("media")), &media))
		require.Len(t, media, 2)
		assert.Equal(t, "attach://photo0", media[0].Media)
		assert.Equal(t, "https://img/by-url.jpg", media[1].Media)

		f, _, err := r.FormFile("photo0")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("jpegbytes"), data)

		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "TOKEN", 0, logger.Nop())
	err := c.SendMediaGroup(context.Background(), "42", []InputPhoto{
		{Data: []byte("jpegbytes"), Caption: "uploaded"},
		{URL: "https://img/by-url.jpg"},
	})
	require.NoError(t, err)
}

func TestSendMediaGroupAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok": false, "error_code": 429, "description": "Too Many Requests", "parameters": {"retry_after": 7}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "TOKEN", 0, logger.Nop())
	err := c.SendMediaGroup(context.Background(), "1", []InputPhoto{{URL: "https://img/1.jpg"}})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.Code)
	assert.Equal(t, 7, apiErr.RetryAfter)
	assert.Contains(t, err.Error(), "retry after 7s")
}

func TestSendMediaGroupValidation(t *testing.T) {
	c := NewClient("http://unused", "TOKEN", 0, logger.Nop())

	assert.Error(t, c.SendMediaGroup(context.Background(), "1", nil))
	assert.Error(t, c.SendMediaGroup(context.Background(), "1", []InputPhoto{{Caption: "no media"}}))
	assert.Error(t, c.SendMediaGroup(context.Background(), "1", make([]InputPhoto, 11)))
}

func TestTransportErrorHidesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(url, "SECRET-TOKEN", 0, logger.Nop())
	err := c.SendMediaGroup(context.Background(), "1", []InputPhoto{{URL: "https://img/1.jpg"}})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestSendMessageSplitsLongText(t *testing.T) {
	var texts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "HTML", r.PostForm.Get("parse_mode"))
		texts = append(texts, r.PostForm.Get("text"))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	line := strings.Repeat("b", 99) + "\n"
	text := strings.Repeat(line, 100)

	c := NewClient(server.URL, "TOKEN", 0, logger.Nop())
	require.NoError(t, c.SendMessage(context.Background(), "1", text, "HTML"))

	require.Len(t, texts, 3)
	for _, part := range texts {
		assert.LessOrEqual(t, len([]rune(part)), MaxMessageLength)
		assert.True(t, strings.HasSuffix(part, "\n"))
	}
	assert.Equal(t, text, strings.Join(texts, ""))
}

func TestSendMessageStopsOnFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "TOKEN", 0, logger.Nop())
	err := c.SendMessage(context.Background(), "1", strings.Repeat("x\n", 5000), "")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
