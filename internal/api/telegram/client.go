// Package telegram is a minimal Bot API client for photo albums and text.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drallgood/bookfeed/internal/chunk"
	"github.com/drallgood/bookfeed/internal/logger"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// MaxMessageLength is the text ceiling used when splitting messages.
	// The API limit is 4096; the margin leaves room for entities.
	MaxMessageLength = 4090

	// MaxMediaGroupSize is the largest album the API accepts
	MaxMediaGroupSize = 10
)

// InputPhoto is one album item. Either URL or Data must be set; Data wins.
type InputPhoto struct {
	URL      string
	Data     []byte
	Filename string
	Caption  string
}

// APIError is a non-OK Bot API reply
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type inputMedia struct {
	Type    string `json:"type"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

// Client sends messages through a bot token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a Bot API client. An empty baseURL selects the public API.
func NewClient(baseURL, token string, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Component("telegram"),
	}
}

// SendMediaGroup posts photos as one album. Photos with Data are uploaded as
// multipart attachments, the rest are passed by URL.
func (c *Client) SendMediaGroup(ctx context.Context, chatID string, photos []InputPhoto) error {
	if len(photos) == 0 {
		return fmt.Errorf("media group is empty")
	}
	if len(photos) > MaxMediaGroupSize {
		return fmt.Errorf("media group has %d items, limit is %d", len(photos), MaxMediaGroupSize)
	}

	media := make([]inputMedia, len(photos))
	uploads := map[string]InputPhoto{}
	for i, p := range photos {
		m := inputMedia{Type: "photo", Caption: p.Caption, Media: p.URL}
		if len(p.Data) > 0 {
			name := fmt.Sprintf("photo%d", i)
			m.Media = "attach://" + name
			uploads[name] = p
		} else if p.URL == "" {
			return fmt.Errorf("photo %d has neither data nor URL", i)
		}
		media[i] = m
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("failed to encode media: %w", err)
	}

	if len(uploads) == 0 {
		form := url.Values{"chat_id": {chatID}, "media": {string(mediaJSON)}}
		return c.call(ctx, "sendMediaGroup", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("chat_id", chatID)
	_ = mw.WriteField("media", string(mediaJSON))
	for i := range photos {
		name := fmt.Sprintf("photo%d", i)
		p, ok := uploads[name]
		if !ok {
			continue
		}
		filename := p.Filename
		if filename == "" {
			filename = name + ".jpg"
		}
		fw, err := mw.CreateFormFile(name, filename)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(p.Data); err != nil {
			return fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return c.call(ctx, "sendMediaGroup", mw.FormDataContentType(), &buf)
}

// SendMessage sends text, split on line boundaries to stay under the size ceiling.
// parseMode may be empty for plain text.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	parts, err := chunk.SplitText(text, MaxMessageLength)
	if err != nil {
		return err
	}
	for i, part := range parts {
		form := url.Values{"chat_id": {chatID}, "text": {part}}
		if parseMode != "" {
			form.Set("parse_mode", parseMode)
		}
		if err := c.call(ctx, "sendMessage", "application/x-www-form-urlencoded", strings.NewReader(form.Encode())); err != nil {
			return fmt.Errorf("message part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the token, so drop it from the error
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: "malformed response"}
	}
	if !result.OK {
		return &APIError{
			Method:      method,
			Code:        result.ErrorCode,
			Description: result.Description,
			RetryAfter:  result.Parameters.RetryAfter,
		}
	}

	c.logger.Debug("Telegram call succeeded", map[string]interface{}{"method": method})
	return nil
}
