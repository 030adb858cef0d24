package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	// MaxMessageLength is the sendMessage text limit in UTF-16 code units.
	MaxMessageLength = 4096
)

type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 70 * time.Second,
		},
	}
}

// WithBaseURL points the client at another API host, e.g. a local Bot API
// server or a test server.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]Update, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	u, err := url.Parse(fmt.Sprintf("%s/bot%s/getUpdates", c.baseURL, c.token))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	q.Set("allowed_updates", `["message"]`)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var res apiResponse[[]Update]
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	if !res.Ok {
		return nil, &APIError{Description: res.Description}
	}
	return res.Result, nil
}

// SendMessage posts text to chatID. Telegram accepts the numeric chat id
// in string form, so owners are passed through unchanged. Text over
// MaxMessageLength is cut with an ellipsis.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    truncate(text, MaxMessageLength),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token),
		bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	var res apiResponse[Message]
	if err := c.do(req, &res); err != nil {
		return err
	}
	if !res.Ok {
		return &APIError{Description: res.Description}
	}
	return nil
}

// truncate cuts text to at most limit UTF-16 code units, ending in "…"
// when anything was dropped.
func truncate(text string, limit int) string {
	units := 0
	cut := -1
	for i, r := range text {
		if units+utf16.RuneLen(r) > limit-1 && cut < 0 {
			cut = i
		}
		units += utf16.RuneLen(r)
		if units > limit {
			return strings.TrimRightFunc(text[:cut], unicode.IsSpace) + "…"
		}
	}
	return text
}

type apiResponse[T any] struct {
	Ok          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("telegram: HTTP %d: %s", e.StatusCode, e.Description)
	}
	return "telegram: " + e.Description
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Description: resp.Status}
		var body apiResponse[json.RawMessage]
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Description != "" {
			apiErr.Description = body.Description
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(errors.New("telegram: decode response"), err)
	}
	return nil
}

type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ChatID returns the owning chat of the update as a string, or "" when the
// update carries no message or chat.
func (u Update) ChatID() string {
	if u.Message == nil || u.Message.Chat == nil || u.Message.Chat.ID == 0 {
		return ""
	}
	return strconv.FormatInt(u.Message.Chat.ID, 10)
}
