package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the public Telegram Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"

	defaultRetryAfter = time.Second
	maxResponseBytes  = 1 << 20
)

// Telegram sends text messages through the Bot API sendMessage method.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

// TelegramOption customises a Telegram transport.
type TelegramOption func(*Telegram)

// WithAPIURL points the transport at a different Bot API server.
func WithAPIURL(base string) TelegramOption {
	return func(t *Telegram) {
		if base != "" {
			t.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegram creates a transport authenticated with the bot token.
func NewTelegram(token string, opts ...TelegramOption) (*Telegram, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	t := &Telegram{
		token:   token,
		baseURL: DefaultAPIURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter      int   `json:"retry_after"`
		MigrateToChatID int64 `json:"migrate_to_chat_id"`
	} `json:"parameters"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// Send delivers payload as the text of a message to the chat identified by
// destination. Options are merged into the request body.
func (t *Telegram) Send(ctx context.Context, destination string, payload Payload, opts Options) (Receipt, error) {
	if strings.TrimSpace(destination) == "" {
		return Receipt{}, &PermanentError{Reason: "empty chat id"}
	}
	if payload.Len() == 0 {
		return Receipt{}, &PermanentError{Reason: "empty message text"}
	}

	body := make(map[string]any, len(opts)+2)
	for k, v := range opts {
		if k == "chat_id" || k == "text" {
			continue
		}
		body[k] = v
	}
	body["chat_id"] = chatID(destination)
	body["text"] = payload.String()

	buf, err := json.Marshal(body)
	if err != nil {
		return Receipt{}, &PermanentError{Reason: fmt.Sprintf("encode request: %v", err)}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return Receipt{}, &PermanentError{Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Receipt{}, Transient("sendMessage", redact(err, t.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Receipt{}, Transient("read response", err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return Receipt{}, RateLimited(retryAfterHeader(resp.Header))
		}
		return Receipt{}, Transient(fmt.Sprintf("decode response (status %d)", resp.StatusCode), err)
	}

	if resp.StatusCode == http.StatusOK && out.OK {
		var msg sentMessage
		if err := json.Unmarshal(out.Result, &msg); err != nil {
			return Receipt{}, Transient("decode result", err)
		}
		return Receipt{MessageID: msg.MessageID, ChatID: msg.Chat.ID, Raw: out.Result}, nil
	}

	return Receipt{}, classifyResponse(resp, out)
}

func classifyResponse(resp *http.Response, out apiResponse) error {
	code := out.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	switch {
	case code == http.StatusTooManyRequests:
		after := defaultRetryAfter
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			after = time.Duration(out.Parameters.RetryAfter) * time.Second
		} else if h := retryAfterHeader(resp.Header); h > 0 {
			after = h
		}
		return RateLimited(after)
	case code == http.StatusBadRequest, code == http.StatusForbidden, code == http.StatusNotFound:
		return &PermanentError{Code: code, Reason: describe(out.Description, code)}
	default:
		return &TransientError{Message: fmt.Sprintf("api error %d: %s", code, describe(out.Description, code))}
	}
}

func retryAfterHeader(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func describe(desc string, code int) string {
	if desc != "" {
		return desc
	}
	return http.StatusText(code)
}

// chatID sends numeric ids as numbers and @channel names as strings.
func chatID(destination string) any {
	destination = strings.TrimSpace(destination)
	if id, err := strconv.ParseInt(destination, 10, 64); err == nil {
		return id
	}
	return destination
}

// redact strips the bot token from transport errors, which embed the request URL.
func redact(err error, token string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, token, "<token>")
	}
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "<token>"))
}
