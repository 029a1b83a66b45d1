package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgdispatch/delivery"
	"tgdispatch/queue"
)

type recorded struct {
	destination string
	text        string
	opts        delivery.Options
}

func newTestAPI(t *testing.T, limiter *ClientLimiter, fn func(dest string) error) (*httptest.Server, *[]recorded, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var sent []recorded
	tr := delivery.TransportFunc(func(ctx context.Context, destination string, payload delivery.Payload, opts delivery.Options) (delivery.Receipt, error) {
		mu.Lock()
		sent = append(sent, recorded{destination: destination, text: payload.String(), opts: opts})
		mu.Unlock()
		if fn != nil {
			if err := fn(destination); err != nil {
				return delivery.Receipt{}, err
			}
		}
		return delivery.Receipt{MessageID: 101}, nil
	})
	q := queue.NewManager(tr, queue.WithRateLimit(1000), queue.WithBackoff(time.Millisecond, 2*time.Millisecond))
	t.Cleanup(q.Close)

	mux := http.NewServeMux()
	NewHandler(q, limiter, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &sent, &mu
}

func post(t *testing.T, url, body string) (*http.Response, MessageResponse) {
	t.Helper()
	resp, err := http.Post(url+"/v1/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out MessageResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestPostMessageWaitsForDelivery(t *testing.T) {
	srv, sent, mu := newTestAPI(t, nil, nil)

	resp, out := post(t, srv.URL, `{"chat_id": 123456, "text": "Your order is confirmed", "options": {"parse_mode": "HTML"}, "wait": true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sent", out.Status)
	assert.Equal(t, int64(101), out.MessageID)
	assert.Equal(t, 1, out.Attempts)
	assert.NotEmpty(t, out.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *sent, 1)
	assert.Equal(t, "123456", (*sent)[0].destination)
	assert.Equal(t, "Your order is confirmed", (*sent)[0].text)
	assert.Equal(t, "HTML", (*sent)[0].opts["parse_mode"])
}

func TestPostMessageFireAndForget(t *testing.T) {
	srv, sent, mu := newTestAPI(t, nil, nil)

	resp, out := post(t, srv.URL, `{"chat_id": "@flowershop", "text": "Tulips are back"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", out.Status)
	assert.NotEmpty(t, out.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*sent) == 1 && (*sent)[0].destination == "@flowershop"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPostMessageMapsTerminalErrors(t *testing.T) {
	srv, _, _ := newTestAPI(t, nil, func(dest string) error {
		switch dest {
		case "403":
			return delivery.Permanent("bot was blocked by the user")
		case "500":
			return errors.New("bad gateway")
		}
		return nil
	})

	resp, out := post(t, srv.URL, `{"chat_id": 403, "text": "hi", "wait": true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "failed", out.Status)
	assert.Contains(t, out.Error, "blocked")

	resp, out = post(t, srv.URL, `{"chat_id": 500, "text": "hi", "wait": true, "max_attempts": 2}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 2, out.Attempts)
}

func TestPostMessageValidation(t *testing.T) {
	srv, _, _ := newTestAPI(t, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"chat_id":`},
		{"missing chat", `{"text": "hi"}`},
		{"missing text", `{"chat_id": 1, "text": "  "}`},
		{"bad chat id", `{"chat_id": 1.5, "text": "hi"}`},
		{"negative attempts", `{"chat_id": 1, "text": "hi", "max_attempts": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := post(t, srv.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPostMessageIngressLimit(t *testing.T) {
	limiter := NewClientLimiter(0.001, 1, time.Minute)
	defer limiter.Stop()
	srv, _, _ := newTestAPI(t, limiter, nil)

	resp, _ := post(t, srv.URL, `{"chat_id": 1, "text": "first"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = post(t, srv.URL, `{"chat_id": 1, "text": "second"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestChatIDUnmarshal(t *testing.T) {
	var c ChatID
	require.NoError(t, json.Unmarshal([]byte(`-1001234`), &c))
	assert.Equal(t, ChatID("-1001234"), c)
	require.NoError(t, json.Unmarshal([]byte(`" @shop "`), &c))
	assert.Equal(t, ChatID("@shop"), c)
	require.Error(t, json.Unmarshal([]byte(`true`), &c))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(delivery.Permanent("x")))
	assert.Equal(t, http.StatusBadGateway, statusFor(&queue.ExhaustedError{Attempts: 5, Last: context.DeadlineExceeded}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(queue.ErrClosed))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("other")))
}
