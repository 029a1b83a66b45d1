package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tgdispatch/delivery"
	"tgdispatch/queue"
)

const maxBodyBytes = 64 << 10

// Enqueuer is the part of the delivery queue the API needs.
type Enqueuer interface {
	EnqueueJob(job queue.Job) *queue.Pending
}

// Handler serves POST /v1/messages.
type Handler struct {
	queue       Enqueuer
	limiter     *ClientLimiter
	logger      *slog.Logger
	waitTimeout time.Duration
}

// NewHandler creates the messages API. limiter may be nil.
func NewHandler(q Enqueuer, limiter *ClientLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{queue: q, limiter: limiter, logger: logger, waitTimeout: 2 * time.Minute}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /v1/messages", h)
}

// ChatID accepts a Telegram chat id given as a JSON number or string.
type ChatID string

func (c *ChatID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		*c = ChatID(strings.TrimSpace(unquoted))
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("chat_id must be an integer or string, got %s", s)
	}
	*c = ChatID(s)
	return nil
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	ChatID      ChatID         `json:"chat_id"`
	Text        string         `json:"text"`
	Priority    int            `json:"priority"`
	MaxAttempts int            `json:"max_attempts"`
	Options     map[string]any `json:"options"`
	Wait        bool           `json:"wait"`
}

// MessageResponse reports the job id and, for waited requests, the outcome.
type MessageResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	MessageID int64  `json:"message_id,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req MessageRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.MaxAttempts < 0 {
		writeError(w, http.StatusBadRequest, "max_attempts must not be negative")
		return
	}

	pending := h.queue.EnqueueJob(queue.Job{
		Destination: string(req.ChatID),
		Payload:     delivery.TextPayload(req.Text),
		Options:     delivery.Options(req.Options),
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	})

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, MessageResponse{ID: pending.ID(), Status: "queued"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()
	receipt, err := pending.Wait(ctx)
	resp := MessageResponse{ID: pending.ID(), Attempts: pending.Attempts()}
	if err == nil {
		resp.Status = "sent"
		resp.MessageID = receipt.MessageID
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Error = err.Error()
	status := statusFor(err)
	switch status {
	case http.StatusGatewayTimeout:
		resp.Status = "queued"
	default:
		resp.Status = "failed"
	}
	h.logger.Debug("waited enqueue finished without delivery",
		slog.String("job_id", pending.ID()),
		slog.Int("status", status),
		slog.String("error", err.Error()))
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, delivery.ErrPermanent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrRetriesExhausted):
		return http.StatusBadGateway
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
