package queue

import (
	"errors"
	"fmt"
	"time"

	"tgdispatch/delivery"
)

var (
	// ErrRetriesExhausted is the terminal error for jobs that kept failing
	// with retryable errors until their attempt budget ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrClosed is returned for jobs the queue dropped on shutdown.
	ErrClosed = errors.New("delivery queue closed")
	// ErrPending is returned by Pending.Result before the job resolves.
	ErrPending = errors.New("job still pending")
)

// ExhaustedError wraps ErrRetriesExhausted with the last transport error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Job is one send request. Callers fill Destination, Payload, Options,
// Priority and optionally MaxAttempts; the queue owns the job from then on.
type Job struct {
	ID          string
	Destination string
	Payload     delivery.Payload
	Options     delivery.Options
	Priority    int
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time

	done  *Pending
	seq   uint64
	front uint64
	index int
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Total       uint64    `json:"total"`
	Sent        uint64    `json:"sent"`
	Failed      uint64    `json:"failed"`
	Retried     uint64    `json:"retried"`
	QueueLength int       `json:"queue_length"`
	Processing  bool      `json:"processing"`
	Scheduled   int       `json:"scheduled"`
	LastSent    time.Time `json:"last_sent,omitempty"`
}

type counters struct {
	total   uint64
	sent    uint64
	failed  uint64
	retried uint64
}
