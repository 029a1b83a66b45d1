package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited indicates the transport asked for a cool-down before further sends.
	ErrRateLimited = errors.New("rate limited by transport")
	// ErrPermanent indicates retrying the send cannot succeed.
	ErrPermanent = errors.New("permanent delivery failure")
	// ErrTransient indicates a failure that may succeed on a later attempt.
	ErrTransient = errors.New("transient delivery failure")
)

// Class is the retry policy bucket of a transport error.
type Class int

const (
	ClassNone Class = iota
	ClassRateLimited
	ClassPermanent
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// RateLimitedError is returned when the transport refuses sends for RetryAfter.
// The cool-down applies to the whole channel, not just the failing destination.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// PermanentError reports an unreachable recipient or a malformed request.
type PermanentError struct {
	Code   int
	Reason string
}

func (e *PermanentError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("permanent failure %d: %s", e.Code, e.Reason)
	}
	return "permanent failure: " + e.Reason
}

func (e *PermanentError) Is(target error) bool {
	return target == ErrPermanent
}

// TransientError is any other failure. Err, when set, is the underlying cause.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("transient failure: %s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transient failure: %v", e.Err)
	}
	return "transient failure: " + e.Message
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RateLimited builds a RateLimitedError.
func RateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// Permanent builds a PermanentError without a status code.
func Permanent(reason string) error {
	return &PermanentError{Reason: reason}
}

// Transient builds a TransientError wrapping err.
func Transient(message string, err error) error {
	return &TransientError{Message: message, Err: err}
}

// Classify maps err onto a retry policy. Errors that carry no classification,
// including attempt timeouts, are treated as transient.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}
	if errors.Is(err, ErrPermanent) {
		return ClassPermanent
	}
	return ClassTransient
}

// RetryAfter returns the cool-down carried by err, if it is a rate limit.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsTimeout reports whether err came from an attempt deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
