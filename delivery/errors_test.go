package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"rate limited", RateLimited(2 * time.Second), ClassRateLimited},
		{"wrapped rate limited", fmt.Errorf("send: %w", RateLimited(time.Second)), ClassRateLimited},
		{"permanent", Permanent("chat not found"), ClassPermanent},
		{"wrapped permanent", fmt.Errorf("send: %w", Permanent("blocked")), ClassPermanent},
		{"transient", Transient("dial", errors.New("refused")), ClassTransient},
		{"plain error", errors.New("boom"), ClassTransient},
		{"timeout", context.DeadlineExceeded, ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorSentinels(t *testing.T) {
	assert.ErrorIs(t, RateLimited(time.Second), ErrRateLimited)
	assert.ErrorIs(t, Permanent("x"), ErrPermanent)

	cause := errors.New("connection reset")
	err := Transient("read", cause)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transient failure: read: connection reset", err.Error())
}

func TestRetryAfter(t *testing.T) {
	after, ok := RetryAfter(fmt.Errorf("wrap: %w", RateLimited(5*time.Second)))
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, after)

	_, ok = RetryAfter(Permanent("nope"))
	assert.False(t, ok)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("send: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(errors.New("other")))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "rate_limited", ClassRateLimited.String())
	assert.Equal(t, "permanent", ClassPermanent.String())
	assert.Equal(t, "transient", ClassTransient.String())
}
