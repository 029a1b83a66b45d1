package queue

import (
	"log/slog"
	"time"

	"tgdispatch/internal/config"
)

// Option configures a Manager.
type Option func(*Manager)

// WithConfig applies queue settings loaded from configuration.
func WithConfig(cfg config.Queue) Option {
	return func(m *Manager) {
		WithRateLimit(cfg.RateLimit)(m)
		WithMaxAttempts(cfg.MaxAttempts)(m)
		WithBackoff(cfg.BackoffBase, cfg.BackoffMax)(m)
		WithAttemptTimeout(cfg.AttemptTimeout)(m)
	}
}

// WithRateLimit sets the sustained send ceiling in sends per second.
func WithRateLimit(perSecond float64) Option {
	return func(m *Manager) {
		if perSecond > 0 {
			m.interval = time.Duration(float64(time.Second) / perSecond)
		}
	}
}

// WithMaxAttempts sets the default attempt budget for jobs that do not set their own.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBackoff sets the transient retry delay: base doubled per attempt, capped at ceiling.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(m *Manager) {
		if base > 0 {
			m.backoffBase = base
		}
		if ceiling > 0 {
			m.backoffMax = ceiling
		}
	}
}

// WithAttemptTimeout bounds each transport call. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.attemptTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDeadLetter registers a hook called with every job that terminally fails.
func WithDeadLetter(fn func(Job, error)) Option {
	return func(m *Manager) {
		m.deadLetter = fn
	}
}
