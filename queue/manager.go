package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tgdispatch/delivery"
	"tgdispatch/internal/audit"
	"tgdispatch/internal/config"
	"tgdispatch/internal/metrics"
)

// Manager is a rate-limited delivery queue in front of a single Transport.
// One drain goroutine at most sends at any time; retries are fed back to
// the front of the queue.
type Manager struct {
	transport delivery.Transport
	logger    *slog.Logger

	interval       time.Duration
	maxAttempts    int
	backoffBase    time.Duration
	backoffMax     time.Duration
	attemptTimeout time.Duration
	deadLetter     func(Job, error)

	mu         sync.Mutex
	pending    pendingJobs
	scheduled  map[*Job]*time.Timer
	processing bool
	closed     bool
	lastSent   time.Time
	stats      counters

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a delivery queue for transport.
func NewManager(transport delivery.Transport, opts ...Option) *Manager {
	defaults := config.DefaultQueue()
	m := &Manager{
		transport:      transport,
		logger:         slog.Default(),
		scheduled:      make(map[*Job]*time.Timer),
		quit:           make(chan struct{}),
		maxAttempts:    defaults.MaxAttempts,
		backoffBase:    defaults.BackoffBase,
		backoffMax:     defaults.BackoffMax,
		attemptTimeout: defaults.AttemptTimeout,
	}
	WithRateLimit(defaults.RateLimit)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the minimum spacing between sends.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Enqueue queues a message for destination and returns its completion handle.
// It never fails synchronously; all outcomes arrive through the handle.
func (m *Manager) Enqueue(destination string, payload delivery.Payload, opts delivery.Options, priority int) *Pending {
	return m.EnqueueJob(Job{
		Destination: destination,
		Payload:     payload,
		Options:     opts,
		Priority:    priority,
	})
}

// EnqueueJob queues a copy of job. ID, Attempts and CreatedAt are assigned
// by the queue; a zero MaxAttempts takes the queue default.
func (m *Manager) EnqueueJob(job Job) *Pending {
	j := job
	j.ID = uuid.NewString()
	j.Attempts = 0
	j.CreatedAt = time.Now()
	j.Options = job.Options.Clone()
	if j.MaxAttempts < 1 {
		j.MaxAttempts = m.maxAttempts
	}
	j.done = newPending(j.ID)

	metrics.JobsEnqueued.Add(1)

	m.mu.Lock()
	m.stats.total++
	if m.closed {
		m.mu.Unlock()
		j.done.resolve(delivery.Receipt{}, ErrClosed, 0)
		return j.done
	}
	m.pending.push(&j)
	depth := m.pending.len()
	start := m.acquireLocked()
	m.mu.Unlock()

	metrics.SetQueueDepth(depth)
	audit.Log("queued job %s for %s (priority %d)", j.ID, j.Destination, j.Priority)
	if start {
		go m.drain()
	}
	return j.done
}

// Drain starts the drain loop if there is pending work and no loop is
// running. On an idle queue it does nothing.
func (m *Manager) Drain() {
	m.mu.Lock()
	start := false
	if m.pending.len() > 0 {
		start = m.acquireLocked()
	}
	m.mu.Unlock()
	if start {
		go m.drain()
	}
}

// acquireLocked claims the processing guard. It reports whether the caller
// must start a drain goroutine.
func (m *Manager) acquireLocked() bool {
	if m.processing || m.closed {
		return false
	}
	m.processing = true
	m.wg.Add(1)
	return true
}

// drain sends jobs until the queue is empty, then releases the guard.
func (m *Manager) drain() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if m.pending.len() == 0 || m.closed {
			m.processing = false
			m.mu.Unlock()
			return
		}
		wait := time.Until(m.lastSent.Add(m.interval))
		m.mu.Unlock()

		if !m.sleep(wait) {
			m.release()
			return
		}

		m.mu.Lock()
		job := m.pending.pop()
		depth := m.pending.len()
		m.mu.Unlock()
		metrics.SetQueueDepth(depth)
		if job == nil {
			continue
		}
		m.dispatch(job)
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.processing = false
	m.mu.Unlock()
}

// sleep waits for d. It returns false if the queue was closed meanwhile.
func (m *Manager) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-m.quit:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.quit:
		return false
	}
}

// dispatch makes one send attempt and applies the retry policy for its outcome.
func (m *Manager) dispatch(job *Job) {
	job.Attempts++

	ctx := context.Background()
	cancel := func() {}
	if m.attemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, m.attemptTimeout)
	}
	metrics.IncInflight()
	receipt, err := m.transport.Send(ctx, job.Destination, job.Payload, job.Options)
	metrics.DecInflight()
	cancel()

	class := delivery.Classify(err)
	audit.Log("job %s attempt %d/%d for %s: %s", job.ID, job.Attempts, job.MaxAttempts, job.Destination, class)

	switch class {
	case delivery.ClassNone:
		m.onSent(job, receipt)
	case delivery.ClassRateLimited:
		m.onRateLimited(job, err)
	case delivery.ClassPermanent:
		m.onPermanent(job, err)
	default:
		m.onTransient(job, err)
	}
}

func (m *Manager) onSent(job *Job, receipt delivery.Receipt) {
	m.mu.Lock()
	m.lastSent = time.Now()
	m.stats.sent++
	m.mu.Unlock()

	metrics.JobsSent.Add(1)
	m.logger.Debug("message sent",
		slog.String("job_id", job.ID),
		slog.String("destination", job.Destination),
		slog.Int("attempts", job.Attempts))
	job.done.resolve(receipt, nil, job.Attempts)
}

// onRateLimited pushes the next send time for every job out by the
// cool-down, since the transport throttles the whole channel.
func (m *Manager) onRateLimited(job *Job, err error) {
	after, _ := delivery.RetryAfter(err)
	metrics.RateLimited.Add(1)

	m.mu.Lock()
	until := time.Now().Add(after)
	if until.After(m.lastSent) {
		m.lastSent = until
	}
	if job.Attempts >= job.MaxAttempts {
		m.stats.failed++
		m.mu.Unlock()
		m.fail(job, &ExhaustedError{Attempts: job.Attempts, Last: err})
		return
	}
	if m.closed {
		m.mu.Unlock()
		job.done.resolve(delivery.Receipt{}, ErrClosed, job.Attempts)
		return
	}
	m.pending.pushFront(job)
	m.stats.retried++
	m.mu.Unlock()

	metrics.JobsRetried.Add(1)
	m.logger.Warn("transport rate limited, cooling down",
		slog.String("job_id", job.ID),
		slog.Duration("retry_after", after),
		slog.Int("attempt", job.Attempts))
}

func (m *Manager) onPermanent(job *Job, err error) {
	m.mu.Lock()
	m.stats.failed++
	m.mu.Unlock()
	m.fail(job, err)
}

// onTransient schedules a retry without holding up other jobs.
func (m *Manager) onTransient(job *Job, err error) {
	m.mu.Lock()
	if job.Attempts >= job.MaxAttempts {
		m.stats.failed++
		m.mu.Unlock()
		m.fail(job, &ExhaustedError{Attempts: job.Attempts, Last: err})
		return
	}
	if m.closed {
		m.mu.Unlock()
		job.done.resolve(delivery.Receipt{}, ErrClosed, job.Attempts)
		return
	}
	delay := backoffDuration(m.backoffBase, m.backoffMax, job.Attempts)
	m.stats.retried++
	m.scheduled[job] = time.AfterFunc(delay, func() { m.reactivate(job) })
	m.mu.Unlock()

	metrics.JobsRetried.Add(1)
	m.logger.Info("send failed, retry scheduled",
		slog.String("job_id", job.ID),
		slog.String("destination", job.Destination),
		slog.Int("attempt", job.Attempts),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()))
}

// reactivate runs when a transient retry timer fires: the job goes back to
// the front of the queue and a drain loop is started if none is running.
func (m *Manager) reactivate(job *Job) {
	m.mu.Lock()
	if _, ok := m.scheduled[job]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.scheduled, job)
	if m.closed {
		m.mu.Unlock()
		job.done.resolve(delivery.Receipt{}, ErrClosed, job.Attempts)
		return
	}
	m.pending.pushFront(job)
	depth := m.pending.len()
	start := m.acquireLocked()
	m.mu.Unlock()

	metrics.SetQueueDepth(depth)
	if start {
		go m.drain()
	}
}

func (m *Manager) fail(job *Job, err error) {
	metrics.JobsFailed.Add(1)
	m.logger.Error("message delivery failed",
		slog.String("job_id", job.ID),
		slog.String("destination", job.Destination),
		slog.Int("attempts", job.Attempts),
		slog.String("error", err.Error()))
	if m.deadLetter != nil {
		m.deadLetter(*job, err)
	}
	job.done.resolve(delivery.Receipt{}, err, job.Attempts)
}

// Stats returns a snapshot of the counters and queue state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Total:       m.stats.total,
		Sent:        m.stats.sent,
		Failed:      m.stats.failed,
		Retried:     m.stats.retried,
		QueueLength: m.pending.len(),
		Processing:  m.processing,
		Scheduled:   len(m.scheduled),
		LastSent:    m.lastSent,
	}
}

// ResetStats zeroes the counters. Queue contents and scheduling state are untouched.
func (m *Manager) ResetStats() {
	m.mu.Lock()
	m.stats = counters{}
	m.mu.Unlock()
}

// Depth returns the number of jobs waiting to be sent.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.len()
}

// Close stops the queue. Pending and scheduled jobs resolve with ErrClosed;
// an attempt already in flight finishes first.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	dropped := m.pending.drainAll()
	for job, timer := range m.scheduled {
		// A timer that already fired resolves its own job in reactivate.
		if timer.Stop() {
			dropped = append(dropped, job)
			delete(m.scheduled, job)
		}
	}
	m.mu.Unlock()

	close(m.quit)
	for _, job := range dropped {
		job.done.resolve(delivery.Receipt{}, ErrClosed, job.Attempts)
	}
	metrics.SetQueueDepth(0)
	m.wg.Wait()
}

func backoffDuration(base, ceiling time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 30 {
		shift = 30
	}
	d := base << uint(shift)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}
