package queue

import (
	"context"
	"sync"

	"tgdispatch/delivery"
)

// Pending is the caller's handle on an enqueued job. It resolves exactly
// once, with either the transport receipt or a terminal error.
type Pending struct {
	id   string
	once sync.Once
	done chan struct{}

	receipt  delivery.Receipt
	err      error
	attempts int
}

func newPending(id string) *Pending {
	return &Pending{id: id, done: make(chan struct{})}
}

// ID returns the job id.
func (p *Pending) ID() string {
	return p.id
}

// Done is closed when the job has a final outcome.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the job resolves or ctx ends. A ctx error does not
// cancel the job.
func (p *Pending) Wait(ctx context.Context) (delivery.Receipt, error) {
	select {
	case <-p.done:
		return p.receipt, p.err
	case <-ctx.Done():
		return delivery.Receipt{}, ctx.Err()
	}
}

// Resolved reports whether the job has a final outcome.
func (p *Pending) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking. It returns ErrPending while
// the job is unresolved.
func (p *Pending) Result() (delivery.Receipt, error) {
	if !p.Resolved() {
		return delivery.Receipt{}, ErrPending
	}
	return p.receipt, p.err
}

// Attempts returns the number of send attempts made once the job resolved.
func (p *Pending) Attempts() int {
	select {
	case <-p.done:
		return p.attempts
	default:
		return 0
	}
}

// resolve settles the handle. Only the first call has any effect.
func (p *Pending) resolve(receipt delivery.Receipt, err error, attempts int) bool {
	settled := false
	p.once.Do(func() {
		p.receipt = receipt
		p.err = err
		p.attempts = attempts
		close(p.done)
		settled = true
	})
	return settled
}
