package pipeline

import (
	"sync"
	"time"
)

// Canceller is the shared cancellation latch consulted by every
// concurrent task in the pipeline. It starts un-signalled; the first
// fatal error anywhere signals it, pending work observes the signal
// and stops, and in-flight work drains.
type Canceller struct {
	once sync.Once
	done chan struct{}
}

// NewCanceller returns an un-signalled latch.
func NewCanceller() *Canceller {
	return &Canceller{done: make(chan struct{})}
}

// Signal trips the latch. Idempotent, safe to call from multiple
// failing workers concurrently.
func (c *Canceller) Signal() {
	c.once.Do(func() { close(c.done) })
}

// Signalled reports whether the latch has been tripped.
func (c *Canceller) Signalled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done exposes the latch as a channel for use in select statements.
func (c *Canceller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks up to timeout or until the latch is signalled, and
// returns whether it was signalled. Backoff sleeps use this so that a
// cancellation during a retry wait returns immediately instead of
// completing the full delay.
func (c *Canceller) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}
