package watch

import (
	"sync"
	"time"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// backoff tracks the reconnect delay for one watch session, doubling on
// every unsuccessful attempt up to maxBackoff and resetting to minBackoff
// once a session produces at least one successfully-handled event. The
// mutex-guarded state struct is the same shape the teacher's circuit
// breaker uses per resource key, narrowed here to a single exponential
// sequence (its only state is the current delay) instead of a
// failure-threshold state machine.
type backoff struct {
	mu      sync.Mutex
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: minBackoff}
}

// Next returns the delay to wait before the next reconnect attempt and
// doubles it for next time, capped at maxBackoff.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	b.current *= 2
	if b.current > maxBackoff {
		b.current = maxBackoff
	}
	return delay
}

// Reset returns the sequence to minBackoff, called after a session that
// successfully handled at least one event before closing.
func (b *backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = minBackoff
}
