package conn

import (
	"sync"
	"time"
)

// Timer is a connection-owned deferred action. At most one callback is
// outstanding at a time: Schedule replaces whatever is pending. Stop may be
// called any number of times, before or after the callback fires.
//
// Once stopped a Timer refuses new work, so a callback that tries to
// reschedule itself after teardown is a no-op.
type Timer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// Schedule arranges for fn to run after d. It reports false if the timer has
// already been stopped.
func (t *Timer) Schedule(d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if t.t != nil {
		t.t.Stop()
	}
	t.t = time.AfterFunc(d, fn)
	return true
}

// Stop cancels any pending callback and prevents further scheduling. It
// reports whether this call was the one that stopped the timer.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	return true
}

func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
