package provider

import (
	"log"
	"sync"
	"time"
)

// callLimiter enforces at most max calls per rolling window by keeping an
// in-memory log of call timestamps. Wait blocks the caller until the oldest
// recorded call exits the window; calls are delayed, never dropped.
type callLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  []time.Time
}

func newCallLimiter(max int, window time.Duration) *callLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &callLimiter{max: max, window: window}
}

// Wait blocks until the limiter admits one more call, then records it.
// Safe for concurrent callers: the check-and-record runs under the lock,
// while the sleep itself does not hold it.
func (l *callLimiter) Wait() {
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)
		if len(l.calls) < l.max {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return
		}
		wait := l.calls[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait > 0 {
			log.Printf("[INFO] rate limit reached (%d calls/%v), waiting %v", l.max, l.window, wait.Round(time.Millisecond))
			time.Sleep(wait)
		}
	}
}

// prune drops timestamps that have left the rolling window. Caller holds mu.
func (l *callLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
