package provider

import (
	"sync"
	"testing"
	"time"
)

func TestCallLimiter_UnderCapacityDoesNotBlock(t *testing.T) {
	l := newCallLimiter(3, time.Second)
	start := time.Now()
	for i := 0; i < 3; i++ {
		l.Wait()
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("calls under capacity should not block, took %v", elapsed)
	}
}

func TestCallLimiter_BlocksUntilWindowExpires(t *testing.T) {
	window := 300 * time.Millisecond
	l := newCallLimiter(2, window)

	first := time.Now()
	l.Wait()
	l.Wait()
	l.Wait() // third call must wait out the window, not get dropped

	if elapsed := time.Since(first); elapsed < window {
		t.Errorf("third call completed after %v, want >= %v", elapsed, window)
	}
}

func TestCallLimiter_ConcurrentBurst(t *testing.T) {
	window := 200 * time.Millisecond
	l := newCallLimiter(2, window)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Wait()
		}()
	}
	wg.Wait()

	// 4 calls at 2 per window: the last pair needs a second window.
	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("burst of 4 finished in %v, want >= %v", elapsed, window)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) > 4 {
		t.Errorf("call log grew past burst size: %d", len(l.calls))
	}
}
