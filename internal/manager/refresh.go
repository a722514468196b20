package manager

import (
	"log"
	"time"

	"github.com/google/uuid"

	"marketdata/internal/model"
)

// Subscribe registers a callback for background-refresh updates and returns
// a handle for Unsubscribe.
func (m *Manager) Subscribe(fn UpdateFunc) string {
	id := uuid.NewString()
	m.subMu.Lock()
	m.subs[id] = fn
	m.subMu.Unlock()
	return id
}

// Unsubscribe removes a previously registered callback.
func (m *Manager) Unsubscribe(id string) {
	m.subMu.Lock()
	delete(m.subs, id)
	m.subMu.Unlock()
}

// StartBackgroundRefresh launches the refresh loop: every interval it
// force-refreshes the symbol set and notifies all subscribers. Starting
// while a loop is already active is a logged no-op; the return value
// reports whether a new loop was started.
func (m *Manager) StartBackgroundRefresh(symbols []string, interval time.Duration) bool {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if m.refreshStop != nil {
		log.Println("[WARN] background refresh already running, start ignored")
		return false
	}
	if interval <= 0 {
		interval = time.Minute
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	m.refreshStop = stop
	m.refreshDone = done

	syms := make([]string, len(symbols))
	copy(syms, symbols)

	go m.refreshLoop(syms, interval, stop, done)
	log.Printf("[INFO] background refresh started for %d symbols every %v", len(syms), interval)
	return true
}

// StopBackgroundRefresh signals the loop to exit and waits for it.
func (m *Manager) StopBackgroundRefresh() {
	m.refreshMu.Lock()
	stop, done := m.refreshStop, m.refreshDone
	m.refreshStop, m.refreshDone = nil, nil
	m.refreshMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	log.Println("[INFO] background refresh stopped")
}

// refreshLoop runs until stop closes. The inter-tick wait selects on the
// stop channel, so shutdown never waits out a long interval.
func (m *Manager) refreshLoop(symbols []string, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		results := m.GetMultiple(symbols, FetchOptions{ForceRefresh: true})
		m.notify(results)

		if len(results) == 0 && len(symbols) > 0 {
			// Every fetch failed this tick; back off before retrying so a
			// provider outage does not turn into a hot loop.
			log.Printf("[WARN] refresh tick got no data, backing off %v", m.cfg.RecoveryWait)
			select {
			case <-stop:
				return
			case <-time.After(m.cfg.RecoveryWait):
			}
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// notify delivers the refreshed map to every subscriber. A panicking
// callback is caught and logged; it never kills the loop or starves the
// remaining subscribers.
func (m *Manager) notify(results map[string]*model.MarketRecord) {
	m.subMu.Lock()
	fns := make([]UpdateFunc, 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[ERROR] refresh subscriber panicked: %v", r)
				}
			}()
			fn(results)
		}()
	}
}
