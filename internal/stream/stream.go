package stream

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketdata/internal/manager"
	"marketdata/internal/model"
	"marketdata/internal/recorder"
)

// Config holds the streaming manager's tunables.
type Config struct {
	// Interval between polling ticks.
	Interval time.Duration
	// DataBufferSize bounds the in-memory buffer of recent points.
	DataBufferSize int
	// AlertBufferSize bounds the fired-alert buffer.
	AlertBufferSize int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.DataBufferSize <= 0 {
		c.DataBufferSize = 1000
	}
	if c.AlertBufferSize <= 0 {
		c.AlertBufferSize = 200
	}
}

// DataFunc receives each new streaming point.
type DataFunc func(model.StreamingPoint)

// AlertFunc receives each fired alert.
type AlertFunc func(model.FiredAlert)

// Manager polls the market data manager on a fixed interval, derives one
// StreamingPoint per tracked symbol per tick, evaluates price alerts, and
// fans both out to registered callbacks. At most one polling loop is active
// per instance.
type Manager struct {
	mkt *manager.Manager
	cfg Config
	rec recorder.Recorder

	mu      sync.Mutex
	symbols map[string]bool
	alerts  map[string]map[model.AlertKind]float64

	points        []model.StreamingPoint
	fired         []model.FiredAlert
	droppedPoints uint64
	droppedAlerts uint64

	dataCbs  map[string]DataFunc
	alertCbs map[string]AlertFunc

	stop chan struct{}
	done chan struct{}
}

// New creates a streaming manager on top of the market data manager.
// rec may be nil; a noop recorder is substituted.
func New(mkt *manager.Manager, cfg Config, rec recorder.Recorder) *Manager {
	cfg.applyDefaults()
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Manager{
		mkt:      mkt,
		cfg:      cfg,
		rec:      rec,
		symbols:  make(map[string]bool),
		alerts:   make(map[string]map[model.AlertKind]float64),
		dataCbs:  make(map[string]DataFunc),
		alertCbs: make(map[string]AlertFunc),
	}
}

// AddSymbol adds a symbol to the tracked set. Safe during an active tick.
func (m *Manager) AddSymbol(symbol string) {
	sym := model.NormalizeSymbol(symbol)
	m.mu.Lock()
	m.symbols[sym] = true
	m.mu.Unlock()
}

// RemoveSymbol drops a symbol from the tracked set.
func (m *Manager) RemoveSymbol(symbol string) {
	sym := model.NormalizeSymbol(symbol)
	m.mu.Lock()
	delete(m.symbols, sym)
	m.mu.Unlock()
}

// Symbols returns the tracked set, sorted for stable output.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbolsLocked()
}

func (m *Manager) symbolsLocked() []string {
	syms := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// SetAlert configures a threshold for the symbol, replacing any existing
// threshold of the same kind.
func (m *Manager) SetAlert(symbol string, kind model.AlertKind, threshold float64) {
	sym := model.NormalizeSymbol(symbol)
	m.mu.Lock()
	if m.alerts[sym] == nil {
		m.alerts[sym] = make(map[model.AlertKind]float64)
	}
	m.alerts[sym][kind] = threshold
	m.mu.Unlock()
}

// RemoveAlert removes one threshold kind for the symbol.
func (m *Manager) RemoveAlert(symbol string, kind model.AlertKind) {
	sym := model.NormalizeSymbol(symbol)
	m.mu.Lock()
	if kinds, ok := m.alerts[sym]; ok {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(m.alerts, sym)
		}
	}
	m.mu.Unlock()
}

// OnData registers a data callback and returns its handle.
func (m *Manager) OnData(fn DataFunc) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.dataCbs[id] = fn
	m.mu.Unlock()
	return id
}

// OnAlert registers an alert callback and returns its handle.
func (m *Manager) OnAlert(fn AlertFunc) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.alertCbs[id] = fn
	m.mu.Unlock()
	return id
}

// RemoveDataCallback unregisters a data callback.
func (m *Manager) RemoveDataCallback(id string) {
	m.mu.Lock()
	delete(m.dataCbs, id)
	m.mu.Unlock()
}

// RemoveAlertCallback unregisters an alert callback.
func (m *Manager) RemoveAlertCallback(id string) {
	m.mu.Lock()
	delete(m.alertCbs, id)
	m.mu.Unlock()
}

// Start launches the polling loop. Starting while already streaming is a
// logged no-op; the return value reports whether a loop was started.
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		log.Println("[WARN] streaming already active, start ignored")
		return false
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)
	log.Printf("[INFO] streaming started, interval %v", m.cfg.Interval)
	return true
}

// Stop signals the loop and waits for it to exit, bounded to a few seconds
// so a wedged tick cannot hang shutdown forever.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
		log.Println("[INFO] streaming stopped")
	case <-time.After(5 * time.Second):
		log.Println("[WARN] streaming loop did not stop within 5s")
	}
}

// Active reports whether a polling loop is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

// RecentPoints returns up to n of the most recent streaming points.
func (m *Manager) RecentPoints(n int) []model.StreamingPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.points) {
		n = len(m.points)
	}
	out := make([]model.StreamingPoint, n)
	copy(out, m.points[len(m.points)-n:])
	return out
}

// FiredAlerts returns up to n of the most recent fired alerts.
func (m *Manager) FiredAlerts(n int) []model.FiredAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.fired) {
		n = len(m.fired)
	}
	out := make([]model.FiredAlert, n)
	copy(out, m.fired[len(m.fired)-n:])
	return out
}

// Dropped returns the overflow counters for the data and alert buffers.
func (m *Manager) Dropped() (points, alerts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.droppedPoints, m.droppedAlerts
}

func (m *Manager) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.tick()
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// tick force-refreshes the tracked set and processes the latest bar of each
// result. It snapshots the symbol list under the lock, so a racing
// AddSymbol/RemoveSymbol affects either this tick or the next, never a
// half-mutated view.
func (m *Manager) tick() {
	m.mu.Lock()
	syms := m.symbolsLocked()
	m.mu.Unlock()
	if len(syms) == 0 {
		return
	}

	results := m.mkt.GetMultiple(syms, manager.FetchOptions{ForceRefresh: true})
	now := time.Now()

	for _, sym := range syms {
		rec, ok := results[sym]
		if !ok {
			continue
		}
		bar, ok := rec.LatestBar()
		if !ok {
			continue
		}
		// Change fields stay zero-filled; true previous-price deltas are a
		// separate enhancement.
		point := model.StreamingPoint{
			Symbol:    sym,
			Timestamp: now,
			Price:     bar.Close,
			Volume:    bar.Volume,
			Source:    rec.Source,
		}
		m.pushPoint(point)
		if err := m.rec.RecordPoint(&point); err != nil {
			log.Printf("[ERROR] record stream point: %v", err)
		}
		m.deliverData(point)
		m.evaluateAlerts(sym, point)
	}
}

// pushPoint appends to the bounded buffer; on overflow the new point is
// dropped and counted rather than growing the buffer or blocking the tick.
func (m *Manager) pushPoint(p model.StreamingPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.points) >= m.cfg.DataBufferSize {
		m.droppedPoints++
		if m.droppedPoints%100 == 1 {
			log.Printf("[WARN] streaming data buffer full, %d points dropped so far", m.droppedPoints)
		}
		return
	}
	m.points = append(m.points, p)
}

func (m *Manager) pushAlert(a model.FiredAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.fired) >= m.cfg.AlertBufferSize {
		m.droppedAlerts++
		log.Printf("[WARN] alert buffer full, %d alerts dropped so far", m.droppedAlerts)
		return
	}
	m.fired = append(m.fired, a)
}

// evaluateAlerts compares the new price against the symbol's thresholds.
// A tick where anything fires produces one FiredAlert listing every kind
// that triggered.
func (m *Manager) evaluateAlerts(symbol string, point model.StreamingPoint) {
	m.mu.Lock()
	thresholds := make(map[model.AlertKind]float64, len(m.alerts[symbol]))
	for kind, v := range m.alerts[symbol] {
		thresholds[kind] = v
	}
	m.mu.Unlock()
	if len(thresholds) == 0 {
		return
	}

	triggered := make(map[model.AlertKind]float64)
	if t, ok := thresholds[model.AlertAbove]; ok && point.Price > t {
		triggered[model.AlertAbove] = t
	}
	if t, ok := thresholds[model.AlertBelow]; ok && point.Price < t {
		triggered[model.AlertBelow] = t
	}
	if len(triggered) == 0 {
		return
	}

	alert := model.FiredAlert{
		Symbol:    symbol,
		Timestamp: point.Timestamp,
		Price:     point.Price,
		Triggered: triggered,
	}
	log.Printf("[INFO] alert fired for %s at %.2f: %v", symbol, point.Price, triggered)
	m.pushAlert(alert)
	if err := m.rec.RecordAlert(&alert); err != nil {
		log.Printf("[ERROR] record alert: %v", err)
	}
	m.deliverAlert(alert)
}

// deliverData invokes every data callback synchronously; a panic in one is
// recovered and logged without blocking delivery to the others.
func (m *Manager) deliverData(p model.StreamingPoint) {
	m.mu.Lock()
	fns := make([]DataFunc, 0, len(m.dataCbs))
	for _, fn := range m.dataCbs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[ERROR] data callback panicked: %v", r)
				}
			}()
			fn(p)
		}()
	}
}

func (m *Manager) deliverAlert(a model.FiredAlert) {
	m.mu.Lock()
	fns := make([]AlertFunc, 0, len(m.alertCbs))
	for _, fn := range m.alertCbs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[ERROR] alert callback panicked: %v", r)
				}
			}()
			fn(a)
		}()
	}
}
