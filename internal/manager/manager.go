package manager

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"marketdata/internal/cache"
	"marketdata/internal/model"
	"marketdata/internal/provider"
	"marketdata/internal/recorder"
)

// Config holds the manager's tunables.
type Config struct {
	// Period is the default bar range requested from providers.
	Period string
	// Workers bounds the fan-out width of GetMultiple.
	Workers int
	// MarketDataTTL and CompanyInfoTTL are the default cache lifetimes per
	// payload kind. Market data goes stale in hours; fundamentals survive
	// about a week.
	MarketDataTTL  time.Duration
	CompanyInfoTTL time.Duration
	// RecoveryWait is how long the background refresh loop pauses after a
	// tick where every fetch failed.
	RecoveryWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.Period == "" {
		c.Period = "1mo"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MarketDataTTL <= 0 {
		c.MarketDataTTL = 6 * time.Hour
	}
	if c.CompanyInfoTTL <= 0 {
		c.CompanyInfoTTL = 7 * 24 * time.Hour
	}
	if c.RecoveryWait <= 0 {
		c.RecoveryWait = 30 * time.Second
	}
}

// FetchOptions modify a single retrieval.
type FetchOptions struct {
	// ForceRefresh bypasses the cache read (the result is still written back).
	ForceRefresh bool
	// Source prefers a specific provider; empty uses the default order.
	Source string
	// Period overrides Config.Period for this call.
	Period string
}

// Manager coordinates the provider client and the local cache. It is the
// sole point of cache/provider coordination; neither side knows about the
// other.
type Manager struct {
	client *provider.Client
	cache  *cache.Cache
	cfg    Config
	rec    recorder.Recorder

	refreshMu   sync.Mutex
	refreshStop chan struct{}
	refreshDone chan struct{}

	subMu sync.Mutex
	subs  map[string]UpdateFunc
}

// UpdateFunc receives the refreshed record map on every background tick.
type UpdateFunc func(map[string]*model.MarketRecord)

// New creates a Manager. rec may be nil; a noop recorder is substituted.
func New(client *provider.Client, c *cache.Cache, cfg Config, rec recorder.Recorder) *Manager {
	cfg.applyDefaults()
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Manager{
		client: client,
		cache:  c,
		cfg:    cfg,
		rec:    rec,
		subs:   make(map[string]UpdateFunc),
	}
}

// GetMarketData retrieves a record cache-first. On a miss (or ForceRefresh)
// it fetches from the provider client and writes the result back before
// returning. Failed fetches are never cached; cache I/O trouble degrades to
// a miss, never an error to the caller.
func (m *Manager) GetMarketData(symbol string, opts FetchOptions) (*model.MarketRecord, error) {
	sym := model.NormalizeSymbol(symbol)
	key := cache.Key(sym, cache.KindMarketData)

	if !opts.ForceRefresh {
		if data, ok := m.cache.Get(key); ok {
			var rec model.MarketRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				log.Printf("[WARN] corrupt cached record for %s, refetching: %v", sym, err)
			} else {
				return &rec, nil
			}
		}
	}

	period := opts.Period
	if period == "" {
		period = m.cfg.Period
	}
	start := time.Now()
	rec, err := m.client.GetMarketData(sym, period, opts.Source)
	m.recordFetch(sym, rec, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err != nil {
		log.Printf("[WARN] marshal record for cache %s: %v", sym, err)
	} else if err := m.cache.Set(key, data, m.cfg.MarketDataTTL); err != nil {
		log.Printf("[WARN] cache write-back %s: %v", sym, err)
	}
	return rec, nil
}

// GetMultiple fans the symbols out over a bounded worker pool. Failures are
// logged and omitted from the result map; the caller detects incompleteness
// by comparing requested and returned symbol sets. Result order is undefined.
func (m *Manager) GetMultiple(symbols []string, opts FetchOptions) map[string]*model.MarketRecord {
	results := make(map[string]*model.MarketRecord, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := m.cfg.Workers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				rec, err := m.GetMarketData(sym, opts)
				if err != nil {
					log.Printf("[WARN] fetch %s: %v", sym, err)
					continue
				}
				mu.Lock()
				results[rec.Symbol] = rec
				mu.Unlock()
			}
		}()
	}
	for _, sym := range symbols {
		jobs <- sym
	}
	close(jobs)
	wg.Wait()
	return results
}

// GetCompanyInfo retrieves company fundamentals with the same read-through
// policy as GetMarketData, under the longer company-info TTL.
func (m *Manager) GetCompanyInfo(symbol string, forceRefresh bool) (*model.CompanyInfo, error) {
	sym := model.NormalizeSymbol(symbol)
	key := cache.Key(sym, cache.KindCompanyInfo)

	if !forceRefresh {
		if data, ok := m.cache.Get(key); ok {
			var info model.CompanyInfo
			if err := json.Unmarshal(data, &info); err != nil {
				log.Printf("[WARN] corrupt cached company info for %s, refetching: %v", sym, err)
			} else {
				return &info, nil
			}
		}
	}

	info, err := m.client.GetCompanyInfo(sym)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(info); err != nil {
		log.Printf("[WARN] marshal company info for cache %s: %v", sym, err)
	} else if err := m.cache.Set(key, data, m.cfg.CompanyInfoTTL); err != nil {
		log.Printf("[WARN] cache write-back %s: %v", sym, err)
	}
	return info, nil
}

// ClearCache drops cached entries; both arguments empty clears everything.
func (m *Manager) ClearCache(symbol, kind string) int {
	return m.cache.Clear(symbol, kind)
}

// CacheStats exposes the cache counters to the host application.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

func (m *Manager) recordFetch(symbol string, rec *model.MarketRecord, err error, elapsed time.Duration) {
	evt := &recorder.FetchEvent{Symbol: symbol, Elapsed: elapsed}
	if err != nil {
		evt.Error = err.Error()
	} else {
		evt.Source = rec.Source
		evt.Bars = len(rec.Bars)
	}
	if rerr := m.rec.RecordFetch(evt); rerr != nil {
		log.Printf("[ERROR] record fetch event: %v", rerr)
	}
}
