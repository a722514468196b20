package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Payload kinds. The kind is part of the cache key, so the same symbol can
// hold independent market-data and company-info entries.
const (
	KindMarketData  = "market_data"
	KindCompanyInfo = "company_info"
)

const indexFile = "index.json"

// entry is the per-payload metadata persisted in the index. Payload bytes
// live in their own file next to the index.
type entry struct {
	Key       string    `json:"key"`
	File      string    `json:"file"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int64     `json:"size"`
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// index is the persisted bookkeeping for all entries. Invariant: TotalSize
// equals the sum of all entries' Size fields.
type index struct {
	Entries   map[string]*entry `json:"entries"`
	TotalSize int64             `json:"total_size"`
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	TotalSize int64
}

// Cache is a file-backed key-value store with per-entry TTL and a global
// byte budget enforced by oldest-creation-first eviction. All operations
// are safe for concurrent use; the single mutex also covers the eviction
// pass so its view of TotalSize cannot be invalidated by a concurrent Set.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	idx      index

	hits      uint64
	misses    uint64
	evictions uint64
}

// New opens (or creates) a cache directory. A missing or corrupt index
// degrades to an empty cache with a warning, never a startup failure.
func New(dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		idx:      index{Entries: make(map[string]*entry)},
	}
	c.loadIndex()
	return c, nil
}

// Key derives the deterministic cache key for a (symbol, kind) pair.
// Symbols are sanitized so distinct pairs can never collide: every character
// outside [A-Z0-9.^-] becomes '-', and '_' only ever appears as the
// kind/symbol separator.
func Key(symbol, kind string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	var b strings.Builder
	for _, r := range sym {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '^', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.ToLower(kind) + "_" + b.String()
}

// Get returns the payload for key, or false on a miss. A present-but-expired
// entry counts as a miss and is deleted as a side effect.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.idx.Entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		c.removeLocked(e)
		c.persistIndexLocked()
		os.Remove(filepath.Join(c.dir, e.File))
		c.misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(c.dir, e.File))
	if err != nil {
		// Disk trouble degrades to a miss; drop the dangling index entry so
		// the size invariant stays true.
		log.Printf("[WARN] cache read %s: %v", key, err)
		c.removeLocked(e)
		c.persistIndexLocked()
		c.misses++
		return nil, false
	}
	c.hits++
	return data, true
}

// Set stores payload under key with the given TTL, then evicts
// oldest-created entries if the byte budget is exceeded.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file := key + ".json"
	// Payload first, index second: a crash in between leaves at worst an
	// orphaned payload file, never an index entry pointing at nothing.
	if err := writeFileAtomic(filepath.Join(c.dir, file), payload); err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}

	now := time.Now()
	if old, ok := c.idx.Entries[key]; ok {
		c.idx.TotalSize -= old.Size
	}
	c.idx.Entries[key] = &entry{
		Key:       key,
		File:      file,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Size:      int64(len(payload)),
	}
	c.idx.TotalSize += int64(len(payload))

	evicted := c.evictOverBudgetLocked()
	if err := c.persistIndexLocked(); err != nil {
		return err
	}
	for _, e := range evicted {
		os.Remove(filepath.Join(c.dir, e.File))
	}
	return nil
}

// Clear removes entries. Both arguments empty clears everything; a symbol
// alone clears all kinds for that symbol; a kind alone clears that kind.
func (c *Cache) Clear(symbol, kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*entry
	for _, e := range c.idx.Entries {
		if matchesKey(e.Key, symbol, kind) {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		c.removeLocked(e)
	}
	c.persistIndexLocked()
	for _, e := range doomed {
		os.Remove(filepath.Join(c.dir, e.File))
	}
	return len(doomed)
}

func matchesKey(key, symbol, kind string) bool {
	if symbol == "" && kind == "" {
		return true
	}
	if symbol != "" && kind != "" {
		return key == Key(symbol, kind)
	}
	if kind != "" {
		return strings.HasPrefix(key, strings.ToLower(kind)+"_")
	}
	suffix := strings.TrimPrefix(Key(symbol, "x"), "x")
	return strings.HasSuffix(key, suffix)
}

// EvictExpired removes all expired entries and sweeps payload files the
// index no longer references. Returns the number of entries removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var doomed []*entry
	for _, e := range c.idx.Entries {
		if e.expired(now) {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		c.removeLocked(e)
		c.evictions++
	}
	c.persistIndexLocked()
	for _, e := range doomed {
		os.Remove(filepath.Join(c.dir, e.File))
	}
	c.sweepOrphansLocked()
	return len(doomed)
}

// Stats returns a snapshot of the hit/miss/eviction counters and size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.idx.Entries),
		TotalSize: c.idx.TotalSize,
	}
}

// evictOverBudgetLocked removes oldest-created entries until the tracked
// total is back under the budget. Creation time, not last access: access
// tracking would cost a write on every read. Caller holds mu and is
// responsible for persisting the index and deleting the returned files.
func (c *Cache) evictOverBudgetLocked() []*entry {
	if c.maxBytes <= 0 || c.idx.TotalSize <= c.maxBytes {
		return nil
	}
	entries := make([]*entry, 0, len(c.idx.Entries))
	for _, e := range c.idx.Entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	var evicted []*entry
	for _, e := range entries {
		if c.idx.TotalSize <= c.maxBytes {
			break
		}
		c.removeLocked(e)
		c.evictions++
		evicted = append(evicted, e)
		log.Printf("[INFO] cache evicted %s (%d bytes) for size budget", e.Key, e.Size)
	}
	return evicted
}

// removeLocked drops an entry from the index and the size total. It does not
// touch the payload file; callers delete it after the index is persisted.
func (c *Cache) removeLocked(e *entry) {
	delete(c.idx.Entries, e.Key)
	c.idx.TotalSize -= e.Size
}

func (c *Cache) persistIndexLocked() error {
	data, err := json.MarshalIndent(&c.idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(c.dir, indexFile), data); err != nil {
		log.Printf("[WARN] persist cache index: %v", err)
		return fmt.Errorf("persist cache index: %w", err)
	}
	return nil
}

// loadIndex restores bookkeeping from disk. Entries whose payload file is
// gone are dropped, and a size-total divergence triggers a recount instead
// of silent drift.
func (c *Cache) loadIndex() {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[WARN] read cache index: %v, starting empty", err)
		}
		return
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		log.Printf("[WARN] corrupt cache index: %v, starting empty", err)
		return
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*entry)
	}

	var sum int64
	for key, e := range idx.Entries {
		if _, err := os.Stat(filepath.Join(c.dir, e.File)); err != nil {
			log.Printf("[WARN] cache entry %s missing payload, dropping", key)
			delete(idx.Entries, key)
			continue
		}
		sum += e.Size
	}
	if sum != idx.TotalSize {
		log.Printf("[WARN] cache index size drift (recorded %d, actual %d), repaired", idx.TotalSize, sum)
		idx.TotalSize = sum
	}
	c.idx = idx
	log.Printf("[INFO] cache index loaded: %d entries, %d bytes", len(idx.Entries), idx.TotalSize)
}

// sweepOrphansLocked removes payload files that no index entry references,
// the residue of a crash between payload write and index update.
func (c *Cache) sweepOrphansLocked() {
	referenced := make(map[string]bool, len(c.idx.Entries)+1)
	referenced[indexFile] = true
	for _, e := range c.idx.Entries {
		referenced[e.File] = true
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		log.Printf("[WARN] cache orphan sweep: %v", err)
		return
	}
	for _, f := range files {
		if f.IsDir() || referenced[f.Name()] || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		log.Printf("[INFO] cache removing orphaned payload %s", f.Name())
		os.Remove(filepath.Join(c.dir, f.Name()))
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
