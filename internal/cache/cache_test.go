package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxBytes int64) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func TestKey_Deterministic(t *testing.T) {
	if Key("aapl", KindMarketData) != Key("AAPL", KindMarketData) {
		t.Error("key should be case-insensitive on symbol")
	}
	if Key("AAPL", KindMarketData) == Key("AAPL", KindCompanyInfo) {
		t.Error("distinct kinds must yield distinct keys")
	}
	if Key("AAPL", KindMarketData) == Key("MSFT", KindMarketData) {
		t.Error("distinct symbols must yield distinct keys")
	}
	// Sanitized characters must not collapse distinct pairs onto one key
	// in a way that crosses the kind/symbol separator.
	if Key("BRK_B", KindMarketData) == Key("BRK.B", KindMarketData) {
		// '_' and '.' sanitize differently ('.' is kept)
		t.Error("expected different keys for BRK_B and BRK.B")
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	c := newTestCache(t, 0)
	key := Key("AAPL", KindMarketData)
	payload := []byte(`{"symbol":"AAPL","bars":[]}`)

	if err := c.Set(key, payload, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %s", got)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 0 {
		t.Errorf("expected 1 hit 0 misses, got %d/%d", st.Hits, st.Misses)
	}
	if st.TotalSize != int64(len(payload)) {
		t.Errorf("expected total size %d, got %d", len(payload), st.TotalSize)
	}
}

func TestGet_Expired(t *testing.T) {
	c := newTestCache(t, 0)
	key := Key("AAPL", KindMarketData)

	if err := c.Set(key, []byte("stale"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss for expired entry")
	}
	st := c.Stats()
	if st.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", st.Misses)
	}
	if st.Entries != 0 || st.TotalSize != 0 {
		t.Errorf("expired entry should be gone, got %d entries %d bytes", st.Entries, st.TotalSize)
	}
}

func TestGet_AbsentIsMiss(t *testing.T) {
	c := newTestCache(t, 0)
	if _, ok := c.Get(Key("NOPE", KindMarketData)); ok {
		t.Fatal("expected miss")
	}
	if st := c.Stats(); st.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", st.Misses)
	}
}

func TestEviction_SizeBudget(t *testing.T) {
	payload := []byte("0123456789") // 10 bytes
	c := newTestCache(t, 15)        // room for one entry, not two

	if err := c.Set(Key("AAPL", KindMarketData), payload, time.Hour); err != nil {
		t.Fatalf("set AAPL: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // distinct creation times
	if err := c.Set(Key("MSFT", KindMarketData), payload, time.Hour); err != nil {
		t.Fatalf("set MSFT: %v", err)
	}

	if _, ok := c.Get(Key("AAPL", KindMarketData)); ok {
		t.Error("AAPL should have been evicted (oldest created)")
	}
	if _, ok := c.Get(Key("MSFT", KindMarketData)); !ok {
		t.Error("MSFT should survive eviction")
	}
	st := c.Stats()
	if st.TotalSize > 15 {
		t.Errorf("total size %d exceeds budget", st.TotalSize)
	}
	if st.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", st.Evictions)
	}
}

func TestEviction_OldestFirstOrder(t *testing.T) {
	payload := []byte("0123456789")
	c := newTestCache(t, 25) // fits two entries

	for _, sym := range []string{"A", "B", "C"} {
		if err := c.Set(Key(sym, KindMarketData), payload, time.Hour); err != nil {
			t.Fatalf("set %s: %v", sym, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, ok := c.Get(Key("A", KindMarketData)); ok {
		t.Error("A should be evicted")
	}
	for _, sym := range []string{"B", "C"} {
		if _, ok := c.Get(Key(sym, KindMarketData)); !ok {
			t.Errorf("%s should survive", sym)
		}
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 0)
	c.Set(Key("AAPL", KindMarketData), []byte("a"), time.Hour)
	c.Set(Key("AAPL", KindCompanyInfo), []byte("b"), time.Hour)
	c.Set(Key("MSFT", KindMarketData), []byte("c"), time.Hour)

	if n := c.Clear("AAPL", ""); n != 2 {
		t.Errorf("expected 2 cleared for AAPL, got %d", n)
	}
	if _, ok := c.Get(Key("MSFT", KindMarketData)); !ok {
		t.Error("MSFT should remain after symbol clear")
	}
	if n := c.Clear("", ""); n != 1 {
		t.Errorf("expected 1 cleared for full clear, got %d", n)
	}
	if st := c.Stats(); st.Entries != 0 || st.TotalSize != 0 {
		t.Errorf("cache should be empty, got %d entries %d bytes", st.Entries, st.TotalSize)
	}
}

func TestClear_ByKind(t *testing.T) {
	c := newTestCache(t, 0)
	c.Set(Key("AAPL", KindMarketData), []byte("a"), time.Hour)
	c.Set(Key("AAPL", KindCompanyInfo), []byte("b"), time.Hour)

	if n := c.Clear("", KindCompanyInfo); n != 1 {
		t.Errorf("expected 1 cleared by kind, got %d", n)
	}
	if _, ok := c.Get(Key("AAPL", KindMarketData)); !ok {
		t.Error("market data entry should remain")
	}
}

func TestEvictExpired(t *testing.T) {
	c := newTestCache(t, 0)
	c.Set(Key("OLD", KindMarketData), []byte("x"), 10*time.Millisecond)
	c.Set(Key("NEW", KindMarketData), []byte("y"), time.Hour)
	time.Sleep(20 * time.Millisecond)

	if n := c.EvictExpired(); n != 1 {
		t.Errorf("expected 1 expired entry removed, got %d", n)
	}
	if _, ok := c.Get(Key("NEW", KindMarketData)); !ok {
		t.Error("unexpired entry should remain")
	}
}

func TestIndex_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := Key("AAPL", KindMarketData)
	payload := []byte("persisted")
	if err := c.Set(key, payload, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := New(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get(key)
	if !ok {
		t.Fatal("expected hit after restart")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch after restart: got %s", got)
	}
	if st := reopened.Stats(); st.TotalSize != int64(len(payload)) {
		t.Errorf("size bookkeeping lost on restart: %d", st.TotalSize)
	}
}

func TestIndex_CorruptDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, indexFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir, 0)
	if err != nil {
		t.Fatalf("corrupt index must not fail startup: %v", err)
	}
	if st := c.Stats(); st.Entries != 0 {
		t.Errorf("expected empty cache, got %d entries", st.Entries)
	}
}

func TestIndex_SizeDriftRepaired(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	key := Key("AAPL", KindMarketData)
	if err := c.Set(key, []byte("0123456789"), time.Hour); err != nil {
		t.Fatal(err)
	}

	// Corrupt the recorded total; reload must recount instead of drifting.
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		t.Fatal(err)
	}
	drifted := bytes.Replace(data, []byte(`"total_size": 10`), []byte(`"total_size": 999`), 1)
	if bytes.Equal(drifted, data) {
		t.Fatal("test setup: total_size not found in index")
	}
	if err := os.WriteFile(filepath.Join(dir, indexFile), drifted, 0644); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if st := reopened.Stats(); st.TotalSize != 10 {
		t.Errorf("expected repaired total 10, got %d", st.TotalSize)
	}
}

func TestOrphanSweep(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a crash between payload write and index update.
	orphan := filepath.Join(dir, "market_data_GHOST.json")
	if err := os.WriteFile(orphan, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	c.EvictExpired()
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphaned payload should be swept")
	}
}
