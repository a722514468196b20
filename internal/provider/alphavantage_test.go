package provider

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newAVTestFetcher(handler http.HandlerFunc) (*AlphaVantageFetcher, *httptest.Server) {
	srv := httptest.NewServer(handler)
	f := NewAlphaVantageFetcher("test-key", "", 100)
	f.BaseURL = srv.URL
	return f, srv
}

func TestAlphaVantage_DisabledWithoutKey(t *testing.T) {
	f := NewAlphaVantageFetcher("", "", 5)
	if _, err := f.FetchBars("AAPL", "1mo"); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
	if _, err := f.FetchCompanyInfo("AAPL"); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestAlphaVantageFetchBars_NormalizesAndSkipsMalformed(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	older := time.Now().AddDate(0, 0, -2).Format("2006-01-02")

	f, srv := newAVTestFetcher(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
		  "Meta Data": {"2. Symbol": "AAPL"},
		  "Time Series (Daily)": {
		    "` + today + `":     {"1. open": "101.0", "2. high": "103.0", "3. low": "100.0", "4. close": "102.0", "5. volume": "1000"},
		    "` + yesterday + `": {"1. open": "oops",  "2. high": "103.0", "3. low": "100.0", "4. close": "102.0", "5. volume": "1000"},
		    "` + older + `":     {"1. open": "99.0",  "2. high": "101.0", "3. low": "98.0",  "4. close": "100.0", "5. volume": "900"}
		  }
		}`))
	})
	defer srv.Close()

	bars, err := f.FetchBars("aapl", "1mo")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars (malformed skipped), got %d", len(bars))
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Error("bars not sorted ascending")
	}
}

func TestAlphaVantageFetchBars_RateNotice(t *testing.T) {
	f, srv := newAVTestFetcher(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`))
	})
	defer srv.Close()

	if _, err := f.FetchBars("AAPL", "1mo"); err == nil {
		t.Fatal("expected error for provider rate notice")
	}
}

func TestAlphaVantageFetchBars_EmptySeries(t *testing.T) {
	f, srv := newAVTestFetcher(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Meta Data": {}}`))
	})
	defer srv.Close()

	if _, err := f.FetchBars("AAPL", "1mo"); err == nil {
		t.Fatal("expected error for empty series")
	}
}

func TestAlphaVantageCompanyInfo(t *testing.T) {
	f, srv := newAVTestFetcher(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
		  "Symbol": "AAPL",
		  "Name": "Apple Inc",
		  "Sector": "TECHNOLOGY",
		  "MarketCapitalization": "3000000000000",
		  "PERatio": "29.5",
		  "Beta": "1.25"
		}`))
	})
	defer srv.Close()

	info, err := f.FetchCompanyInfo("aapl")
	if err != nil {
		t.Fatalf("fetch company info: %v", err)
	}
	if info.Field("Name") != "Apple Inc" {
		t.Errorf("expected Name, got %q", info.Field("Name"))
	}
	if info.Field("PERatio") != "29.5" {
		t.Errorf("expected PERatio, got %q", info.Field("PERatio"))
	}
	if info.Source != "alphavantage" {
		t.Errorf("expected source alphavantage, got %s", info.Source)
	}
}
