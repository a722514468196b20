package provider

import (
	"errors"
	"testing"

	"marketdata/internal/model"
)

func TestClient_PrimarySuccess(t *testing.T) {
	primary := &MockFetcher{FetchName: "primary", Price: 100}
	secondary := &MockFetcher{FetchName: "secondary", Price: 200}
	c := NewClient(primary, secondary)

	rec, err := c.GetMarketData("aapl", "1mo", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Source != "primary" {
		t.Errorf("expected primary source, got %s", rec.Source)
	}
	if rec.Symbol != "AAPL" {
		t.Errorf("expected normalized symbol, got %s", rec.Symbol)
	}
	if secondary.Calls != 0 {
		t.Errorf("secondary should not be called, got %d calls", secondary.Calls)
	}
}

func TestClient_FallbackOnFailure(t *testing.T) {
	primary := &MockFetcher{FetchName: "primary", BarsErr: errors.New("network down")}
	secondary := &MockFetcher{FetchName: "secondary", Price: 200}
	c := NewClient(primary, secondary)

	rec, err := c.GetMarketData("AAPL", "1mo", "")
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if rec.Source != "secondary" {
		t.Errorf("expected secondary source, got %s", rec.Source)
	}
}

func TestClient_AllProvidersFail(t *testing.T) {
	a := &MockFetcher{FetchName: "a", BarsErr: errors.New("down")}
	b := &MockFetcher{FetchName: "b", BarsErr: ErrDisabled}
	c := NewClient(a, b)

	if _, err := c.GetMarketData("AAPL", "1mo", ""); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestClient_SourcePreference(t *testing.T) {
	a := &MockFetcher{FetchName: "a", Price: 100}
	b := &MockFetcher{FetchName: "b", Price: 200}
	c := NewClient(a, b)

	rec, err := c.GetMarketData("AAPL", "1mo", "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Source != "b" {
		t.Errorf("expected preferred source b, got %s", rec.Source)
	}
	if a.Calls != 0 {
		t.Errorf("non-preferred source should be untouched on success, got %d calls", a.Calls)
	}
}

func TestClient_CompanyInfoFallback(t *testing.T) {
	a := &MockFetcher{FetchName: "a", InfoErr: errors.New("no overview")}
	b := &MockFetcher{FetchName: "b", Info: &model.CompanyInfo{
		Symbol: "AAPL", Source: "b", Fields: map[string]string{"Name": "Apple Inc"},
	}}
	c := NewClient(a, b)

	info, err := c.GetCompanyInfo("aapl")
	if err != nil {
		t.Fatalf("get company info: %v", err)
	}
	if info.Source != "b" {
		t.Errorf("expected fallback source b, got %s", info.Source)
	}
}
