package provider

import (
	"errors"
	"time"

	"marketdata/internal/model"
)

// ErrDisabled is returned by a fetcher that was constructed without the
// credentials it needs. Callers treat it like any other provider failure.
var ErrDisabled = errors.New("provider disabled: no API key configured")

// Fetcher defines the interface for fetching market data from one upstream
// provider. Implementations normalize the provider's native response shape
// into model.Bar sequences sorted ascending by date.
type Fetcher interface {
	FetchBars(symbol, period string) ([]model.Bar, error)
	FetchCompanyInfo(symbol string) (*model.CompanyInfo, error)
	Name() string
}

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price     float64
	Bars      []model.Bar
	Info      *model.CompanyInfo
	BarsErr   error
	InfoErr   error
	FetchName string

	// Calls counts FetchBars invocations; tests read it after the fact.
	Calls int
}

func (m *MockFetcher) Name() string {
	if m.FetchName != "" {
		return m.FetchName
	}
	return "mock"
}

func (m *MockFetcher) FetchBars(_ string, period string) ([]model.Bar, error) {
	m.Calls++
	if m.BarsErr != nil {
		return nil, m.BarsErr
	}
	if m.Bars != nil {
		return m.Bars, nil
	}
	return GenerateBars(m.Price, 30), nil
}

func (m *MockFetcher) FetchCompanyInfo(symbol string) (*model.CompanyInfo, error) {
	if m.InfoErr != nil {
		return nil, m.InfoErr
	}
	if m.Info != nil {
		return m.Info, nil
	}
	return &model.CompanyInfo{
		Symbol:    model.NormalizeSymbol(symbol),
		Source:    m.Name(),
		FetchedAt: time.Now(),
		Fields:    map[string]string{"Name": "Mock Corp", "Sector": "Testing"},
	}, nil
}

// GenerateBars produces a synthetic ascending bar series around a base price.
func GenerateBars(basePrice float64, count int) []model.Bar {
	if basePrice == 0 {
		basePrice = 100
	}
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Date:   time.Now().AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
