package provider

import (
	"errors"
	"fmt"
	"log"
	"time"

	"marketdata/internal/model"
)

// Client tries each configured fetcher in preference order and returns the
// first successful result. It is the only fallback point in the subsystem:
// callers above it never see which provider answered except through the
// record's Source field.
type Client struct {
	fetchers []Fetcher
}

// NewClient creates a multi-source client. Fetcher order is the default
// preference order.
func NewClient(fetchers ...Fetcher) *Client {
	return &Client{fetchers: fetchers}
}

// Sources returns the names of all configured fetchers in default order.
func (c *Client) Sources() []string {
	names := make([]string, len(c.fetchers))
	for i, f := range c.fetchers {
		names[i] = f.Name()
	}
	return names
}

// ordered returns the fetchers with the preferred source (if any) first.
func (c *Client) ordered(preferred string) []Fetcher {
	if preferred == "" {
		return c.fetchers
	}
	ordered := make([]Fetcher, 0, len(c.fetchers))
	for _, f := range c.fetchers {
		if f.Name() == preferred {
			ordered = append(ordered, f)
		}
	}
	for _, f := range c.fetchers {
		if f.Name() != preferred {
			ordered = append(ordered, f)
		}
	}
	return ordered
}

// GetMarketData fetches bars for the symbol, falling back across providers.
// It fails only when every provider fails.
func (c *Client) GetMarketData(symbol, period, preferred string) (*model.MarketRecord, error) {
	sym := model.NormalizeSymbol(symbol)
	var errs []error

	for _, f := range c.ordered(preferred) {
		bars, err := f.FetchBars(sym, period)
		if err != nil {
			if !errors.Is(err, ErrDisabled) {
				log.Printf("[WARN] provider %s failed for %s: %v", f.Name(), sym, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		return &model.MarketRecord{
			Symbol:    sym,
			Source:    f.Name(),
			FetchedAt: time.Now(),
			Bars:      bars,
		}, nil
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", sym, errors.Join(errs...))
}

// GetCompanyInfo fetches company fundamentals with the same fallback policy.
func (c *Client) GetCompanyInfo(symbol string) (*model.CompanyInfo, error) {
	sym := model.NormalizeSymbol(symbol)
	var errs []error

	for _, f := range c.fetchers {
		info, err := f.FetchCompanyInfo(sym)
		if err != nil {
			if !errors.Is(err, ErrDisabled) {
				log.Printf("[WARN] provider %s company info failed for %s: %v", f.Name(), sym, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		return info, nil
	}
	return nil, fmt.Errorf("all providers failed for %s company info: %w", sym, errors.Join(errs...))
}
