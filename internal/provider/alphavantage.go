package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"marketdata/internal/model"
)

// AlphaVantageFetcher implements Fetcher using the Alpha Vantage REST API.
// The free tier is limited to a handful of calls per minute, so every request
// first passes through the fetcher's own call-log limiter; bursty concurrent
// callers queue up here rather than getting rejected upstream.
type AlphaVantageFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	limiter *callLimiter
}

// NewAlphaVantageFetcher creates a rate-limited Alpha Vantage fetcher.
// An empty apiKey yields a disabled fetcher whose calls fail fast with
// ErrDisabled instead of a startup failure.
func NewAlphaVantageFetcher(apiKey, proxyURL string, callsPerMinute int) *AlphaVantageFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &AlphaVantageFetcher{
		BaseURL: "https://www.alphavantage.co",
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: newCallLimiter(callsPerMinute, 60*time.Second),
	}
}

func (f *AlphaVantageFetcher) Name() string { return "alphavantage" }

// periodDays maps period strings to an approximate calendar-day cutoff used
// to trim the daily series.
var periodDays = map[string]int{
	"1d": 1, "5d": 7, "1mo": 31, "3mo": 93, "6mo": 186,
	"1y": 366, "2y": 731, "5y": 1827,
}

// avDailyPoint is one raw entry of the TIME_SERIES_DAILY response.
type avDailyPoint struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// FetchBars fetches and normalizes the daily series for the given period.
func (f *AlphaVantageFetcher) FetchBars(symbol, period string) ([]model.Bar, error) {
	if f.APIKey == "" {
		return nil, ErrDisabled
	}
	sym := model.NormalizeSymbol(symbol)

	days, ok := periodDays[period]
	if !ok {
		days = 31
	}
	outputSize := "compact"
	if days > 100 {
		outputSize = "full"
	}

	f.limiter.Wait()
	u := fmt.Sprintf("%s/query?function=TIME_SERIES_DAILY&symbol=%s&outputsize=%s&apikey=%s",
		f.BaseURL, url.QueryEscape(sym), outputSize, url.QueryEscape(f.APIKey))
	body, err := f.getJSON(u)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ErrorMessage string                  `json:"Error Message"`
		Note         string                  `json:"Note"`
		Information  string                  `json:"Information"`
		Series       map[string]avDailyPoint `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("alphavantage decode: %w", err)
	}
	if payload.ErrorMessage != "" {
		return nil, fmt.Errorf("alphavantage api error: %s", payload.ErrorMessage)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("alphavantage rate notice: %s", payload.Note)
	}
	if payload.Information != "" {
		return nil, fmt.Errorf("alphavantage notice: %s", payload.Information)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("alphavantage: no data returned for %s", sym)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	bars := make([]model.Bar, 0, len(payload.Series))
	skipped := 0

	for dateStr, p := range payload.Series {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			skipped++
			continue
		}
		if date.Before(cutoff) {
			continue
		}
		bar, err := p.toBar(date)
		if err != nil {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}

	if skipped > 0 {
		log.Printf("[WARN] alphavantage: skipped %d malformed data points for %s", skipped, sym)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("alphavantage: all %d data points malformed for %s", skipped, sym)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func (p avDailyPoint) toBar(date time.Time) (model.Bar, error) {
	o, err := strconv.ParseFloat(p.Open, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse open %q: %w", p.Open, err)
	}
	h, err := strconv.ParseFloat(p.High, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse high %q: %w", p.High, err)
	}
	l, err := strconv.ParseFloat(p.Low, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse low %q: %w", p.Low, err)
	}
	c, err := strconv.ParseFloat(p.Close, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse close %q: %w", p.Close, err)
	}
	v, err := strconv.ParseFloat(p.Volume, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse volume %q: %w", p.Volume, err)
	}
	bar := model.Bar{Date: date, Open: o, High: h, Low: l, Close: c, Volume: v}
	if !bar.Valid() {
		return model.Bar{}, fmt.Errorf("inconsistent OHLC for %s", date.Format("2006-01-02"))
	}
	return bar, nil
}

// FetchCompanyInfo fetches the OVERVIEW endpoint, which is already a flat
// string map of fundamentals.
func (f *AlphaVantageFetcher) FetchCompanyInfo(symbol string) (*model.CompanyInfo, error) {
	if f.APIKey == "" {
		return nil, ErrDisabled
	}
	sym := model.NormalizeSymbol(symbol)

	f.limiter.Wait()
	u := fmt.Sprintf("%s/query?function=OVERVIEW&symbol=%s&apikey=%s",
		f.BaseURL, url.QueryEscape(sym), url.QueryEscape(f.APIKey))
	body, err := f.getJSON(u)
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("alphavantage decode overview: %w", err)
	}
	if msg := fields["Error Message"]; msg != "" {
		return nil, fmt.Errorf("alphavantage api error: %s", msg)
	}
	if note := fields["Note"]; note != "" {
		return nil, fmt.Errorf("alphavantage rate notice: %s", note)
	}
	delete(fields, "Information")
	if len(fields) == 0 || fields["Symbol"] == "" {
		return nil, fmt.Errorf("alphavantage: no company info for %s", sym)
	}

	return &model.CompanyInfo{
		Symbol:    sym,
		Source:    f.Name(),
		FetchedAt: time.Now(),
		Fields:    fields,
	}, nil
}

func (f *AlphaVantageFetcher) getJSON(u string) ([]byte, error) {
	resp, err := f.Client.Get(u)
	if err != nil {
		return nil, fmt.Errorf("alphavantage fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
