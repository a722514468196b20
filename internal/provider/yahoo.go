package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"

	"marketdata/internal/model"
)

// YahooFetcher implements Fetcher using the Yahoo Finance public API.
// It requires no API key and serves as the default primary provider.
type YahooFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy support.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		BaseURL: "https://query1.finance.yahoo.com",
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// validRanges are the period strings the chart API accepts directly.
var validRanges = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "max": true,
}

// FetchBars fetches daily bars for the given period (e.g. "1mo", "1y").
func (f *YahooFetcher) FetchBars(symbol, period string) ([]model.Bar, error) {
	rng := period
	if !validRanges[rng] {
		rng = "1mo"
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		f.BaseURL, url.PathEscape(model.NormalizeSymbol(symbol)), rng)

	body, err := f.getJSON(u)
	if err != nil {
		return nil, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: missing quote block for %s", symbol)
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))
	skipped := 0

	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			skipped++
			continue
		}
		o, ok1 := toFloat(quote.Open[i])
		h, ok2 := toFloat(quote.High[i])
		l, ok3 := toFloat(quote.Low[i])
		c, ok4 := toFloat(quote.Close[i])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			skipped++ // null bars on holidays, or non-numeric garbage
			continue
		}
		var vol float64
		if i < len(quote.Volume) {
			vol, _ = toFloat(quote.Volume[i])
		}
		bar := model.Bar{Date: time.Unix(ts, 0), Open: o, High: h, Low: l, Close: c, Volume: vol}
		if !bar.Valid() {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}

	if skipped > 0 {
		log.Printf("[WARN] yahoo: skipped %d malformed data points for %s", skipped, symbol)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo: all %d data points malformed for %s", skipped, symbol)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// yahooSummary is the subset of the quoteSummary response we flatten into
// CompanyInfo fields.
type yahooSummary struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile  map[string]interface{} `json:"assetProfile"`
			SummaryDetail map[string]interface{} `json:"summaryDetail"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// FetchCompanyInfo fetches company fundamentals via the quoteSummary API.
func (f *YahooFetcher) FetchCompanyInfo(symbol string) (*model.CompanyInfo, error) {
	sym := model.NormalizeSymbol(symbol)
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=assetProfile,summaryDetail",
		f.BaseURL, url.PathEscape(sym))

	body, err := f.getJSON(u)
	if err != nil {
		return nil, err
	}

	var summary yahooSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("yahoo decode summary: %w", err)
	}
	if summary.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", summary.QuoteSummary.Error.Description)
	}
	if len(summary.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no company info for %s", sym)
	}

	fields := make(map[string]string)
	res := summary.QuoteSummary.Result[0]
	flattenInto(fields, res.AssetProfile)
	flattenInto(fields, res.SummaryDetail)
	if len(fields) == 0 {
		return nil, fmt.Errorf("yahoo: empty company info for %s", sym)
	}

	return &model.CompanyInfo{
		Symbol:    sym,
		Source:    f.Name(),
		FetchedAt: time.Now(),
		Fields:    fields,
	}, nil
}

// flattenInto copies scalar values from a loosely-typed module map into the
// flat field map. Yahoo wraps numbers as {"raw": n, "fmt": "..."}; the raw
// value wins.
func flattenInto(dst map[string]string, src map[string]interface{}) {
	for k, v := range src {
		switch val := v.(type) {
		case string:
			dst[k] = val
		case float64:
			dst[k] = fmt.Sprintf("%g", val)
		case bool:
			dst[k] = fmt.Sprintf("%t", val)
		case map[string]interface{}:
			if raw, ok := val["raw"]; ok {
				if n, isNum := raw.(float64); isNum {
					dst[k] = fmt.Sprintf("%g", n)
				}
			}
		}
	}
}

func (f *YahooFetcher) getJSON(u string) ([]byte, error) {
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
