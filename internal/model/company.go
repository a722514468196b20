package model

import "time"

// CompanyInfo holds company fundamentals as a flat field map. The cache layer
// treats the payload as opaque; only the providers know the field names.
type CompanyInfo struct {
	Symbol    string            `json:"symbol"`
	Source    string            `json:"source"`
	FetchedAt time.Time         `json:"fetched_at"`
	Fields    map[string]string `json:"fields"`
}

// Field returns the named fundamental, or "" when absent.
func (c *CompanyInfo) Field(name string) string {
	if c == nil {
		return ""
	}
	return c.Fields[name]
}
