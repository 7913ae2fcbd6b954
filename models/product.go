// Package models defines data structures for the price sync run.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LocalProduct is one internal catalog record whose price this system
// keeps fresh. The catalog store owns it; the sync only reads it and
// issues targeted price updates by ID.
type LocalProduct struct {
	ID           int64            `json:"id"`
	ProductLink  string           `json:"product_link,omitempty"`
	DisplayName  string           `json:"display_name,omitempty"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
	LastUpdate   *time.Time       `json:"last_update,omitempty"`
}

// Linkable reports whether the record carries enough identity to be
// matched against the remote catalog at all.
func (p *LocalProduct) Linkable() bool {
	return strings.TrimSpace(p.ProductLink) != "" || strings.TrimSpace(p.DisplayName) != ""
}

// PriceText is a raw wire price. Remote feeds send prices as strings,
// numbers, or null; all three are carried verbatim and validated later
// by pricing.ParsePrice so one malformed value never fails a whole page.
type PriceText string

// UnmarshalJSON accepts string, number, or null price values.
func (p *PriceText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode price string: %w", err)
		}
		*p = PriceText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		// Carry the raw token; validation rejects it downstream.
		*p = PriceText(string(trimmed))
		return nil
	}
	*p = PriceText(n.String())
	return nil
}

// MonitoredURL is one storefront URL the remote service tracks for a
// product, with the price it last observed there.
type MonitoredURL struct {
	URL   string    `json:"url"`
	Price PriceText `json:"price,omitempty"`
}

// SiteSummary is one retailer's observed price in the summary-shaped
// remote response.
type SiteSummary struct {
	Site  string
	Price PriceText
}

// SiteSummaries preserves the insertion order of the remote summary
// object. Order matters: the first positively priced site wins.
type SiteSummaries []SiteSummary

// UnmarshalJSON walks the object token by token because encoding/json
// maps discard key order.
func (s *SiteSummaries) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode site summary: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("site summary: expected object, got %v", tok)
	}

	var out SiteSummaries
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode site summary key: %w", err)
		}
		site, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("site summary: non-string key %v", keyTok)
		}

		var entry struct {
			Price PriceText `json:"price"`
		}
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("decode site %q: %w", site, err)
		}
		out = append(out, SiteSummary{Site: site, Price: entry.Price})
	}
	*s = out
	return nil
}

// MarshalJSON emits the summary object in stored order.
func (s SiteSummaries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Site)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(struct {
			Price string `json:"price,omitempty"`
		}{Price: string(entry.Price)})
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RemoteProduct is one tracked product in the remote price-monitoring
// catalog. It is an immutable snapshot for the duration of a run.
//
// The remote service answers in two shapes: per-URL prices and per-site
// summaries. Both land on this one type; callers check capabilities
// instead of switching on response shape.
type RemoteProduct struct {
	Name          string         `json:"name"`
	MonitoredURLs []MonitoredURL `json:"urls,omitempty"`
	SiteSummaries SiteSummaries  `json:"summary,omitempty"`
}

// HasURLPrices reports whether the product carries per-URL prices.
func (p *RemoteProduct) HasURLPrices() bool {
	return len(p.MonitoredURLs) > 0
}

// HasSiteSummary reports whether the product carries per-site summary
// prices.
func (p *RemoteProduct) HasSiteSummary() bool {
	return len(p.SiteSummaries) > 0
}
