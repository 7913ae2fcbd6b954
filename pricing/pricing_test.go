package pricing

import (
	"testing"

	"github.com/bpaden91/prisync-price-sync/models"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "plain decimal", input: "129.99", expected: "129.99"},
		{name: "integer", input: "42", expected: "42"},
		{name: "small positive", input: "0.01", expected: "0.01"},
		{name: "surrounding whitespace", input: " 19.90 ", expected: "19.9"},
		{name: "zero rejected", input: "0", wantErr: true},
		{name: "zero decimal rejected", input: "0.00", wantErr: true},
		{name: "negative rejected", input: "-5.00", wantErr: true},
		{name: "absent rejected", input: "", wantErr: true},
		{name: "blank rejected", input: "   ", wantErr: true},
		{name: "non-numeric rejected", input: "n/a", wantErr: true},
		{name: "currency symbol rejected", input: "$12.99", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := ParsePrice(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePrice(%q) = %s, want error", tt.input, value)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q): %v", tt.input, err)
			}
			if value.String() != tt.expected {
				t.Fatalf("ParsePrice(%q) = %s, want %s", tt.input, value, tt.expected)
			}
		})
	}
}

func TestExtractPriceFromMonitoredURL(t *testing.T) {
	product := &models.RemoteProduct{
		Name: "Classic Tote",
		MonitoredURLs: []models.MonitoredURL{
			{URL: "https://a.example/p/1", Price: ""},
			{URL: "https://b.example/p/1", Price: "129.99"},
		},
	}

	price, ok := ExtractPrice(models.MatchResult{Product: product, Kind: models.PriceFromMonitoredURL, URLIndex: 1})
	if !ok {
		t.Fatalf("expected a usable price")
	}
	if price.String() != "129.99" {
		t.Fatalf("price = %s, want 129.99", price)
	}

	// The pinned entry is authoritative; an unpriced pin yields nothing.
	if _, ok := ExtractPrice(models.MatchResult{Product: product, Kind: models.PriceFromMonitoredURL, URLIndex: 0}); ok {
		t.Fatalf("unpriced monitored URL must not yield a price")
	}

	if _, ok := ExtractPrice(models.MatchResult{Product: product, Kind: models.PriceFromMonitoredURL, URLIndex: 9}); ok {
		t.Fatalf("out-of-range index must not yield a price")
	}
}

func TestExtractPriceFromSiteSummaryTakesFirstPositive(t *testing.T) {
	product := &models.RemoteProduct{
		Name: "Classic Tote",
		SiteSummaries: models.SiteSummaries{
			{Site: "site_a", Price: ""},
			{Site: "site_b", Price: "0"},
			{Site: "site_c", Price: "89.90"},
			{Site: "site_d", Price: "79.90"},
		},
	}

	price, ok := ExtractPrice(models.MatchResult{Product: product, Kind: models.PriceFromSiteSummary})
	if !ok {
		t.Fatalf("expected a usable price")
	}
	if price.String() != "89.9" {
		t.Fatalf("price = %s, want 89.9", price)
	}
}

func TestExtractPriceNoUsableSource(t *testing.T) {
	product := &models.RemoteProduct{
		Name:          "Classic Tote",
		SiteSummaries: models.SiteSummaries{{Site: "site_a", Price: "-1"}},
	}

	if _, ok := ExtractPrice(models.MatchResult{Product: product, Kind: models.PriceFromSiteSummary}); ok {
		t.Fatalf("negative-only summary must not yield a price")
	}
	if _, ok := ExtractPrice(models.MatchResult{}); ok {
		t.Fatalf("empty match must not yield a price")
	}
}
