// Package pricing validates wire prices and extracts the authoritative
// current price from a matched remote product.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bpaden91/prisync-price-sync/models"
)

// ParsePrice parses a raw wire price into a decimal. Absent, non-numeric,
// zero, and negative values are all rejected: a price that is not a
// finite positive number is never written to the catalog.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("price is absent")
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %q is not numeric", raw)
	}
	if value.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("price %s is not positive", value)
	}
	return value, nil
}

// Usable reports whether a raw wire price parses as a positive decimal.
func Usable(raw string) bool {
	_, err := ParsePrice(raw)
	return err == nil
}

// ExtractPrice derives a single positive price from a match result.
// ok is false when the matched product yields no usable price.
func ExtractPrice(match models.MatchResult) (decimal.Decimal, bool) {
	if match.Product == nil {
		return decimal.Zero, false
	}

	switch match.Kind {
	case models.PriceFromMonitoredURL:
		if match.URLIndex < 0 || match.URLIndex >= len(match.Product.MonitoredURLs) {
			return decimal.Zero, false
		}
		value, err := ParsePrice(string(match.Product.MonitoredURLs[match.URLIndex].Price))
		if err != nil {
			return decimal.Zero, false
		}
		return value, true

	case models.PriceFromSiteSummary:
		// The remote service guarantees no canonical site, so the first
		// site with a positive price is authoritative for this run.
		for _, site := range match.Product.SiteSummaries {
			if value, err := ParsePrice(string(site.Price)); err == nil {
				return value, true
			}
		}
	}

	return decimal.Zero, false
}
