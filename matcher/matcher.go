// Package matcher selects the remote catalog entry for a local record.
//
// Matching is deliberately heuristic and deterministic: strategies run
// in a configured order, the first satisfying match wins, and ties
// inside a strategy are broken by catalog iteration order. Callers must
// not read business meaning into the tie-break.
package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bpaden91/prisync-price-sync/models"
	"github.com/bpaden91/prisync-price-sync/pricing"
	"github.com/bpaden91/prisync-price-sync/urlnorm"
)

// Strategy identifies one matching heuristic.
type Strategy string

const (
	// StrategyNameExact matches case-folded, trimmed names exactly.
	StrategyNameExact Strategy = "name"
	// StrategyNamePartial matches when one folded name contains the other.
	StrategyNamePartial Strategy = "name-partial"
	// StrategyURL matches normalized URLs exactly or by containment.
	StrategyURL Strategy = "url"
)

// DefaultStrategies is the full priority order.
var DefaultStrategies = []Strategy{StrategyNameExact, StrategyNamePartial, StrategyURL}

var (
	// ErrNoMatch reports that no remote product satisfied any enabled
	// strategy.
	ErrNoMatch = errors.New("no match found")
	// ErrNoPrice reports that a product matched but carried no usable
	// positive price anywhere.
	ErrNoPrice = errors.New("matched product has no usable price")
)

// ParseStrategies parses a comma-separated strategy list, preserving
// order.
func ParseStrategies(raw string) ([]Strategy, error) {
	var out []Strategy
	for _, field := range strings.Split(raw, ",") {
		name := strings.TrimSpace(field)
		if name == "" {
			continue
		}
		switch s := Strategy(name); s {
		case StrategyNameExact, StrategyNamePartial, StrategyURL:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown matching strategy %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no matching strategies configured")
	}
	return out, nil
}

// Matcher evaluates an ordered strategy set against one remote snapshot.
type Matcher struct {
	strategies []Strategy
	norm       *urlnorm.Normalizer
}

// New builds a Matcher. A nil or empty strategy list means the full
// default order; a nil normalizer falls back to uncached normalization.
func New(strategies []Strategy, norm *urlnorm.Normalizer) *Matcher {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Matcher{strategies: strategies, norm: norm}
}

// Match selects at most one remote product for a local record, together
// with the sub-record its price comes from. Strategies short-circuit on
// the first success. A matched-but-priceless candidate set fails with
// ErrNoPrice and does not fall through to weaker strategies.
func (m *Matcher) Match(local *models.LocalProduct, remote []*models.RemoteProduct) (models.MatchResult, error) {
	if local == nil {
		return models.MatchResult{}, ErrNoMatch
	}

	for _, strategy := range m.strategies {
		var (
			result models.MatchResult
			err    error
		)
		switch strategy {
		case StrategyNameExact:
			result, err = m.matchByName(local, remote, false)
		case StrategyNamePartial:
			result, err = m.matchByName(local, remote, true)
		case StrategyURL:
			result, err = m.matchByURL(local, remote)
		default:
			continue
		}

		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNoPrice) {
			return models.MatchResult{}, err
		}
	}
	return models.MatchResult{}, ErrNoMatch
}

// matchByName scans the snapshot in catalog order. Candidates whose
// names match but carry no usable price are skipped in favour of later
// candidates; if every matching candidate is priceless the whole
// attempt fails with ErrNoPrice.
func (m *Matcher) matchByName(local *models.LocalProduct, remote []*models.RemoteProduct, partial bool) (models.MatchResult, error) {
	name := foldName(local.DisplayName)
	if name == "" {
		return models.MatchResult{}, ErrNoMatch
	}

	sawPriceless := false
	for _, candidate := range remote {
		if candidate == nil {
			continue
		}
		remoteName := foldName(candidate.Name)
		if remoteName == "" {
			continue
		}

		matched := remoteName == name
		if !matched && partial {
			matched = strings.Contains(remoteName, name) || strings.Contains(name, remoteName)
		}
		if !matched {
			continue
		}

		if result, ok := priceSource(candidate); ok {
			return result, nil
		}
		sawPriceless = true
	}

	if sawPriceless {
		return models.MatchResult{}, ErrNoPrice
	}
	return models.MatchResult{}, ErrNoMatch
}

func (m *Matcher) matchByURL(local *models.LocalProduct, remote []*models.RemoteProduct) (models.MatchResult, error) {
	localURL := m.normalize(local.ProductLink)
	if localURL == "" {
		return models.MatchResult{}, ErrNoMatch
	}

	sawPriceless := false
	for _, candidate := range remote {
		if candidate == nil {
			continue
		}
		for i, monitored := range candidate.MonitoredURLs {
			remoteURL := m.normalize(monitored.URL)
			if remoteURL == "" {
				continue
			}
			if remoteURL != localURL &&
				!strings.Contains(remoteURL, localURL) &&
				!strings.Contains(localURL, remoteURL) {
				continue
			}

			// Prefer the matched entry's own price; fall back to the
			// product's first priced source otherwise.
			if pricing.Usable(string(monitored.Price)) {
				return models.MatchResult{Product: candidate, Kind: models.PriceFromMonitoredURL, URLIndex: i}, nil
			}
			if result, ok := priceSource(candidate); ok {
				return result, nil
			}
			sawPriceless = true
			break
		}
	}

	if sawPriceless {
		return models.MatchResult{}, ErrNoPrice
	}
	return models.MatchResult{}, ErrNoMatch
}

// priceSource locates the candidate's price-bearing sub-record: the
// first monitored URL with a positive price, else the site summary when
// any site is positively priced.
func priceSource(product *models.RemoteProduct) (models.MatchResult, bool) {
	for i, monitored := range product.MonitoredURLs {
		if pricing.Usable(string(monitored.Price)) {
			return models.MatchResult{Product: product, Kind: models.PriceFromMonitoredURL, URLIndex: i}, true
		}
	}
	if product.HasSiteSummary() {
		for _, site := range product.SiteSummaries {
			if pricing.Usable(string(site.Price)) {
				return models.MatchResult{Product: product, Kind: models.PriceFromSiteSummary}, true
			}
		}
	}
	return models.MatchResult{}, false
}

func (m *Matcher) normalize(raw string) string {
	if m.norm != nil {
		return m.norm.Normalize(raw)
	}
	return urlnorm.Normalize(raw)
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
