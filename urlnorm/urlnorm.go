// Package urlnorm canonicalizes storefront URLs for comparison.
package urlnorm

import (
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// trackingParams is the fixed denylist of volatile query parameters
// stripped before any URL comparison. Session, campaign, referral, and
// affiliate identifiers vary per visit and never identify the product.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "msclkid", "mc_cid", "mc_eid",
	"ref", "referrer", "affiliate", "aff", "aff_id", "afftrack", "tag",
	"sessionid", "session_id", "sid", "phpsessid", "jsessionid",
	"campaign", "campaign_id", "cmpid",
}

const defaultCacheSize = 1024

// Normalizer memoizes canonicalized URLs. Safe for concurrent use; the
// remote snapshot repeats the same URLs across match attempts, so the
// cache pays for itself within one run.
type Normalizer struct {
	cache *lru.Cache[string, string]
}

// New builds a Normalizer with the given cache capacity.
func New(cacheSize int) (*Normalizer, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Normalizer{cache: cache}, nil
}

// Normalize is the memoized form of the package-level Normalize.
func (n *Normalizer) Normalize(raw string) string {
	if n == nil || n.cache == nil {
		return Normalize(raw)
	}
	if cached, ok := n.cache.Get(raw); ok {
		return cached
	}
	normalized := Normalize(raw)
	n.cache.Add(raw, normalized)
	return normalized
}

// Normalize strips the tracking-parameter denylist from a URL, leaving
// scheme, host, path, and every other query parameter intact. It is
// total: input that does not parse comes back unchanged apart from
// surrounding whitespace.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	query := parsed.Query()
	if len(query) == 0 {
		return trimmed
	}
	for _, param := range trackingParams {
		query.Del(param)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
