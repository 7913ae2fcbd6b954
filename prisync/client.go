// Package prisync fetches the remote price-monitoring catalog.
package prisync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bpaden91/prisync-price-sync/config"
	"github.com/bpaden91/prisync-price-sync/models"
)

// DefaultPageSize is the fixed page size of the remote list endpoint.
const DefaultPageSize = 100

// Client pages through the remote product list endpoint. Credentials
// travel in the apikey/apitoken request headers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiToken   string
	userAgent  string
	pageSize   int

	// limiter spaces page requests; the remote service rate-limits
	// bursts well before it rejects sustained traffic.
	limiter *rate.Limiter

	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration

	metrics *Metrics
}

// NewClient builds a fetch client from explicit configuration.
func NewClient(cfg *config.Config, metrics *Metrics) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageDelay := cfg.PageDelay
	if pageDelay <= 0 {
		pageDelay = config.MinPageDelay
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		baseURL:         strings.TrimSuffix(cfg.PrisyncBaseURL, "/"),
		apiKey:          cfg.PrisyncAPIKey,
		apiToken:        cfg.PrisyncAPIToken,
		userAgent:       cfg.UserAgent,
		pageSize:        pageSize,
		limiter:         rate.NewLimiter(rate.Every(pageDelay), 1),
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffMax: cfg.RetryBackoffMax,
		metrics:         metrics,
	}
}

// listResponse mirrors the paginated list endpoint payload.
type listResponse struct {
	Results  []*models.RemoteProduct `json:"results"`
	NextPage bool                    `json:"nextPage"`
}

// FetchAll retrieves the complete remote catalog, page by page, into
// one in-memory snapshot. The fetch is all-or-nothing: a failed page
// discards everything accumulated so far.
func (c *Client) FetchAll(ctx context.Context) ([]*models.RemoteProduct, error) {
	var all []*models.RemoteProduct

	offset := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, FetchError{Offset: offset, Err: err}
		}

		page, err := c.fetchPage(ctx, offset)
		if err != nil {
			c.metrics.IncError(errorTypeLabel(err))
			return nil, FetchError{Offset: offset, Err: err}
		}

		all = append(all, page.Results...)
		c.metrics.AddPage(len(page.Results))
		slog.Debug("fetched remote catalog page",
			slog.Int("offset", offset),
			slog.Int("count", len(page.Results)),
			slog.Bool("more", page.NextPage),
		)

		// A short page ends the catalog even when the server still
		// advertises more; the flag is not trusted over the data.
		if !page.NextPage || len(page.Results) < c.pageSize {
			break
		}
		offset += c.pageSize
	}

	return all, nil
}

// fetchPage requests one page, retrying transient failures with capped
// exponential backoff.
func (c *Client) fetchPage(ctx context.Context, offset int) (*listResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetries()
			delay := c.backoff(attempt)
			slog.Warn("retrying remote catalog page",
				slog.Int("offset", offset),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.Any("error", lastErr),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ErrTransport{Err: ctx.Err()}
			case <-timer.C:
			}
		}

		page, err := c.doPage(ctx, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doPage(ctx context.Context, offset int) (*listResponse, error) {
	reqURL := fmt.Sprintf("%s/list/product/startFrom/%d", c.baseURL, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("apitoken", c.apiToken)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.IncRequest()
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, ErrTransport{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ErrStatus{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, ErrDecode{Err: err}
	}
	return &page, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := c.retryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := c.retryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
