// Package catalog talks to the internal product catalog service, the
// owner of the records this system keeps fresh.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bpaden91/prisync-price-sync/config"
	"github.com/bpaden91/prisync-price-sync/models"
)

// ReadError marks a failure to list the local catalog. Fatal to the
// run: without the record set there is nothing to reconcile.
type ReadError struct {
	Err error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("read local catalog: %v", e.Err)
}

func (e ReadError) Unwrap() error {
	return e.Err
}

// UpdateError marks a rejected single-record write. Scoped to one
// record; the run continues.
type UpdateError struct {
	ID     int64
	Status int
	Err    error
}

func (e UpdateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update record %d: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("update record %d: status %d", e.ID, e.Status)
}

func (e UpdateError) Unwrap() error {
	return e.Err
}

// Client is the catalog store HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	pageSize   int
}

// NewClient builds a store client from explicit configuration.
func NewClient(cfg *config.Config) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.CatalogBaseURL, "/"),
		token:      cfg.CatalogToken,
		userAgent:  cfg.UserAgent,
		pageSize:   pageSize,
	}
}

type listResponse struct {
	Results  []*models.LocalProduct `json:"results"`
	NextPage bool                   `json:"next_page"`
}

// SelectLinkedRecords lists catalog records that carry a usable product
// link or display name. Records with neither are filtered out here, at
// the boundary, so they can never be silently "matched" downstream.
func (c *Client) SelectLinkedRecords(ctx context.Context) ([]*models.LocalProduct, error) {
	var out []*models.LocalProduct

	offset := 0
	skipped := 0
	for {
		page, err := c.listPage(ctx, offset)
		if err != nil {
			return nil, ReadError{Err: err}
		}

		for _, record := range page.Results {
			if record == nil {
				continue
			}
			if !record.Linkable() {
				skipped++
				continue
			}
			out = append(out, record)
		}

		if !page.NextPage || len(page.Results) < c.pageSize {
			break
		}
		offset += c.pageSize
	}

	if skipped > 0 {
		slog.Debug("skipped unlinkable catalog records", slog.Int("count", skipped))
	}
	return out, nil
}

func (c *Client) listPage(ctx context.Context, offset int) (*listResponse, error) {
	reqURL := fmt.Sprintf("%s/products?limit=%d&offset=%d", c.baseURL, c.pageSize, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list products: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode product list: %w", err)
	}
	return &page, nil
}

type updateRequest struct {
	CurrentPrice decimal.Decimal `json:"current_price"`
	LastUpdate   time.Time       `json:"last_update"`
}

// UpdatePrice issues the targeted single-record write. The timestamp
// travels with the price so the store sets both or neither.
func (c *Client) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, ts time.Time) error {
	body, err := json.Marshal(updateRequest{CurrentPrice: price, LastUpdate: ts})
	if err != nil {
		return UpdateError{ID: id, Err: fmt.Errorf("encode update: %w", err)}
	}

	reqURL := fmt.Sprintf("%s/products/%d/price", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(body))
	if err != nil {
		return UpdateError{ID: id, Err: fmt.Errorf("build update request: %w", err)}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UpdateError{ID: id, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UpdateError{ID: id, Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)
}
