package prisync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/bpaden91/prisync-price-sync/config"
	"github.com/bpaden91/prisync-price-sync/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PrisyncBaseURL = "http://prisync.test/api/v2"
	cfg.PrisyncAPIKey = "key"
	cfg.PrisyncAPIToken = "token"
	cfg.PageDelay = time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func newTestClient(cfg *config.Config) (*Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	c := NewClient(cfg, NewMetrics(nil))
	c.httpClient = &http.Client{Transport: transport}
	return c, transport
}

func pageURL(offset int) string {
	return fmt.Sprintf("http://prisync.test/api/v2/list/product/startFrom/%d", offset)
}

func pageBody(t *testing.T, count int, nextPage bool) string {
	t.Helper()
	products := make([]*models.RemoteProduct, count)
	for i := range products {
		products[i] = &models.RemoteProduct{
			Name: fmt.Sprintf("product-%d", i),
			MonitoredURLs: []models.MonitoredURL{
				{URL: fmt.Sprintf("https://shop.example/p/%d", i), Price: "9.99"},
			},
		}
	}
	body, err := json.Marshal(map[string]any{"results": products, "nextPage": nextPage})
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	return string(body)
}

func TestFetchAllConcatenatesPagesAndStopsOnShortPage(t *testing.T) {
	cfg := testConfig()
	c, transport := newTestClient(cfg)

	transport.RegisterResponder("GET", pageURL(0), httpmock.NewStringResponder(200, pageBody(t, 100, true)))
	transport.RegisterResponder("GET", pageURL(100), httpmock.NewStringResponder(200, pageBody(t, 100, true)))
	// The short page still (erroneously) claims more data; the fetcher
	// must stop anyway.
	transport.RegisterResponder("GET", pageURL(200), httpmock.NewStringResponder(200, pageBody(t, 42, true)))

	snapshot, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(snapshot) != 242 {
		t.Fatalf("snapshot size = %d, want 242", len(snapshot))
	}

	calls := transport.GetCallCountInfo()
	if calls["GET "+pageURL(200)] != 1 {
		t.Fatalf("short page fetched %d times, want 1", calls["GET "+pageURL(200)])
	}
	if calls["GET "+pageURL(300)] != 0 {
		t.Fatalf("fetcher paged past the short page")
	}
}

func TestFetchAllStopsWhenMoreFlagCleared(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 2
	c, transport := newTestClient(cfg)

	// A full page with nextPage=false is the final page.
	transport.RegisterResponder("GET", pageURL(0), httpmock.NewStringResponder(200, pageBody(t, 2, false)))

	snapshot, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snapshot))
	}
}

func TestFetchAllFailsAsAUnit(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 2
	cfg.MaxRetries = 0
	c, transport := newTestClient(cfg)

	transport.RegisterResponder("GET", pageURL(0), httpmock.NewStringResponder(200, pageBody(t, 2, true)))
	transport.RegisterResponder("GET", pageURL(2), httpmock.NewStringResponder(500, "boom"))

	snapshot, err := c.FetchAll(context.Background())
	if snapshot != nil {
		t.Fatalf("partial snapshot returned on failure: %d products", len(snapshot))
	}

	var fetchErr FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if fetchErr.Offset != 2 {
		t.Fatalf("failing offset = %d, want 2", fetchErr.Offset)
	}
	var status ErrStatus
	if !errors.As(err, &status) || status.Code != 500 {
		t.Fatalf("err = %v, want wrapped ErrStatus 500", err)
	}
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 1
	cfg.MaxRetries = 2
	c, transport := newTestClient(cfg)

	transport.RegisterResponder("GET", pageURL(0), httpmock.ResponderFromMultipleResponses([]*http.Response{
		httpmock.NewStringResponse(500, "flaky"),
		httpmock.NewStringResponse(200, pageBody(t, 1, false)),
	}))

	snapshot, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all after retry: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(snapshot))
	}
	if calls := transport.GetCallCountInfo()["GET "+pageURL(0)]; calls != 2 {
		t.Fatalf("page requested %d times, want 2", calls)
	}
}

func TestFetchPageDoesNotRetryClientErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	c, transport := newTestClient(cfg)

	transport.RegisterResponder("GET", pageURL(0), httpmock.NewStringResponder(401, "bad credentials"))

	_, err := c.FetchAll(context.Background())
	var status ErrStatus
	if !errors.As(err, &status) || status.Code != 401 {
		t.Fatalf("err = %v, want ErrStatus 401", err)
	}
	if calls := transport.GetCallCountInfo()["GET "+pageURL(0)]; calls != 1 {
		t.Fatalf("client error retried: %d calls", calls)
	}
}

func TestDoPageSendsCredentialHeaders(t *testing.T) {
	cfg := testConfig()
	c, transport := newTestClient(cfg)

	var gotKey, gotToken string
	transport.RegisterResponder("GET", pageURL(0), func(req *http.Request) (*http.Response, error) {
		gotKey = req.Header.Get("apikey")
		gotToken = req.Header.Get("apitoken")
		return httpmock.NewStringResponse(200, pageBody(t, 0, false)), nil
	})

	if _, err := c.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if gotKey != "key" || gotToken != "token" {
		t.Fatalf("credential headers = (%q, %q), want (key, token)", gotKey, gotToken)
	}
}

func TestRetryBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	c := NewClient(cfg, NewMetrics(nil))

	if delay := c.backoff(4); delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "transport", err: ErrTransport{Err: errors.New("refused")}, expected: "transport"},
		{name: "rate limited", err: ErrStatus{Code: 429}, expected: "rate_limited"},
		{name: "server error", err: ErrStatus{Code: 503}, expected: "server_error"},
		{name: "client error", err: ErrStatus{Code: 404}, expected: "client_error"},
		{name: "decode", err: ErrDecode{Err: errors.New("bad json")}, expected: "decode"},
		{name: "other", err: errors.New("something"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("errorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}
