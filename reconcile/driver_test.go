package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bpaden91/prisync-price-sync/config"
	"github.com/bpaden91/prisync-price-sync/matcher"
	"github.com/bpaden91/prisync-price-sync/models"
)

type fakeStore struct {
	mu       sync.Mutex
	records  []*models.LocalProduct
	readErr  error
	rejectID int64

	updates map[int64]update
}

type update struct {
	price decimal.Decimal
	ts    time.Time
}

func (fs *fakeStore) SelectLinkedRecords(ctx context.Context) ([]*models.LocalProduct, error) {
	if fs.readErr != nil {
		return nil, fs.readErr
	}
	return fs.records, nil
}

func (fs *fakeStore) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, ts time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if id == fs.rejectID && fs.rejectID != 0 {
		return errors.New("store rejected the write")
	}
	if fs.updates == nil {
		fs.updates = make(map[int64]update)
	}
	fs.updates[id] = update{price: price, ts: ts}
	return nil
}

type fakeFetcher struct {
	snapshot []*models.RemoteProduct
	err      error
}

func (ff *fakeFetcher) FetchAll(ctx context.Context) ([]*models.RemoteProduct, error) {
	if ff.err != nil {
		return nil, ff.err
	}
	return ff.snapshot, nil
}

func testDriver(store *fakeStore, fetcher *fakeFetcher, mutate func(*config.Config)) *Driver {
	cfg := config.DefaultConfig()
	cfg.BatchDelay = 0
	if mutate != nil {
		mutate(cfg)
	}
	return NewDriver(store, fetcher, matcher.New(cfg.Strategies, nil), cfg, NewMetrics(nil), nil)
}

func priced(name, url, price string) *models.RemoteProduct {
	return &models.RemoteProduct{
		Name:          name,
		MonitoredURLs: []models.MonitoredURL{{URL: url, Price: models.PriceText(price)}},
	}
}

func TestRunUpdatesMatchedRecord(t *testing.T) {
	store := &fakeStore{records: []*models.LocalProduct{
		{ID: 7, DisplayName: "Classic Tote"},
	}}
	fetcher := &fakeFetcher{snapshot: []*models.RemoteProduct{
		priced("Classic Tote", "https://shop.example/p/7", "129.99"),
	}}

	result, err := testDriver(store, fetcher, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Report.SuccessCount != 1 || result.Report.FailureCount != 0 {
		t.Fatalf("report = %+v", result.Report)
	}

	got, ok := store.updates[7]
	if !ok {
		t.Fatalf("record 7 was not updated")
	}
	if got.price.String() != "129.99" {
		t.Fatalf("stored price = %s, want 129.99", got.price)
	}
	if got.ts.IsZero() {
		t.Fatalf("update timestamp not set")
	}
}

func TestRunIsolatesUnmatchedRecords(t *testing.T) {
	store := &fakeStore{records: []*models.LocalProduct{
		{ID: 7, DisplayName: "Classic Tote"},
		{ID: 8, DisplayName: "Unknown Bag"},
		{ID: 9, DisplayName: "Weekend Duffel"},
	}}
	fetcher := &fakeFetcher{snapshot: []*models.RemoteProduct{
		priced("Classic Tote", "https://shop.example/p/7", "129.99"),
		priced("Weekend Duffel", "https://shop.example/p/9", "89.00"),
	}}

	result, err := testDriver(store, fetcher, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := result.Report.SuccessCount + result.Report.FailureCount; got != 3 {
		t.Fatalf("success+failure = %d, want record count 3", got)
	}
	if result.Report.SuccessCount != 2 || result.Report.FailureCount != 1 {
		t.Fatalf("report = %+v", result.Report)
	}
	if len(result.Report.Failures) != 1 {
		t.Fatalf("failures = %+v", result.Report.Failures)
	}
	failure := result.Report.Failures[0]
	if failure.RecordID != 8 || !strings.Contains(failure.Reason, "no match") {
		t.Fatalf("failure = %+v", failure)
	}
	if result.FailuresByReason["no_match"] != 1 {
		t.Fatalf("failures by reason = %v", result.FailuresByReason)
	}
}

func TestRunPricelessMatchLeavesRecordUntouched(t *testing.T) {
	store := &fakeStore{records: []*models.LocalProduct{
		{ID: 7, DisplayName: "Classic Tote"},
	}}
	fetcher := &fakeFetcher{snapshot: []*models.RemoteProduct{
		{
			Name:          "Classic Tote",
			MonitoredURLs: []models.MonitoredURL{{URL: "https://shop.example/p/7", Price: ""}},
		},
	}}

	result, err := testDriver(store, fetcher, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Report.FailureCount != 1 {
		t.Fatalf("report = %+v", result.Report)
	}
	if !strings.Contains(result.Report.Failures[0].Reason, "no price") {
		t.Fatalf("reason = %q, want mention of no price", result.Report.Failures[0].Reason)
	}
	if len(store.updates) != 0 {
		t.Fatalf("store written despite missing price: %v", store.updates)
	}
}

func TestRunIsolatesRejectedUpdates(t *testing.T) {
	store := &fakeStore{
		records: []*models.LocalProduct{
			{ID: 1, DisplayName: "A"},
			{ID: 2, DisplayName: "B"},
		},
		rejectID: 1,
	}
	fetcher := &fakeFetcher{snapshot: []*models.RemoteProduct{
		priced("A", "https://shop.example/a", "10.00"),
		priced("B", "https://shop.example/b", "20.00"),
	}}

	result, err := testDriver(store, fetcher, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Report.SuccessCount != 1 || result.Report.FailureCount != 1 {
		t.Fatalf("report = %+v", result.Report)
	}
	if result.FailuresByReason["update_rejected"] != 1 {
		t.Fatalf("failures by reason = %v", result.FailuresByReason)
	}
	if _, ok := store.updates[2]; !ok {
		t.Fatalf("record 2 should still have been updated")
	}
}

func TestRunBatchedProcessesAllRecordsInOrder(t *testing.T) {
	var records []*models.LocalProduct
	var snapshot []*models.RemoteProduct
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}
	for i, name := range names {
		records = append(records, &models.LocalProduct{ID: int64(i + 1), DisplayName: name})
		snapshot = append(snapshot, priced(name, "https://shop.example/"+name, "10.00"))
	}
	// One record per batch fails.
	records = append(records, &models.LocalProduct{ID: 99, DisplayName: "Unknown"})

	store := &fakeStore{records: records}
	fetcher := &fakeFetcher{snapshot: snapshot}

	result, err := testDriver(store, fetcher, func(cfg *config.Config) {
		cfg.BatchSize = 5
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := result.Report.SuccessCount + result.Report.FailureCount; got != len(records) {
		t.Fatalf("success+failure = %d, want %d", got, len(records))
	}
	if result.Report.SuccessCount != len(names) {
		t.Fatalf("successes = %d, want %d", result.Report.SuccessCount, len(names))
	}
	if len(store.updates) != len(names) {
		t.Fatalf("updates = %d, want %d", len(store.updates), len(names))
	}
	if result.Report.Failures[0].RecordID != 99 {
		t.Fatalf("failure id = %d, want 99", result.Report.Failures[0].RecordID)
	}
}

func TestRunDryRunSkipsWrites(t *testing.T) {
	store := &fakeStore{records: []*models.LocalProduct{
		{ID: 7, DisplayName: "Classic Tote"},
	}}
	fetcher := &fakeFetcher{snapshot: []*models.RemoteProduct{
		priced("Classic Tote", "https://shop.example/p/7", "129.99"),
	}}

	result, err := testDriver(store, fetcher, func(cfg *config.Config) {
		cfg.DryRun = true
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Report.SuccessCount != 1 {
		t.Fatalf("report = %+v", result.Report)
	}
	if len(store.updates) != 0 {
		t.Fatalf("dry run wrote to the store: %v", store.updates)
	}
}

func TestRunFatalOnStoreReadFailure(t *testing.T) {
	store := &fakeStore{readErr: errors.New("catalog down")}
	fetcher := &fakeFetcher{}

	if _, err := testDriver(store, fetcher, nil).Run(context.Background()); err == nil {
		t.Fatalf("store read failure must abort the run")
	}
}

func TestRunFatalOnFetchFailure(t *testing.T) {
	store := &fakeStore{records: []*models.LocalProduct{{ID: 1, DisplayName: "A"}}}
	fetcher := &fakeFetcher{err: errors.New("remote unavailable")}

	if _, err := testDriver(store, fetcher, nil).Run(context.Background()); err == nil {
		t.Fatalf("fetch failure must abort the run")
	}
	if len(store.updates) != 0 {
		t.Fatalf("no updates may happen without a snapshot")
	}
}
