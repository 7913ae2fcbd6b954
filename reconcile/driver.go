// Package reconcile drives one end-to-end price reconciliation run.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bpaden91/prisync-price-sync/config"
	"github.com/bpaden91/prisync-price-sync/matcher"
	"github.com/bpaden91/prisync-price-sync/models"
	"github.com/bpaden91/prisync-price-sync/pricing"
	"github.com/bpaden91/prisync-price-sync/report"
)

// Failure reason labels, also used as metric outcome labels.
const (
	labelSuccess        = "success"
	labelNoMatch        = "no_match"
	labelNoPrice        = "no_price"
	labelUpdateRejected = "update_rejected"
)

// Store is the slice of the local catalog the driver needs.
type Store interface {
	SelectLinkedRecords(ctx context.Context) ([]*models.LocalProduct, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, ts time.Time) error
}

// Fetcher retrieves the remote catalog snapshot.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]*models.RemoteProduct, error)
}

// Driver runs reconciliation passes. All collaborators are injected;
// nothing is read from the environment here.
type Driver struct {
	store   Store
	fetcher Fetcher
	matcher *matcher.Matcher
	cfg     *config.Config
	metrics *Metrics
	writer  report.OutputWriter

	now func() time.Time
}

// NewDriver builds a driver. writer may be nil when no report file is
// wanted; metrics may be nil in tests.
func NewDriver(store Store, fetcher Fetcher, m *matcher.Matcher, cfg *config.Config, metrics *Metrics, writer report.OutputWriter) *Driver {
	return &Driver{
		store:   store,
		fetcher: fetcher,
		matcher: m,
		cfg:     cfg,
		metrics: metrics,
		writer:  writer,
		now:     time.Now,
	}
}

// Run executes one reconciliation run: list local records, fetch the
// remote snapshot, match and update every record, aggregate a summary.
// Errors before the snapshot exists are fatal; errors scoped to one
// record never interrupt the rest of the run.
func (d *Driver) Run(ctx context.Context) (*models.RunResult, error) {
	start := d.now()

	records, err := d.store.SelectLinkedRecords(ctx)
	if err != nil {
		d.metrics.ObserveRun("error", d.now().Sub(start))
		return nil, fmt.Errorf("select local records: %w", err)
	}
	slog.Info("loaded local catalog", slog.Int("records", len(records)))

	remote, err := d.fetcher.FetchAll(ctx)
	if err != nil {
		d.metrics.ObserveRun("error", d.now().Sub(start))
		return nil, fmt.Errorf("fetch remote snapshot: %w", err)
	}
	slog.Info("fetched remote snapshot", slog.Int("products", len(remote)))

	outcomes := d.reconcileRecords(ctx, records, remote)

	result := &models.RunResult{
		StartTime:        start,
		EndTime:          d.now(),
		RecordCount:      len(records),
		RemoteCount:      len(remote),
		FailuresByReason: make(map[string]int),
		DryRun:           d.cfg.DryRun,
	}
	for _, outcome := range outcomes {
		result.Report.Add(outcome)
		if !outcome.Success {
			result.FailuresByReason[outcome.Label]++
		}
	}

	d.metrics.ObserveRun("ok", result.EndTime.Sub(start))
	return result, nil
}

// reconcileRecords processes records in fixed-size batches against the
// immutable snapshot. Batch size 1 degenerates to the strictly
// sequential model. Matching and extraction are read-only against the
// snapshot, so concurrent workers share it without coordination; the
// inter-batch sleep keeps outbound store writes under the cooperative
// rate limit.
func (d *Driver) reconcileRecords(ctx context.Context, records []*models.LocalProduct, remote []*models.RemoteProduct) []*models.Outcome {
	batchSize := d.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	outcomes := make([]*models.Outcome, len(records))
	for start := 0; start < len(records); start += batchSize {
		if start > 0 && d.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.BatchDelay):
			}
		}

		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		if batchSize == 1 {
			outcomes[start] = d.reconcileOne(ctx, records[start], remote)
		} else {
			var wg sync.WaitGroup
			for i := start; i < end; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					outcomes[i] = d.reconcileOne(ctx, records[i], remote)
				}(i)
			}
			wg.Wait()
		}

		if d.writer != nil {
			if err := d.writer.Write(outcomes[start:end]); err != nil {
				// Report IO never aborts reconciliation.
				slog.Error("write outcome report", slog.Any("error", err))
			}
		}
	}
	return outcomes
}

// reconcileOne takes a single record through match, extract, and
// update. Every failure path returns an outcome; it never aborts the
// run.
func (d *Driver) reconcileOne(ctx context.Context, record *models.LocalProduct, remote []*models.RemoteProduct) *models.Outcome {
	outcome := &models.Outcome{RecordID: record.ID, CheckedAt: d.now()}

	match, err := d.matcher.Match(record, remote)
	if err != nil {
		if errors.Is(err, matcher.ErrNoPrice) {
			return d.fail(outcome, labelNoPrice, "no price: matched product carries no usable positive price")
		}
		return d.fail(outcome, labelNoMatch, fmt.Sprintf("no match found for %q", record.DisplayName))
	}

	price, ok := pricing.ExtractPrice(match)
	if !ok {
		return d.fail(outcome, labelNoPrice, "no price: matched product carries no usable positive price")
	}

	if d.cfg.DryRun {
		outcome.Success = true
		outcome.DryRun = true
		outcome.NewPrice = price
		d.metrics.IncRecord(labelSuccess)
		slog.Info("dry run: would update price",
			slog.Int64("record", record.ID),
			slog.String("price", price.String()),
		)
		return outcome
	}

	if err := d.store.UpdatePrice(ctx, record.ID, price, outcome.CheckedAt); err != nil {
		return d.fail(outcome, labelUpdateRejected, fmt.Sprintf("update rejected: %v", err))
	}

	outcome.Success = true
	outcome.NewPrice = price
	d.metrics.IncRecord(labelSuccess)
	slog.Debug("updated price",
		slog.Int64("record", record.ID),
		slog.String("price", price.String()),
	)
	return outcome
}

func (d *Driver) fail(outcome *models.Outcome, label, reason string) *models.Outcome {
	outcome.Label = label
	outcome.Reason = reason
	d.metrics.IncRecord(label)
	slog.Warn("record failed",
		slog.Int64("record", outcome.RecordID),
		slog.String("label", label),
		slog.String("reason", reason),
	)
	return outcome
}
