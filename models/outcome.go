package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSourceKind identifies where a matched product's price comes from.
type PriceSourceKind int

const (
	// PriceFromMonitoredURL pins the price to one monitored URL entry.
	PriceFromMonitoredURL PriceSourceKind = iota
	// PriceFromSiteSummary takes the first positively priced site.
	PriceFromSiteSummary
)

// MatchResult pairs a matched remote product with its price source.
// Produced by the matcher, consumed immediately by price extraction.
type MatchResult struct {
	Product *RemoteProduct
	Kind    PriceSourceKind
	// URLIndex is the monitored URL carrying the price when Kind is
	// PriceFromMonitoredURL.
	URLIndex int
}

// Outcome records how one local record fared during a run.
type Outcome struct {
	RecordID  int64           `json:"record_id"`
	Success   bool            `json:"success"`
	NewPrice  decimal.Decimal `json:"new_price,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Label     string          `json:"label,omitempty"`
	DryRun    bool            `json:"dry_run,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Failure is one failed record in the summary, in encounter order.
type Failure struct {
	RecordID int64
	Reason   string
}

// SummaryReport aggregates per-record outcomes for one run.
type SummaryReport struct {
	SuccessCount int
	FailureCount int
	Failures     []Failure
}

// Add folds an outcome into the report. Call in encounter order.
func (r *SummaryReport) Add(outcome *Outcome) {
	if outcome == nil {
		return
	}
	if outcome.Success {
		r.SuccessCount++
		return
	}
	r.FailureCount++
	r.Failures = append(r.Failures, Failure{RecordID: outcome.RecordID, Reason: outcome.Reason})
}

// RunResult holds the overall result of one reconciliation run.
type RunResult struct {
	StartTime        time.Time
	EndTime          time.Time
	Report           SummaryReport
	RecordCount      int
	RemoteCount      int
	FailuresByReason map[string]int
	DryRun           bool
}
