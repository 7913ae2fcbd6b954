package prisync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the remote catalog fetcher.
type Metrics struct {
	RequestsTotal   prometheus.Counter
	RequestDuration prometheus.Histogram
	PagesTotal      prometheus.Counter
	ProductsTotal   prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs the fetch collectors and registers them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricesync_fetch_requests_total",
			Help: "Total page requests issued against the remote price service.",
		},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricesync_fetch_request_duration_seconds",
			Help:    "Latency of remote catalog page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricesync_fetch_pages_total",
			Help: "Total remote catalog pages fetched successfully.",
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricesync_fetch_products_total",
			Help: "Total remote products accumulated into snapshots.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricesync_fetch_retries_total",
			Help: "Total page retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricesync_fetch_errors_total",
			Help: "Total remote fetch errors by type.",
		},
		[]string{"error_type"},
	)

	if reg != nil {
		reg.MustRegister(requests, requestDuration, pages, products, retries, errorsTotal)
	}

	return &Metrics{
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		ProductsTotal:   products,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the request counter.
func (m *Metrics) IncRequest() {
	if m == nil {
		return
	}
	m.RequestsTotal.Inc()
}

// ObserveDuration records one page request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddPage records a successfully fetched page and its product count.
func (m *Metrics) AddPage(products int) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.ProductsTotal.Add(float64(products))
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the error counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
