package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bpaden91/prisync-price-sync/catalog"
	"github.com/bpaden91/prisync-price-sync/config"
	"github.com/bpaden91/prisync-price-sync/matcher"
	"github.com/bpaden91/prisync-price-sync/models"
	"github.com/bpaden91/prisync-price-sync/prisync"
	"github.com/bpaden91/prisync-price-sync/reconcile"
	"github.com/bpaden91/prisync-price-sync/report"
	"github.com/bpaden91/prisync-price-sync/urlnorm"
)

func main() {
	// Credentials come from the environment; a local .env is a
	// convenience, not a requirement.
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	batchDefault := defaultCfg.BatchSize
	if value, ok, err := config.EnvInt("PRICESYNC_BATCH"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid PRICESYNC_BATCH: %v\n", err)
		os.Exit(1)
	} else if ok {
		batchDefault = value
	}
	prisyncURLDefault := defaultCfg.PrisyncBaseURL
	if value, ok := config.EnvString("PRISYNC_BASE_URL"); ok {
		prisyncURLDefault = value
	}
	catalogURLDefault := defaultCfg.CatalogBaseURL
	if value, ok := config.EnvString("CATALOG_BASE_URL"); ok {
		catalogURLDefault = value
	}
	reportDefault := defaultCfg.ReportFile
	if value, ok := config.EnvString("PRICESYNC_REPORT"); ok {
		reportDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("PRICESYNC_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	prisyncURL := flag.String("prisync-url", prisyncURLDefault, "Remote price service base URL")
	catalogURL := flag.String("catalog-url", catalogURLDefault, "Local catalog store base URL")
	batchSize := flag.Int("batch-size", batchDefault, "Records reconciled concurrently (1 = sequential)")
	batchDelayMs := flag.Int("batch-delay", int(defaultCfg.BatchDelay/time.Millisecond), "Delay between batches (milliseconds)")
	pageDelayMs := flag.Int("page-delay", int(defaultCfg.PageDelay/time.Millisecond), "Delay between remote catalog pages (milliseconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per remote page (0 disables retry)")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	timeoutSec := flag.Int("timeout", int(defaultCfg.Timeout/time.Second), "HTTP request timeout (seconds)")
	strategies := flag.String("strategies", "name,name-partial,url", "Ordered matching strategies")
	reportFile := flag.String("report", reportDefault, "Outcome report file path")
	reportFormat := flag.String("format", defaultCfg.ReportFormat, "Report format: csv, json, dual, or none")
	dryRun := flag.Bool("dry-run", false, "Match and extract without writing updates")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := buildConfig(defaultCfg, *prisyncURL, *catalogURL, *batchSize, *batchDelayMs, *pageDelayMs,
		*maxRetries, *retryBackoffMs, *retryBackoffMaxMs, *timeoutSec, *strategies, *reportFile, *reportFormat,
		*dryRun, *verbose, *metricsAddr)
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting reconciliation run",
		slog.String("prisync_url", cfg.PrisyncBaseURL),
		slog.String("catalog_url", cfg.CatalogBaseURL),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Bool("dry_run", cfg.DryRun),
	)

	registry := prometheus.NewRegistry()
	fetchMetrics := prisync.NewMetrics(registry)
	runMetrics := reconcile.NewMetrics(registry)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	writer, err := createWriter(cfg.ReportFormat, cfg.ReportFile)
	if err != nil {
		slog.Error("creating report writer", slog.Any("error", err))
		os.Exit(1)
	}

	norm, err := urlnorm.New(cfg.NormalizeCacheSize)
	if err != nil {
		slog.Error("initialising url normalizer", slog.Any("error", err))
		os.Exit(1)
	}

	driver := reconcile.NewDriver(
		catalog.NewClient(cfg),
		prisync.NewClient(cfg, fetchMetrics),
		matcher.New(cfg.Strategies, norm),
		cfg,
		runMetrics,
		writer,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	result, err := driver.Run(ctx)
	if err != nil {
		slog.Error("reconciliation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if writer != nil {
		if err := writer.Validate(); err != nil {
			slog.Error("report validation failed", slog.Any("error", err))
		}
		if err := writer.Close(); err != nil {
			slog.Error("close report writer", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.ReportFile)
}

func buildConfig(cfg *config.Config, prisyncURL, catalogURL string, batchSize, batchDelayMs, pageDelayMs,
	maxRetries, retryBackoffMs, retryBackoffMaxMs, timeoutSec int, strategiesRaw, reportFile, reportFormat string,
	dryRun, verbose bool, metricsAddr string) (*config.Config, error) {

	cfg.PrisyncBaseURL = prisyncURL
	cfg.CatalogBaseURL = catalogURL
	cfg.PrisyncAPIKey, _ = config.EnvString("PRISYNC_API_KEY")
	cfg.PrisyncAPIToken, _ = config.EnvString("PRISYNC_API_TOKEN")
	cfg.CatalogToken, _ = config.EnvString("CATALOG_TOKEN")
	cfg.BatchSize = batchSize
	cfg.BatchDelay = time.Duration(batchDelayMs) * time.Millisecond
	cfg.PageDelay = time.Duration(pageDelayMs) * time.Millisecond
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = time.Duration(retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(retryBackoffMaxMs) * time.Millisecond
	cfg.Timeout = time.Duration(timeoutSec) * time.Second
	cfg.ReportFile = reportFile
	cfg.ReportFormat = strings.ToLower(reportFormat)
	cfg.DryRun = dryRun
	cfg.Verbose = verbose
	cfg.MetricsAddr = metricsAddr

	parsed, err := matcher.ParseStrategies(strategiesRaw)
	if err != nil {
		return nil, err
	}
	cfg.Strategies = parsed

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createWriter(format, filename string) (report.OutputWriter, error) {
	switch format {
	case "none":
		return nil, nil
	case "json":
		return report.NewJSONWriter(filename)
	case "csv":
		return report.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return report.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.RunResult, reportFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if result.DryRun {
		fmt.Println("Reconciliation complete (dry run)")
	} else {
		fmt.Println("Reconciliation complete")
	}

	duration := result.EndTime.Sub(result.StartTime)
	fmt.Printf("  Local records:  %d\n", result.RecordCount)
	fmt.Printf("  Remote catalog: %d products\n", result.RemoteCount)
	fmt.Printf("  Updated:        %d\n", result.Report.SuccessCount)
	fmt.Printf("  Failed:         %d\n", result.Report.FailureCount)
	if len(result.FailuresByReason) > 0 {
		fmt.Printf("  Failure types:  %v\n", result.FailuresByReason)
	}
	fmt.Printf("  Duration:       %v\n", duration)
	if reportFile != "" {
		fmt.Printf("  Report file:    %s\n", reportFile)
	}

	if len(result.Report.Failures) > 0 {
		fmt.Println(separator)
		fmt.Println("Failures (in order encountered):")
		for _, failure := range result.Report.Failures {
			fmt.Printf("  record %d: %s\n", failure.RecordID, failure.Reason)
		}
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
