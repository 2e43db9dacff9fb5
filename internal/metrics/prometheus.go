package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidator_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidator_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Scan metrics
	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_scans_total",
			Help: "Scan cycles by status",
		},
		[]string{"status"},
	)

	LastScanLiquidatable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "liquidator_last_scan_liquidatable",
			Help: "Loans flagged for liquidation in the most recent scan",
		},
	)

	LoansScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liquidator_loans_scanned_total",
			Help: "Active loans fetched across all scans",
		},
	)

	LoanEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_loan_evaluations_total",
			Help: "Health evaluations by result",
		},
		[]string{"result"}, // hold|time_based|health_factor|error
	)

	HealthFactors = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liquidator_health_factor",
			Help:    "Distribution of computed health factors",
			Buckets: []float64{0.5, 0.8, 0.9, 1, 1.1, 1.25, 1.5, 2, 3, 5},
		},
	)

	// Liquidation metrics
	Liquidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_liquidations_total",
			Help: "Liquidation attempt chains by outcome",
		},
		[]string{"outcome", "dry_run"},
	)

	LiquidationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liquidator_liquidation_attempts",
			Help:    "Submissions needed per liquidation",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		},
	)

	// Price metrics
	PriceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_price_requests_total",
			Help: "Price provider requests by outcome",
		},
		[]string{"provider", "status"}, // status: success|error|rate_limited
	)

	PriceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidator_price_latency_seconds",
			Help:    "Price provider latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	PriceCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_price_cache_total",
			Help: "Price cache lookups",
		},
		[]string{"result"}, // hit|miss
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_notifications_total",
			Help: "Notifications delivered per sink",
		},
		[]string{"sink", "status"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidator_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liquidator_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"database", "operation"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(
		WorkerExecutions,
		WorkerDuration,
		WorkerLastRun,
		Scans,
		LastScanLiquidatable,
		LoansScanned,
		LoanEvaluations,
		HealthFactors,
		Liquidations,
		LiquidationAttempts,
		PriceRequests,
		PriceLatency,
		PriceCache,
		NotificationsSent,
		DBQueries,
		DBQueryDuration,
	)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordScan records one scan cycle
func RecordScan(active, liquidatable int, err error) {
	Scans.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	LoansScanned.Add(float64(active))
	LastScanLiquidatable.Set(float64(liquidatable))
}

// RecordPriceRequest records one provider call
func RecordPriceRequest(provider string, latency time.Duration, rateLimited bool, err error) {
	s := status(err)
	if rateLimited {
		s = "rate_limited"
	}
	PriceRequests.WithLabelValues(provider, s).Inc()
	PriceLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordPriceCache records a cache hit or miss
func RecordPriceCache(hit bool) {
	if hit {
		PriceCache.WithLabelValues("hit").Inc()
		return
	}
	PriceCache.WithLabelValues("miss").Inc()
}

// RecordEvaluation records a health evaluation; result is hold or the liquidation trigger
func RecordEvaluation(result string, healthFactor float64) {
	LoanEvaluations.WithLabelValues(result).Inc()
	if healthFactor > 0 {
		HealthFactors.Observe(healthFactor)
	}
}

// RecordLiquidation records the final outcome of an attempt chain
func RecordLiquidation(outcome string, attempts int, dryRun bool) {
	dr := "false"
	if dryRun {
		dr = "true"
	}
	Liquidations.WithLabelValues(outcome, dr).Inc()
	if attempts > 0 {
		LiquidationAttempts.Observe(float64(attempts))
	}
}

// RecordNotification records delivery to one sink
func RecordNotification(sink string, err error) {
	NotificationsSent.WithLabelValues(sink, status(err)).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
