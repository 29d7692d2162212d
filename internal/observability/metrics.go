package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	tickDurationHistogram  prometheus.Histogram
	tickOutcomeCounter     *prometheus.CounterVec
	currentPriceGauge      prometheus.Gauge
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		tickDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_tick_duration_seconds",
			Help:    "Matching tick wall-clock duration",
			Buckets: prometheus.DefBuckets,
		})

		tickOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matching_orders_total",
			Help: "Per-tick order outcomes",
		}, []string{"outcome"})

		currentPriceGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "token_current_price",
			Help: "Model price after the most recent tick",
		})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times the investment accumulator diverged from the trade ledger",
		}, []string{"check"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			tickDurationHistogram,
			tickOutcomeCounter,
			currentPriceGauge,
			ledgerImbalanceCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func ObserveTick(executed, waitingOnPrice, skippedOrErrored int, seconds float64) {
	if tickDurationHistogram == nil {
		return
	}
	tickDurationHistogram.Observe(seconds)
	tickOutcomeCounter.WithLabelValues("executed").Add(float64(executed))
	tickOutcomeCounter.WithLabelValues("waiting_on_price").Add(float64(waitingOnPrice))
	tickOutcomeCounter.WithLabelValues("skipped_or_errored").Add(float64(skippedOrErrored))
}

func SetCurrentPrice(price float64) {
	if currentPriceGauge == nil {
		return
	}
	currentPriceGauge.Set(price)
}

func IncrementLedgerImbalance(check string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(check).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
