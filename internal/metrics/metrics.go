// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesCrawledTotal          *prometheus.CounterVec
	admissionRejectedTotal     *prometheus.CounterVec
	queuePullsTotal            prometheus.Counter
	queueItemsPulledTotal      prometheus.Counter
	queueAcksTotal             *prometheus.CounterVec
	batchFlushesTotal          *prometheus.CounterVec
	batchRowsUpsertedTotal     prometheus.Counter
	batchWindowSize            prometheus.Gauge
	discoveryInsertsTotal      *prometheus.CounterVec
	crawlsInFlight             prometheus.Gauge
	renderDurationSeconds      prometheus.Histogram
	flushDurationSeconds       prometheus.Histogram
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_crawled_total",
				Help: "Total number of crawl attempts that reached a terminal outcome, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		admissionRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_admission_rejected_total",
				Help: "Total number of URLs rejected by the admission filter, labeled by reason.",
			},
			[]string{"reason"},
		)

		queuePullsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_queue_pulls_total",
				Help: "Total number of pull requests issued to the work queue.",
			},
		)

		queueItemsPulledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_queue_items_pulled_total",
				Help: "Total number of work items received from the queue.",
			},
		)

		queueAcksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_queue_acks_total",
				Help: "Total number of acknowledgement attempts, labeled by result.",
			},
			[]string{"result"},
		)

		batchFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_batch_flushes_total",
				Help: "Total number of batch flush attempts, labeled by result.",
			},
			[]string{"result"},
		)

		batchRowsUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_batch_rows_upserted_total",
				Help: "Total number of page rows written by batch flushes.",
			},
		)

		batchWindowSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_batch_window_size",
				Help: "Number of page records currently buffered in the batch window.",
			},
		)

		discoveryInsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_discovery_inserts_total",
				Help: "Total number of discovered link registrations, labeled by result.",
			},
			[]string{"result"},
		)

		crawlsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_crawls_in_flight",
				Help: "Number of pages currently being rendered.",
			},
		)

		renderDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_render_duration_seconds",
				Help:    "Histogram of page render latencies.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30},
			},
		)

		flushDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_flush_duration_seconds",
				Help:    "Histogram of batch flush latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_ratelimit_delay_seconds",
				Help:    "Histogram of delays imposed by the per-domain pacer, labeled by domain.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl increments the crawl outcome counter.
func ObserveCrawl(outcome string) {
	pagesCrawledTotal.WithLabelValues(outcome).Inc()
}

// ObserveRejection increments the admission rejection counter.
func ObserveRejection(reason string) {
	admissionRejectedTotal.WithLabelValues(reason).Inc()
}

// ObservePull records one pull round-trip and the number of items it returned.
func ObservePull(items int) {
	queuePullsTotal.Inc()
	if items > 0 {
		queueItemsPulledTotal.Add(float64(items))
	}
}

// ObserveAck increments the acknowledgement counter for the given result.
func ObserveAck(result string) {
	queueAcksTotal.WithLabelValues(result).Inc()
}

// ObserveFlush records one flush attempt, the rows it wrote, and its duration.
func ObserveFlush(result string, rows int, duration time.Duration) {
	batchFlushesTotal.WithLabelValues(result).Inc()
	if rows > 0 {
		batchRowsUpsertedTotal.Add(float64(rows))
	}
	flushDurationSeconds.Observe(duration.Seconds())
}

// SetBatchWindowSize updates the buffered record gauge.
func SetBatchWindowSize(n int) {
	batchWindowSize.Set(float64(n))
}

// ObserveDiscovery increments the discovery registration counter.
func ObserveDiscovery(result string) {
	discoveryInsertsTotal.WithLabelValues(result).Inc()
}

// IncCrawlsInFlight increments the in-flight render gauge.
func IncCrawlsInFlight() {
	crawlsInFlight.Inc()
}

// DecCrawlsInFlight decrements the in-flight render gauge.
func DecCrawlsInFlight() {
	crawlsInFlight.Dec()
}

// ObserveRenderDuration records the duration of one render attempt.
func ObserveRenderDuration(duration time.Duration) {
	renderDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited on the per-domain pacer.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
