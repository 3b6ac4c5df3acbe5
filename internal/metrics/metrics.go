package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hound",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hound",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hound",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hound",
			Subsystem: "ledger",
			Name:      "upserts_total",
			Help:      "Transaction ledger upserts by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hound",
			Subsystem: "appstore",
			Name:      "notifications_total",
			Help:      "App Store server notifications by processing outcome.",
		},
		[]string{"outcome"},
	)

	receiptReconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hound",
			Subsystem: "appstore",
			Name:      "receipt_reconciliations_total",
			Help:      "Receipt submissions by outcome code.",
		},
		[]string{"outcome"},
	)

	pushEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hound",
			Subsystem: "push",
			Name:      "events_total",
			Help:      "Push events by delivery result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerUpserts,
		notifications,
		receiptReconciliations,
		pushEvents,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency labelled by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordLedgerUpsert counts one ledger upsert attempt.
func RecordLedgerUpsert(result string) {
	ledgerUpserts.WithLabelValues(result).Inc()
}

// RecordNotification counts one processed App Store notification.
func RecordNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}

// RecordReceiptReconciliation counts one receipt submission.
func RecordReceiptReconciliation(outcome string) {
	receiptReconciliations.WithLabelValues(outcome).Inc()
}

// RecordPushEvent counts one push event.
func RecordPushEvent(result string) {
	pushEvents.WithLabelValues(result).Inc()
}
