package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stethoscope_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stethoscope_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stethoscope_analyses_total",
			Help: "Analyses by outcome",
		},
		[]string{"outcome"},
	)

	scoreHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stethoscope_score",
			Help:    "Distribution of computed security scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	narrativeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stethoscope_narrative_failures_total",
			Help: "Narrative generation failures by kind",
		},
		[]string{"kind"},
	)
)

// Analysis outcomes. Rejected covers terminal pipeline errors; the label
// value is the lower-cased error code.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// metricsMiddleware records RED metrics keyed by route template so path
// parameters do not explode label cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
