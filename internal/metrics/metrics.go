// Package metrics provides Prometheus instrumentation for the funds engine.
// Counters are only touched after the owning database transaction committed.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DrawExecutions counts draw executions by result (completed, rejected, failed).
	DrawExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funds_draw_executions_total",
		Help: "Lucky draw executions by result",
	}, []string{"result"})

	// PrizesCredited sums prize money credited to winners.
	PrizesCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funds_draw_prizes_credited_total",
		Help: "Total prize amount credited to winners",
	})

	// ProfitShareOps counts calculate/distribute/reopen calls by result.
	ProfitShareOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funds_profit_share_operations_total",
		Help: "Profit share operations by phase and result",
	}, []string{"phase", "result"})

	// ProfitDistributed sums profit share money credited to subscribers.
	ProfitDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funds_profit_share_distributed_total",
		Help: "Total profit share amount credited",
	})

	// LedgerEntries counts committed ledger entries by transaction type.
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funds_ledger_entries_total",
		Help: "Committed ledger entries by type",
	}, []string{"type"})

	// OutboxPublished counts outbox events shipped to Kafka by result.
	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funds_outbox_published_total",
		Help: "Outbox events published to Kafka",
	}, []string{"result"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funds_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "funds_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// Handler exposes the registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Middleware records request count and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
