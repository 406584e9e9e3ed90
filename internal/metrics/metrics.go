// Package metrics registers the desk's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	lifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_lifecycle_transitions_total",
			Help: "Position lifecycle transitions by axis and event",
		},
		[]string{"axis", "event"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_settlements_total",
			Help: "Close intents settled, by close type and outcome",
		},
		[]string{"close_type", "outcome"},
	)

	settleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradedesk_settle_duration_seconds",
			Help:    "Close settlement round trip in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
	)

	realizedPnL = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_realized_net_profit_total",
			Help: "Net profit of settled closes, split by sign",
		},
		[]string{"sign"},
	)

	deskOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_desk_operations_total",
			Help: "Edits and deletes handed to the system of record",
		},
		[]string{"op", "outcome"},
	)

	exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_exports_total",
			Help: "Table exports uploaded to object storage",
		},
		[]string{"table"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradedesk_active_sessions",
			Help: "Operator sessions currently open",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_http_requests_total",
			Help: "HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradedesk_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// RecordTransition counts one lifecycle transition.
func RecordTransition(axis, event string) {
	lifecycleTransitions.WithLabelValues(axis, event).Inc()
}

// RecordSettlement counts one settlement attempt.
func RecordSettlement(closeType, outcome string, took time.Duration) {
	settlements.WithLabelValues(closeType, outcome).Inc()
	settleDuration.Observe(took.Seconds())
}

// RecordNetProfit adds a settled net profit to the realized totals.
func RecordNetProfit(net float64) {
	if net >= 0 {
		realizedPnL.WithLabelValues("profit").Add(net)
		return
	}
	realizedPnL.WithLabelValues("loss").Add(-net)
}

// RecordDeskOp counts an edit or delete by outcome.
func RecordDeskOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	deskOps.WithLabelValues(op, outcome).Inc()
}

// RecordExport counts one uploaded export.
func RecordExport(table string) {
	exports.WithLabelValues(table).Inc()
}

// SetActiveSessions sets the open session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordHTTP counts one served request.
func RecordHTTP(method string, status int, took time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(took.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
