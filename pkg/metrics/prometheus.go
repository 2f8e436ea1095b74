package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal  *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	ordersTotal *prometheus.CounterVec
	openLots    *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_ticks_total",
				Help: "Total ticks processed per symbol",
			},
			[]string{"symbol"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_orders_total",
				Help: "Orders by symbol, kind (entry/exit) and outcome",
			},
			[]string{"symbol", "kind", "outcome"},
		),
		openLots: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepulse_open_lots",
				Help: "Currently open lots per symbol and side",
			},
			[]string{"symbol", "side"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_errors_total",
				Help: "Total errors by kind",
			},
			[]string{"kind"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts one processed tick.
func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordOrder counts an order attempt outcome (submitted, filled, canceled,
// rejected, timeout, skipped).
func (r *Recorder) RecordOrder(symbol, kind, outcome string) {
	r.ordersTotal.WithLabelValues(symbol, kind, outcome).Inc()
}

// RecordOpenLots sets the open-lot gauge for a symbol/side.
func (r *Recorder) RecordOpenLots(symbol string, side string, n int) {
	r.openLots.WithLabelValues(symbol, side).Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
