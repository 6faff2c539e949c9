package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks        prometheus.Counter
	signals      *prometheus.CounterVec
	tradesClosed *prometheus.CounterVec
	eventsSent   *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	confidence   *prometheus.GaugeVec
	dailyPnL     prometheus.Gauge
	equity       prometheus.Gauge
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on reg, or on the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "spotagent_loop_ticks_total",
			Help: "Completed control loop iterations",
		}),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotagent_signals_total",
				Help: "Signals evaluated by symbol and decision",
			},
			[]string{"symbol", "signal"},
		),
		tradesClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotagent_trades_closed_total",
				Help: "Closed trades by exit reason",
			},
			[]string{"reason"},
		),
		eventsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotagent_events_published_total",
				Help: "Trade and signal events sent to the event stream",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotagent_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotagent_last_price",
				Help: "Last execution price seen for a symbol",
			},
			[]string{"symbol"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotagent_signal_confidence",
				Help: "Latest signal confidence per symbol",
			},
			[]string{"symbol"},
		),
		dailyPnL: f.NewGauge(prometheus.GaugeOpts{
			Name: "spotagent_daily_pnl",
			Help: "Realized net PnL for the current UTC day",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Name: "spotagent_equity",
			Help: "Quote balance plus open position mark value",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spotagent_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTick() {
	r.ticks.Inc()
}

// RecordSignal records one evaluation and its confidence.
func (r *Recorder) RecordSignal(symbol, signal string, confidence float64) {
	r.signals.WithLabelValues(symbol, signal).Inc()
	r.confidence.WithLabelValues(symbol).Set(confidence)
}

func (r *Recorder) RecordTradeClosed(reason string) {
	r.tradesClosed.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordEventPublished(kind string) {
	r.eventsSent.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordDaily(pnl, equity float64) {
	r.dailyPnL.Set(pnl)
	r.equity.Set(equity)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
