package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	evaluations *prometheus.CounterVec
	evalLatency *prometheus.HistogramVec
	decisions   *prometheus.CounterVec
	tradesTotal *prometheus.CounterVec
	stakeTotal  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	pnlTotal    *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyedge_model_evaluations_total",
				Help: "Model evaluations by model and trade recommendation",
			},
			[]string{"model", "should_trade"},
		),
		evalLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polyedge_model_evaluation_seconds",
				Help:    "Duration of a single model evaluation",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"model"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyedge_decisions_total",
				Help: "Decisions produced by the decision engine",
			},
			[]string{"should_trade", "reason"},
		),
		tradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyedge_trades_recorded_total",
				Help: "Paper trades recorded",
			},
			[]string{"model"},
		),
		stakeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyedge_stake_total",
				Help: "Total stake committed to paper trades",
			},
			[]string{"model"},
		),
		settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyedge_settlements_total",
				Help: "Settled paper trades by outcome",
			},
			[]string{"model", "outcome"},
		),
		pnlTotal: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polyedge_realized_pnl",
				Help: "Cumulative realized PnL of settled paper trades",
			},
			[]string{"model"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyedge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polyedge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEvaluation(model string, shouldTrade bool, seconds float64) {
	r.evaluations.WithLabelValues(model, boolLabel(shouldTrade)).Inc()
	r.evalLatency.WithLabelValues(model).Observe(seconds)
}

// RecordDecision counts decisions. reason should be low-cardinality; it is
// empty for trades.
func (r *Recorder) RecordDecision(shouldTrade bool, reason string) {
	r.decisions.WithLabelValues(boolLabel(shouldTrade), reason).Inc()
}

func (r *Recorder) RecordTrade(model string, stake float64) {
	r.tradesTotal.WithLabelValues(model).Inc()
	r.stakeTotal.WithLabelValues(model).Add(stake)
}

func (r *Recorder) RecordSettlement(model, outcome string, pnl float64) {
	r.settlements.WithLabelValues(model, outcome).Inc()
	r.pnlTotal.WithLabelValues(model).Add(pnl)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordEvaluation(string, bool, float64)   {}
func (Nop) RecordDecision(bool, string)              {}
func (Nop) RecordTrade(string, float64)              {}
func (Nop) RecordSettlement(string, string, float64) {}
func (Nop) RecordError(string)                       {}
func (Nop) RecordLatency(string, float64)            {}
