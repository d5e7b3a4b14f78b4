package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "algotrading"

// Strategy evaluation outcomes.
const (
	OutcomeSignal   = "signal"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Metrics collects pass counters and latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	strategyResults *prometheus.CounterVec
	signals         *prometheus.CounterVec
	riskSkips       *prometheus.CounterVec
	tradesProposed  prometheus.Counter
	tradesExecuted  *prometheus.CounterVec
	exchangeFailure *prometheus.CounterVec
	exchangeLatency *prometheus.HistogramVec
	passDuration    prometheus.Histogram
	portfolioValue  *prometheus.GaugeVec
}

// NewMetrics allocates the collectors and registers them on reg.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		strategyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_results_total",
			Help:      "Strategy evaluations by outcome.",
		}, []string{"strategy", "outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_signals_total",
			Help:      "Reconciled signals by action.",
		}, []string{"action"}),
		riskSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_skips_total",
			Help:      "Trades excluded by a risk limit.",
		}, []string{"strategy", "reason"}),
		tradesProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_proposed_total",
			Help:      "Trades that passed risk gating and structural validation.",
		}),
		tradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Trades confirmed by the exchange.",
		}, []string{"action"}),
		exchangeFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_failures_total",
			Help:      "Exchange calls that failed or timed out.",
		}, []string{"call"}),
		exchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_call_seconds",
			Help:      "Exchange call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_seconds",
			Help:      "End-to-end pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		portfolioValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_value",
			Help:      "Latest portfolio valuation.",
		}, []string{"portfolio"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.strategyResults,
			m.signals,
			m.riskSkips,
			m.tradesProposed,
			m.tradesExecuted,
			m.exchangeFailure,
			m.exchangeLatency,
			m.passDuration,
			m.portfolioValue,
		)
	}
	return m
}

// ObserveStrategy increments the strategy outcome counter.
func (m *Metrics) ObserveStrategy(strategy, outcome string) {
	if m == nil {
		return
	}
	m.strategyResults.WithLabelValues(strategy, outcome).Inc()
}

// ObserveSignal counts a reconciled signal.
func (m *Metrics) ObserveSignal(action string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(action).Inc()
}

// IncRiskSkip records a trade excluded by a risk limit.
func (m *Metrics) IncRiskSkip(strategy, reason string) {
	if m == nil {
		return
	}
	m.riskSkips.WithLabelValues(strategy, reason).Inc()
}

// IncProposed records an accepted trade proposal.
func (m *Metrics) IncProposed() {
	if m == nil {
		return
	}
	m.tradesProposed.Inc()
}

// IncExecuted records a confirmed trade.
func (m *Metrics) IncExecuted(action string) {
	if m == nil {
		return
	}
	m.tradesExecuted.WithLabelValues(action).Inc()
}

// ObserveExchange measures an exchange call and counts failures.
func (m *Metrics) ObserveExchange(call string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.exchangeLatency.WithLabelValues(call).Observe(d.Seconds())
	if err != nil {
		m.exchangeFailure.WithLabelValues(call).Inc()
	}
}

// ObservePass measures an end-to-end pass.
func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
}

// SetPortfolioValue publishes the latest valuation.
func (m *Metrics) SetPortfolioValue(portfolio string, value decimal.Decimal) {
	if m == nil {
		return
	}
	m.portfolioValue.WithLabelValues(portfolio).Set(value.InexactFloat64())
}
