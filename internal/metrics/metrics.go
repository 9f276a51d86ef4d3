package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signal core. A nil *Metrics
// is valid and records nothing, so components can take it optionally.
type Metrics struct {
	// Signal fusion
	EvaluationsTotal *prometheus.CounterVec // labels: decision
	EvaluationDur    prometheus.Histogram
	ScanErrorsTotal  *prometheus.CounterVec // labels: stage

	// Backtesting
	BacktestRunsTotal   *prometheus.CounterVec // labels: result=ok|error
	BacktestDur         prometheus.Histogram
	BacktestPredictions prometheus.Counter

	// Risk manager
	RiskChecksTotal      *prometheus.CounterVec // labels: outcome=allowed|blocked|error
	RiskCooldownsStarted *prometheus.CounterVec // labels: reason

	// Storage
	SQLiteQueryDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisFallbackOps         prometheus.Counter

	// Market session state
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_evaluations_total",
			Help: "Signal evaluations by decision",
		}, []string{"decision"}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_evaluation_duration_seconds",
			Help:    "Signal fusion latency per bar series",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		ScanErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_scan_errors_total",
			Help: "Scanner failures by stage",
		}, []string{"stage"}),

		BacktestRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_backtest_runs_total",
			Help: "Backtest runs by result",
		}, []string{"result"}),
		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_backtest_duration_seconds",
			Help:    "Wall time of a backtest run",
			Buckets: prometheus.DefBuckets,
		}),
		BacktestPredictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_backtest_predictions_total",
			Help: "Predictions replayed across all backtests",
		}),

		RiskChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_risk_checks_total",
			Help: "Risk checks by outcome",
		}, []string{"outcome"}),
		RiskCooldownsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_risk_cooldowns_started_total",
			Help: "Cooldowns started by triggering limit",
		}, []string{"reason"}),

		SQLiteQueryDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_sqlite_query_duration_seconds",
			Help:    "SQLite query latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisFallbackOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_redis_fallback_ops_total",
			Help: "Risk state operations served from memory while Redis was unavailable",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDur,
		m.ScanErrorsTotal,
		m.BacktestRunsTotal,
		m.BacktestDur,
		m.BacktestPredictions,
		m.RiskChecksTotal,
		m.RiskCooldownsStarted,
		m.SQLiteQueryDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisFallbackOps,
		m.MarketState,
	)

	return m
}

// ObserveEvaluation records one signal evaluation.
func (m *Metrics) ObserveEvaluation(decision string, d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(decision).Inc()
	m.EvaluationDur.Observe(d.Seconds())
}

// ScanError counts a scanner failure at the given stage (bars, risk, ...).
func (m *Metrics) ScanError(stage string) {
	if m == nil {
		return
	}
	m.ScanErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveBacktest records a finished backtest run.
func (m *Metrics) ObserveBacktest(err error, d time.Duration, predictions int) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BacktestRunsTotal.WithLabelValues(result).Inc()
	m.BacktestDur.Observe(d.Seconds())
	m.BacktestPredictions.Add(float64(predictions))
}

// ObserveRiskCheck counts a risk check by outcome.
func (m *Metrics) ObserveRiskCheck(outcome string) {
	if m == nil {
		return
	}
	m.RiskChecksTotal.WithLabelValues(outcome).Inc()
}

// CooldownStarted counts a cooldown triggered by the named limit.
func (m *Metrics) CooldownStarted(reason string) {
	if m == nil {
		return
	}
	m.RiskCooldownsStarted.WithLabelValues(reason).Inc()
}

// ObserveSQLite records the latency of one SQLite query.
func (m *Metrics) ObserveSQLite(d time.Duration) {
	if m == nil {
		return
	}
	m.SQLiteQueryDur.Observe(d.Seconds())
}

// SetCircuitState publishes the breaker state (0=closed, 1=open, 2=half-open).
func (m *Metrics) SetCircuitState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
}

// CircuitTripped counts a closed→open transition.
func (m *Metrics) CircuitTripped() {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerTrips.Inc()
}

// RedisFallback counts an operation served by the in-memory fallback.
func (m *Metrics) RedisFallback() {
	if m == nil {
		return
	}
	m.RedisFallbackOps.Inc()
}

// SetMarketOpen publishes the market session state.
func (m *Metrics) SetMarketOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.MarketState.Set(1)
	} else {
		m.MarketState.Set(0)
	}
}
