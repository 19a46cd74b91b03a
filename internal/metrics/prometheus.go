package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// PrometheusMetrics holds all Prometheus metrics for the activity bot.
type PrometheusMetrics struct {
	// Operation counters
	OperationsTotal *prometheus.CounterVec
	CyclesTotal     *prometheus.CounterVec
	DialsTotal      *prometheus.CounterVec
	FaucetClaims    *prometheus.CounterVec

	// Gauges
	InFlight    prometheus.Gauge
	RunState    *prometheus.GaugeVec
	Accounts    prometheus.Gauge
	NextCycleAt prometheus.Gauge

	// Histograms
	ConfirmLatency *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activitybot_operations_total",
				Help: "On-chain operations by kind and result",
			},
			[]string{"operation", "result"},
		),

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activitybot_cycles_total",
				Help: "Finished cycles by result",
			},
			[]string{"result"},
		),

		DialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activitybot_dials_total",
				Help: "Connection attempts by path (proxy or direct) and result",
			},
			[]string{"path", "result"},
		),

		FaucetClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activitybot_faucet_claims_total",
				Help: "Faucet claims by result",
			},
			[]string{"result"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "activitybot_in_flight",
				Help: "Operations currently holding up a graceful stop",
			},
		),

		RunState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "activitybot_run_state",
				Help: "Current scheduler state (1 if active, 0 otherwise)",
			},
			[]string{"state"},
		),

		Accounts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "activitybot_accounts",
				Help: "Number of loaded accounts",
			},
		),

		NextCycleAt: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "activitybot_next_cycle_timestamp_seconds",
				Help: "Unix time of the scheduled next cycle, 0 when none is pending",
			},
		),

		ConfirmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activitybot_confirmation_latency_seconds",
				Help:    "Send to receipt latency in seconds",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
}

// RecordOperation records one operation result ("confirmed", "reverted", "failed", "skipped").
func (m *PrometheusMetrics) RecordOperation(kind types.OperationKind, result string) {
	m.OperationsTotal.WithLabelValues(string(kind), result).Inc()
}

// RecordConfirmLatency records the send to receipt latency.
func (m *PrometheusMetrics) RecordConfirmLatency(kind types.OperationKind, latencySeconds float64) {
	m.ConfirmLatency.WithLabelValues(string(kind)).Observe(latencySeconds)
}

// RecordCycle records a finished cycle.
func (m *PrometheusMetrics) RecordCycle(result types.CycleResult) {
	m.CyclesTotal.WithLabelValues(string(result)).Inc()
}

// RecordDial records a connection attempt.
func (m *PrometheusMetrics) RecordDial(direct, success bool) {
	path := "proxy"
	if direct {
		path = "direct"
	}
	result := "ok"
	if !success {
		result = "failed"
	}
	m.DialsTotal.WithLabelValues(path, result).Inc()
}

// RecordFaucetClaim records a faucet claim result.
func (m *PrometheusMetrics) RecordFaucetClaim(success bool) {
	if success {
		m.FaucetClaims.WithLabelValues("ok").Inc()
		return
	}
	m.FaucetClaims.WithLabelValues("failed").Inc()
}

// SetInFlight sets the in-flight operation gauge.
func (m *PrometheusMetrics) SetInFlight(n int64) {
	m.InFlight.Set(float64(n))
}

// SetAccounts sets the loaded account gauge.
func (m *PrometheusMetrics) SetAccounts(n int) {
	m.Accounts.Set(float64(n))
}

// SetNextCycle sets the next cycle timestamp; zero clears it.
func (m *PrometheusMetrics) SetNextCycle(unixSeconds int64) {
	m.NextCycleAt.Set(float64(unixSeconds))
}

// SetRunState sets the current scheduler state.
func (m *PrometheusMetrics) SetRunState(state types.RunState) {
	for _, s := range []types.RunState{
		types.StateIdle,
		types.StateRunning,
		types.StateStopping,
		types.StateWaitingForNextCycle,
	} {
		if s == state {
			m.RunState.WithLabelValues(string(s)).Set(1)
		} else {
			m.RunState.WithLabelValues(string(s)).Set(0)
		}
	}
}
