package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters the sweeper and settlement paths bump.
type Metrics struct {
	SweepRuns          prometheus.Counter
	BattlesExpired     prometheus.Counter
	BattlesEscalated   prometheus.Counter
	BattlesSettled     prometheus.Counter
	SettlementFailures prometheus.Counter
	SweepErrors        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_sweep_runs_total",
			Help: "Number of completed sweeper ticks.",
		}),
		BattlesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_battles_expired_total",
			Help: "Open battles deleted for having no acceptor in time.",
		}),
		BattlesEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_battles_escalated_total",
			Help: "Battles pushed to CONFLICT for missing self-reports.",
		}),
		BattlesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_battles_settled_total",
			Help: "Battles settled (payout or void refund).",
		}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_settlement_failures_total",
			Help: "Settlement attempts that failed and rolled back.",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_sweep_errors_total",
			Help: "Per-battle sweep failures (sweep continues past these).",
		}),
	}
	reg.MustRegister(
		m.SweepRuns,
		m.BattlesExpired,
		m.BattlesEscalated,
		m.BattlesSettled,
		m.SettlementFailures,
		m.SweepErrors,
	)
	return m
}
