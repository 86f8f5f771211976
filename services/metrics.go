package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is a no-op then.
type Metrics struct {
	walletOpsTotal   *prometheus.CounterVec
	joinsTotal       *prometheus.CounterVec
	txDuration       *prometheus.HistogramVec
	txRetriesTotal   *prometheus.CounterVec
	replaysTotal     *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDropped  prometheus.Counter
	schedulerRuns    *prometheus.CounterVec
	settlementPolled prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		walletOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "wallet",
				Name:      "operations_total",
				Help:      "Wallet operations partitioned by operation and result kind.",
			},
			[]string{"op", "result"},
		),
		joinsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "match",
				Name:      "joins_total",
				Help:      "Match join attempts partitioned by result kind.",
			},
			[]string{"result"},
		),
		txDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tournament_ledger",
				Subsystem: "ledger",
				Name:      "tx_duration_seconds",
				Help:      "Ledger transaction latency including retries.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		txRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "ledger",
				Name:      "tx_retries_total",
				Help:      "Transactions retried after a deadlock or serialization failure.",
			},
			[]string{"op"},
		),
		replaysTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "ledger",
				Name:      "idempotent_replays_total",
				Help:      "Operations short-circuited by an existing idempotency key.",
			},
			[]string{"op"},
		),
		dispatchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "dispatch",
				Name:      "events_total",
				Help:      "Post-commit side effects by sink and result.",
			},
			[]string{"sink", "result"},
		),
		dispatchDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "dispatch",
				Name:      "dropped_total",
				Help:      "Side effects dropped because the queue was full.",
			},
		),
		schedulerRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "scheduler",
				Name:      "runs_total",
				Help:      "Scheduled job runs by job and result.",
			},
			[]string{"job", "result"},
		),
		settlementPolled: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tournament_ledger",
				Subsystem: "settlement",
				Name:      "payments_seen_total",
				Help:      "Captured gateway payments seen by the settlement poller.",
			},
		),
	}
}

func (m *Metrics) WalletOp(op string, err error) {
	if m == nil {
		return
	}
	m.walletOpsTotal.WithLabelValues(op, string(KindOf(err))).Inc()
}

func (m *Metrics) Join(err error) {
	if m == nil {
		return
	}
	m.joinsTotal.WithLabelValues(string(KindOf(err))).Inc()
}

func (m *Metrics) ObserveTx(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) TxRetry(op string) {
	if m == nil {
		return
	}
	m.txRetriesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) Replay(op string) {
	if m == nil {
		return
	}
	m.replaysTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) Dispatch(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dispatchTotal.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) DispatchDropped() {
	if m == nil {
		return
	}
	m.dispatchDropped.Inc()
}

func (m *Metrics) SchedulerRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.schedulerRuns.WithLabelValues(job, result).Inc()
}

func (m *Metrics) SettlementSeen(n int) {
	if m == nil {
		return
	}
	m.settlementPolled.Add(float64(n))
}
