package plugin

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records statement counts and latencies, and tracks open
// transactions.
type Metrics struct {
	Statements *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	OpenTx     prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which is handy for tests and throwaway sessions.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dal_statements_total",
				Help: "Statements issued through a session, by verb and outcome.",
			},
			[]string{"verb", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dal_statement_duration_seconds",
				Help:    "Statement round-trip latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
		OpenTx: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dal_transactions_open",
				Help: "Transactions currently holding a pinned connection.",
			},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Statements, m.Duration, m.OpenTx} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) BeforeStatement(ctx context.Context, _ *Event) context.Context {
	return ctx
}

func (m *Metrics) AfterStatement(_ context.Context, ev *Event) {
	m.Statements.WithLabelValues(ev.Verb, ev.Status()).Inc()
	m.Duration.WithLabelValues(ev.Verb).Observe(ev.Elapsed.Seconds())

	// A failed commit leaves the transaction open; a rollback always ends it.
	switch {
	case ev.Verb == "begin" && ev.Err == nil:
		m.OpenTx.Inc()
	case ev.Verb == "commit" && ev.Err == nil, ev.Verb == "rollback":
		m.OpenTx.Dec()
	}
}
