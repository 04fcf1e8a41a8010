// Package metrics exposes Prometheus collectors for the persistence session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cookbook"

// Collector records save, statement and conflict metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	statements   *prometheus.CounterVec
	saves        *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	saveDuration prometheus.Histogram
	trackedGauge prometheus.Gauge
	transactions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "statements_total",
			Help:      "Statements executed by sessions, by operation.",
		}, []string{"op"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "saves_total",
			Help:      "SaveChanges calls, by result.",
		}, []string{"result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "concurrency_conflicts_total",
			Help:      "Optimistic concurrency conflicts, by entity type.",
		}, []string{"entity"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "save_duration_seconds",
			Help:      "Duration of SaveChanges calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		trackedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "tracked_entries",
			Help:      "Entries tracked by the most recently saved session.",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transactions_total",
			Help:      "Explicit transactions, by outcome.",
		}, []string{"outcome"}),
	}

	for _, col := range []prometheus.Collector{c.statements, c.saves, c.conflicts, c.saveDuration, c.trackedGauge, c.transactions} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Statement counts one executed statement.
func (c *Collector) Statement(op string) {
	if c == nil {
		return
	}
	c.statements.WithLabelValues(op).Inc()
}

// Save records the outcome and duration of one SaveChanges call.
func (c *Collector) Save(started time.Time, tracked int, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.saves.WithLabelValues(result).Inc()
	c.saveDuration.Observe(time.Since(started).Seconds())
	c.trackedGauge.Set(float64(tracked))
}

// Conflict counts one concurrency conflict.
func (c *Collector) Conflict(entity string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(entity).Inc()
}

// Transaction counts one resolved explicit transaction ("commit", "rollback").
func (c *Collector) Transaction(outcome string) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(outcome).Inc()
}
