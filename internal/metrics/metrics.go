// Package metrics exposes relay progress as prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relayer"

type Metrics struct {
	Outcomes     *prometheus.CounterVec
	Cursor       *prometheus.GaugeVec
	Head         *prometheus.GaugeVec
	PassDuration *prometheus.HistogramVec
}

// New registers the relay collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_outcomes_total",
			Help:      "Mirror submissions by watched role and resulting status.",
		}, []string{"role", "status"}),
		Cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_cursor_block",
			Help:      "Highest fully processed block per role.",
		}, []string{"role"}),
		Head: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_head_block",
			Help:      "Latest block height seen per role.",
		}, []string{"role"}),
		PassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of relay passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"role", "result"}),
	}
	reg.MustRegister(m.Outcomes, m.Cursor, m.Head, m.PassDuration)
	return m
}

func (m *Metrics) Outcome(role, status string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(role, status).Inc()
}

func (m *Metrics) SetCursor(role string, block uint64) {
	if m == nil {
		return
	}
	m.Cursor.WithLabelValues(role).Set(float64(block))
}

func (m *Metrics) SetHead(role string, block uint64) {
	if m == nil {
		return
	}
	m.Head.WithLabelValues(role).Set(float64(block))
}

func (m *Metrics) ObservePass(role string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PassDuration.WithLabelValues(role, result).Observe(d.Seconds())
}
