// Package metrics exposes the refresh scheduler's outcomes as prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "session_keeper"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Refresh implements refresh.Metrics.
type Refresh struct {
	attempts    *prometheus.CounterVec
	expirations prometheus.Counter
	nextRefresh prometheus.Gauge
	nextRetry   prometheus.Gauge
	retries     prometheus.Counter
	lastSuccess prometheus.Gauge
	now         func() time.Time
}

// NewRefresh creates the collectors and registers them with reg.
func NewRefresh(reg prometheus.Registerer) (*Refresh, error) {
	m := &Refresh{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_attempts_total",
			Help:      "Session renewals against the auth provider by outcome.",
		}, []string{"outcome"}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_expired_total",
			Help:      "Times renewal gave up and the user had to sign in again.",
		}),
		nextRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_refresh_delay_seconds",
			Help:      "Delay of the most recently armed refresh timer.",
		}),
		nextRetry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_backoff_seconds",
			Help:      "Backoff before the most recently scheduled retry.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_retries_total",
			Help:      "Retries scheduled after a failed renewal.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_success_timestamp_seconds",
			Help:      "Unix time of the last successful renewal.",
		}),
		now: time.Now,
	}

	for _, c := range []prometheus.Collector{m.attempts, m.expirations, m.nextRefresh, m.nextRetry, m.retries, m.lastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Pre-create both series so dashboards see zeros before the first renewal.
	m.attempts.WithLabelValues(outcomeSuccess)
	m.attempts.WithLabelValues(outcomeFailure)
	return m, nil
}

func (m *Refresh) RefreshScheduled(delay time.Duration) {
	m.nextRefresh.Set(delay.Seconds())
}

func (m *Refresh) RetryScheduled(delay time.Duration) {
	m.nextRetry.Set(delay.Seconds())
	m.retries.Inc()
}

func (m *Refresh) RefreshSucceeded() {
	m.attempts.WithLabelValues(outcomeSuccess).Inc()
	m.lastSuccess.Set(float64(m.now().Unix()))
}

func (m *Refresh) RefreshFailed() {
	m.attempts.WithLabelValues(outcomeFailure).Inc()
}

func (m *Refresh) SessionExpired() {
	m.expirations.Inc()
}
