package refresh

import "time"

// Metrics receives scheduler outcomes. internal/metrics provides the prometheus
// implementation.
type Metrics interface {
	RefreshScheduled(delay time.Duration)
	RetryScheduled(delay time.Duration)
	RefreshSucceeded()
	RefreshFailed()
	SessionExpired()
}

type nopMetrics struct{}

func (nopMetrics) RefreshScheduled(time.Duration) {}
func (nopMetrics) RetryScheduled(time.Duration)   {}
func (nopMetrics) RefreshSucceeded()              {}
func (nopMetrics) RefreshFailed()                 {}
func (nopMetrics) SessionExpired()                {}
