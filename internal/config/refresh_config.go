package config

import "time"

const (
	refreshMarginEnvVar = "TOKEN_REFRESH_MARGIN"
	maxRetriesEnvVar    = "SESSION_MAX_RETRIES"
	retryDelayEnvVar    = "SESSION_RETRY_DELAY_MS"
	probeAddrEnvVar     = "CONNECTIVITY_PROBE_ADDR"
	probeIntervalEnvVar = "CONNECTIVITY_PROBE_INTERVAL"
)

type RefreshConfig interface {
	GetRefreshMargin() time.Duration
	GetMaxRetries() int
	GetRetryDelay() time.Duration
	GetConnectivityProbeAddr() string
	GetConnectivityProbeInterval() time.Duration
}

type Refresh struct{}

var _ RefreshConfig = Refresh{}

// GetRefreshMargin is configured in whole minutes.
func (Refresh) GetRefreshMargin() time.Duration {
	minutes := GetEnvInt(refreshMarginEnvVar, 5)
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

func (Refresh) GetMaxRetries() int {
	retries := GetEnvInt(maxRetriesEnvVar, 3)
	if retries < 0 {
		return 3
	}
	return retries
}

func (Refresh) GetRetryDelay() time.Duration {
	ms := GetEnvInt(retryDelayEnvVar, 2000)
	if ms <= 0 {
		ms = 2000
	}
	return time.Duration(ms) * time.Millisecond
}

// GetConnectivityProbeAddr is empty when network-online detection is disabled.
func (Refresh) GetConnectivityProbeAddr() string {
	return GetEnv(probeAddrEnvVar, "")
}

func (Refresh) GetConnectivityProbeInterval() time.Duration {
	return GetEnvDuration(probeIntervalEnvVar, 15*time.Second)
}
