package refresh

import "time"

const (
	DefaultRefreshMargin   = 5 * time.Minute
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 2 * time.Second
	DefaultMinRefreshDelay = 30 * time.Second
)

// Config controls when and how often the scheduler renews a session. It is read
// once at startup and never changes afterwards.
type Config struct {
	// RefreshMargin is the lead time before expiry at which renewal starts.
	RefreshMargin time.Duration
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int
	// RetryDelay is multiplied by the retry number: 2s, 4s, 6s...
	RetryDelay time.Duration
	// MinRefreshDelay floors every armed timer.
	MinRefreshDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		RefreshMargin:   DefaultRefreshMargin,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		MinRefreshDelay: DefaultMinRefreshDelay,
	}
}

// withDefaults fills zero values. MaxRetries of zero is a valid setting.
func (c Config) withDefaults() Config {
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MinRefreshDelay <= 0 {
		c.MinRefreshDelay = DefaultMinRefreshDelay
	}
	return c
}

// RefreshDelay returns the timer delay for a session with the given remaining
// lifetime. When allowImmediate is set and the margin has already been reached,
// due is true and the caller should renew now instead of arming a timer.
func (c Config) RefreshDelay(remaining time.Duration, allowImmediate bool) (delay time.Duration, due bool) {
	delay = remaining - c.RefreshMargin
	if delay <= 0 && allowImmediate {
		return 0, true
	}
	if delay < c.MinRefreshDelay {
		delay = c.MinRefreshDelay
	}
	return delay, false
}

// RetryBackoff is the linear wait before retry number attempt (1-based).
func (c Config) RetryBackoff(attempt int) time.Duration {
	return c.RetryDelay * time.Duration(attempt)
}
