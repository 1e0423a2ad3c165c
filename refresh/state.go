package refresh

import (
	"fmt"
	"time"
)

type State int

const (
	// StateIdle: no session is being monitored.
	StateIdle State = iota
	// StateScheduled: a timer is armed for the next renewal.
	StateScheduled
	// StateRefreshing: a renewal is in flight.
	StateRefreshing
	// StateBackoff: the last renewal failed and a retry timer is armed.
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateScheduled:
		return "SCHEDULED"
	case StateRefreshing:
		return "REFRESHING"
	case StateBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateScheduled, StateRefreshing, StateBackoff} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown scheduler state %q", text)
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Active      bool      `json:"active"`
	State       State     `json:"state"`
	RetryCount  int       `json:"retry_count"`
	Expired     bool      `json:"expired"`
	NextRefresh time.Time `json:"next_refresh,omitzero"`
}
