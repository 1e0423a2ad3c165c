// Package refresh keeps an auth session alive. The Scheduler arms a single timer
// shortly before the session expires, renews the session through the provider,
// retries failed renewals with a linear backoff and announces the outcome through
// a Broadcaster.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Provider is the auth service the scheduler renews sessions against.
type Provider interface {
	GetSession(ctx context.Context) (*sessions.Session, error)
	RefreshSession(ctx context.Context) (*sessions.Session, error)
	OnAuthStateChange(listener sessions.AuthListener) (unsubscribe func())
}

// Trigger is an external wake-up source, such as a client reporting it became
// visible or the network coming back.
type Trigger interface {
	Name() string
	Subscribe(fn func()) (unsubscribe func())
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithEvents(b *Broadcaster) Option {
	return func(s *Scheduler) { s.events = b }
}

func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithTriggers(triggers ...Trigger) Option {
	return func(s *Scheduler) { s.triggers = append(s.triggers, triggers...) }
}

type Scheduler struct {
	provider Provider
	cfg      Config
	clock    clockwork.Clock
	log      zerolog.Logger
	events   *Broadcaster
	metrics  Metrics
	triggers []Trigger

	// ctx is used for renewals so that one caller giving up does not fail the
	// others waiting on the same flight.
	ctx   context.Context
	group singleflight.Group

	lock        sync.Mutex // protects the fields below
	active      bool
	state       State
	retryCount  int
	expired     bool
	timer       clockwork.Timer
	timerSeq    uint64
	nextRefresh time.Time
	generation  uint64
	unsubscribe []func()
}

func New(provider Provider, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		provider: provider,
		cfg:      cfg.withDefaults(),
		clock:    clockwork.NewRealClock(),
		log:      zerolog.Nop(),
		metrics:  nopMetrics{},
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = NewBroadcaster(s.log)
	}
	s.log = s.log.With().Str("component", "refresh").Logger()
	return s
}

// Events returns the broadcaster carrying sessionRefreshed and sessionExpired.
func (s *Scheduler) Events() *Broadcaster {
	return s.events
}

// Initialize starts monitoring the current session and subscribes to auth-state
// changes and wake triggers. Calling it again while active is a no-op.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.lock.Lock()
	if s.active {
		s.lock.Unlock()
		return nil
	}
	s.active = true
	s.expired = false
	s.lock.Unlock()

	unsubscribe := []func(){s.provider.OnAuthStateChange(s.onAuthStateChange)}
	for _, t := range s.triggers {
		name := t.Name()
		unsubscribe = append(unsubscribe, t.Subscribe(func() { s.onWake(name) }))
	}

	s.lock.Lock()
	s.unsubscribe = append(s.unsubscribe, unsubscribe...)
	s.lock.Unlock()

	return s.setupMonitoring(ctx)
}

func (s *Scheduler) setupMonitoring(ctx context.Context) error {
	session, err := s.provider.GetSession(ctx)
	if err != nil {
		s.log.Err(err).Msg("Error setting up session monitoring")
		return errors.Wrapf(err, "setup session monitoring")
	}

	if session == nil {
		s.lock.Lock()
		s.stopTimerLocked()
		s.state = StateIdle
		s.lock.Unlock()
		s.log.Debug().Msg("No session, monitoring idle until sign in")
		return nil
	}

	s.armFromSession(session, true)
	return nil
}

// armFromSession schedules the next renewal for an observed session. With
// allowImmediate a session already inside the margin is renewed right away.
func (s *Scheduler) armFromSession(session *sessions.Session, allowImmediate bool) {
	s.lock.Lock()
	if !s.active {
		s.lock.Unlock()
		return
	}

	delay, due := s.cfg.RefreshDelay(session.Remaining(s.clock.Now()), allowImmediate)
	if !due {
		s.armLocked(delay, StateScheduled)
		s.lock.Unlock()
		s.log.Info().Dur("in", delay).Msgf("Next token refresh scheduled in %s", delay.Round(time.Second))
		return
	}

	s.stopTimerLocked()
	s.state = StateRefreshing
	s.lock.Unlock()

	s.log.Info().Time("expires_at", session.ExpiresAt).Msg("Session is close to expiry, refreshing now")
	go s.refreshInBackground()
}

func (s *Scheduler) refreshInBackground() {
	if _, err := s.refresh(s.ctx); err != nil {
		s.log.Debug().Err(err).Msg("Background refresh did not succeed")
	}
}

// armLocked replaces any armed timer. Must be called with s.lock held.
func (s *Scheduler) armLocked(delay time.Duration, state State) {
	s.stopTimerLocked()
	seq := s.timerSeq
	s.state = state
	s.nextRefresh = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() { s.onTimer(seq) })
	if state == StateBackoff {
		s.metrics.RetryScheduled(delay)
	} else {
		s.metrics.RefreshScheduled(delay)
	}
}

// stopTimerLocked stops the armed timer. Bumping timerSeq makes a callback that
// already started before Stop a no-op.
func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
	s.nextRefresh = time.Time{}
}

// teardownLocked returns to IDLE and discards the result of any renewal in flight.
func (s *Scheduler) teardownLocked() {
	s.stopTimerLocked()
	s.generation++
	s.state = StateIdle
	s.retryCount = 0
}

func (s *Scheduler) onTimer(seq uint64) {
	s.lock.Lock()
	if !s.active || seq != s.timerSeq {
		s.lock.Unlock()
		return
	}
	s.timer = nil
	s.nextRefresh = time.Time{}
	s.lock.Unlock()

	s.refreshInBackground()
}

// refresh joins the renewal in flight or starts one. ctx only bounds how long
// this caller waits.
func (s *Scheduler) refresh(ctx context.Context) (*sessions.Session, error) {
	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		return s.attempt()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		session, _ := res.Val.(*sessions.Session)
		return session.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) attempt() (*sessions.Session, error) {
	s.lock.Lock()
	generation := s.generation
	if s.active {
		s.stopTimerLocked()
		s.state = StateRefreshing
	}
	s.lock.Unlock()

	session, err := s.provider.RefreshSession(s.ctx)
	if err == nil && session == nil {
		err = errors.ErrNoSessionReturned
	}

	s.lock.Lock()
	if generation != s.generation {
		s.lock.Unlock()
		s.log.Debug().Msg("Monitoring stopped during refresh, result discarded")
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	if err != nil {
		return s.handleFailureLocked(err)
	}

	s.retryCount = 0
	s.expired = false
	var next time.Duration
	if s.active {
		next, _ = s.cfg.RefreshDelay(session.Remaining(s.clock.Now()), false)
		s.armLocked(next, StateScheduled)
	} else {
		s.state = StateIdle
	}
	s.lock.Unlock()

	s.metrics.RefreshSucceeded()
	s.log.Info().Time("expires_at", session.ExpiresAt).Dur("next_refresh", next).Msg("Session refreshed successfully")
	s.events.Publish(Event{Type: EventSessionRefreshed, Session: session, At: s.clock.Now()})
	return session, nil
}

// handleFailureLocked is called with s.lock held and releases it.
func (s *Scheduler) handleFailureLocked(cause error) (*sessions.Session, error) {
	// Nobody is signed in: nothing to retry and nothing has expired.
	if errors.Is(cause, errors.ErrNoSession) {
		s.stopTimerLocked()
		s.state = StateIdle
		s.retryCount = 0
		s.lock.Unlock()
		s.log.Debug().Msg("No session to refresh, monitoring idle until sign in")
		return nil, cause
	}

	s.metrics.RefreshFailed()

	if !s.active {
		s.lock.Unlock()
		s.log.Err(cause).Msg("Failed to refresh session")
		return nil, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, cause)
	}

	// Retries were already exhausted; an explicit request gets one attempt only.
	if s.expired {
		s.stopTimerLocked()
		s.state = StateIdle
		s.lock.Unlock()
		s.log.Warn().Err(cause).Msg("Refresh after expiry failed, sign in required")
		return nil, fmt.Errorf("%w: %w", errors.ErrRetriesExhausted, cause)
	}

	if s.retryCount < s.cfg.MaxRetries {
		s.retryCount++
		retry := s.retryCount
		delay := s.cfg.RetryBackoff(retry)
		s.armLocked(delay, StateBackoff)
		s.lock.Unlock()

		s.log.Warn().Err(cause).Int("retry", retry).Dur("in", delay).
			Msgf("Retrying session refresh (%d/%d)", retry, s.cfg.MaxRetries)
		return nil, fmt.Errorf("%w: %w", errors.ErrRefreshFailed, cause)
	}

	s.teardownLocked()
	s.expired = true
	s.lock.Unlock()

	s.log.Error().Err(cause).Msg("Max refresh retries exceeded. User may need to sign in again")
	s.metrics.SessionExpired()
	s.events.Publish(Event{Type: EventSessionExpired, At: s.clock.Now()})
	return nil, fmt.Errorf("%w: %w", errors.ErrRetriesExhausted, cause)
}

func (s *Scheduler) onAuthStateChange(event sessions.AuthEvent, session *sessions.Session) {
	switch event {
	case sessions.EventSignedIn:
		if session == nil {
			return
		}
		s.lock.Lock()
		s.retryCount = 0
		s.expired = false
		s.lock.Unlock()
		s.armFromSession(session, true)

	case sessions.EventTokenRefreshed:
		if session == nil {
			return
		}
		s.lock.Lock()
		// Our own renewal re-arms when it completes.
		if s.state == StateRefreshing {
			s.lock.Unlock()
			return
		}
		s.retryCount = 0
		s.expired = false
		s.lock.Unlock()
		s.armFromSession(session, false)

	case sessions.EventSignedOut:
		s.lock.Lock()
		s.teardownLocked()
		s.expired = false
		s.lock.Unlock()
		s.log.Info().Msg("Signed out, session monitoring stopped")
	}
}

func (s *Scheduler) onWake(source string) {
	s.lock.Lock()
	skip := !s.active || s.expired
	s.lock.Unlock()
	if skip {
		return
	}

	s.log.Debug().Str("trigger", source).Msg("Wake trigger, checking session")
	go func() {
		if _, err := s.CheckAndRefreshSession(s.ctx); err != nil {
			s.log.Warn().Err(err).Str("trigger", source).Msg("Session check failed")
		}
	}()
}

// CheckAndRefreshSession renews the session when it is within the refresh margin
// and returns the provider's session afterwards. Concurrent callers share a
// single renewal.
func (s *Scheduler) CheckAndRefreshSession(ctx context.Context) (*sessions.Session, error) {
	session, err := s.provider.GetSession(ctx)
	if err != nil {
		s.log.Err(err).Msg("Error checking session")
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if session.Remaining(s.clock.Now()) > s.cfg.RefreshMargin {
		return session, nil
	}

	s.log.Info().Msg("Session is close to expiry, refreshing")
	if _, err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.provider.GetSession(ctx)
}

// ForceRefresh renews the session unconditionally, e.g. on explicit user action.
func (s *Scheduler) ForceRefresh(ctx context.Context) (*sessions.Session, error) {
	if _, err := s.refresh(ctx); err != nil {
		s.log.Err(err).Msg("Force refresh failed")
		return nil, err
	}
	return s.provider.GetSession(ctx)
}

// IsSessionValid reports whether a session exists and has not expired.
func (s *Scheduler) IsSessionValid(ctx context.Context) bool {
	session, err := s.provider.GetSession(ctx)
	if err != nil || session == nil {
		return false
	}
	return session.ExpiresAt.After(s.clock.Now())
}

// TimeUntilExpiry returns the remaining session lifetime, floored at zero. ok is
// false when there is no session.
func (s *Scheduler) TimeUntilExpiry(ctx context.Context) (remaining time.Duration, ok bool) {
	session, err := s.provider.GetSession(ctx)
	if err != nil || session == nil {
		return 0, false
	}
	return max(0, session.Remaining(s.clock.Now())), true
}

func (s *Scheduler) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Status{
		Active:      s.active,
		State:       s.state,
		RetryCount:  s.retryCount,
		Expired:     s.expired,
		NextRefresh: s.nextRefresh,
	}
}

// Destroy stops the timer and releases every subscription. A renewal already in
// flight finishes but its result is ignored. Safe to call more than once.
func (s *Scheduler) Destroy() {
	s.lock.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.teardownLocked()
	s.active = false
	s.expired = false
	s.lock.Unlock()

	for _, u := range unsubscribe {
		u()
	}
}
