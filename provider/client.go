// Package provider adapts an external auth service (Supabase GoTrue or any OAuth2/OIDC
// server) to the getSession / refreshSession / onAuthStateChange contract the
// refresh scheduler consumes.
package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/rs/zerolog"
)

// Refresher exchanges a refresh token for a new session at the auth service.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*sessions.Session, error)
}

type Listener = sessions.AuthListener

// Client is the local view of the auth provider: the persisted session plus the
// remote refresh endpoint.
type Client struct {
	repo      sessions.Repo
	refresher Refresher
	key       string
	log       zerolog.Logger

	lock      sync.RWMutex
	listeners map[string]Listener
	order     []string

	// writeLock orders every change to the stored session. generation moves on
	// each change so a refresh can tell whether the session it renewed is still
	// the stored one.
	writeLock  sync.Mutex
	generation uint64
}

// NewClient creates a provider client storing its session in repo under key.
func NewClient(repo sessions.Repo, refresher Refresher, key string, log zerolog.Logger) *Client {
	return &Client{
		repo:      repo,
		refresher: refresher,
		key:       key,
		log:       log.With().Str("component", "provider").Logger(),
		listeners: make(map[string]Listener),
	}
}

// GetSession returns the persisted session, or nil when nobody is signed in.
func (c *Client) GetSession(ctx context.Context) (*sessions.Session, error) {
	s, err := c.repo.Get(ctx, c.key)
	if errors.Is(err, errors.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session")
	}
	return s, nil
}

// RefreshSession renews the persisted session and announces TOKEN_REFRESHED.
// When the session is signed out or replaced while the provider call is in
// flight, the renewed session is dropped and the stored one wins.
func (c *Client) RefreshSession(ctx context.Context) (*sessions.Session, error) {
	c.writeLock.Lock()
	generation := c.generation
	current, err := c.GetSession(ctx)
	c.writeLock.Unlock()
	if err != nil {
		return nil, err
	}
	if current == nil || current.RefreshToken == "" {
		return nil, errors.ErrNoSession
	}

	next, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, errors.Wrapf(err, "refresh session")
	}
	if next == nil {
		return nil, errors.ErrNoSessionReturned
	}
	// Providers that don't rotate refresh tokens omit them from the response.
	next.RefreshToken = utils.Coalesce(next.RefreshToken, current.RefreshToken)
	next.UserID = utils.Coalesce(next.UserID, current.UserID)
	next.UserEmail = utils.Coalesce(next.UserEmail, current.UserEmail)

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if generation != c.generation {
		stored, err := c.GetSession(ctx)
		if err != nil {
			return nil, err
		}
		c.log.Info().Bool("signed_out", stored == nil).Msg("Session changed during refresh, renewed session discarded")
		if stored == nil {
			return nil, errors.ErrNoSession
		}
		return stored, nil
	}

	if err := c.repo.Upsert(ctx, c.key, next); err != nil {
		return nil, errors.Wrapf(err, "store refreshed session")
	}
	c.generation++

	c.notify(sessions.EventTokenRefreshed, next)
	return next.Clone(), nil
}

// SignIn persists session and announces SIGNED_IN.
func (c *Client) SignIn(ctx context.Context, session *sessions.Session) error {
	if session == nil || session.AccessToken == "" {
		return errors.ErrNoSession
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.repo.Upsert(ctx, c.key, session); err != nil {
		return errors.Wrapf(err, "store session")
	}
	c.generation++
	c.log.Info().Str("user_id", session.UserID).Time("expires_at", session.ExpiresAt).Msg("Signed in")
	c.notify(sessions.EventSignedIn, session)
	return nil
}

// SignOut forgets the persisted session and announces SIGNED_OUT.
func (c *Client) SignOut(ctx context.Context) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.repo.Delete(ctx, c.key); err != nil {
		return errors.Wrapf(err, "delete session")
	}
	c.generation++
	c.log.Info().Msg("Signed out")
	c.notify(sessions.EventSignedOut, nil)
	return nil
}

// OnAuthStateChange registers listener and returns the func that removes it.
func (c *Client) OnAuthStateChange(listener Listener) func() {
	id := uuid.NewString()

	c.lock.Lock()
	c.listeners[id] = listener
	c.order = append(c.order, id)
	c.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.lock.Lock()
			defer c.lock.Unlock()
			delete(c.listeners, id)
			for i, existing := range c.order {
				if existing == id {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		})
	}
}

// notify calls listeners in registration order. It runs under writeLock so
// listeners see changes in the order they were stored; a listener may read the
// session but must not change it synchronously.
func (c *Client) notify(event sessions.AuthEvent, session *sessions.Session) {
	c.lock.RLock()
	listeners := make([]Listener, 0, len(c.order))
	for _, id := range c.order {
		listeners = append(listeners, c.listeners[id])
	}
	c.lock.RUnlock()

	for _, l := range listeners {
		l(event, session.Clone())
	}
}
