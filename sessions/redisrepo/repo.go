// Package redisrepo persists the current session in Redis so that a restarted
// keeper resumes monitoring the session it was already renewing.
package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/redis/go-redis/v9"
)

// DefaultGrace keeps a session blob around after the access token expires so the
// refresh token in it can still be used.
const DefaultGrace = 7 * 24 * time.Hour

var _ sessions.Repo = (*Repo)(nil)

type Repo struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// New creates a Redis backed session repo. Keys are stored as prefix + ":" + key.
func New(client redis.UniversalClient, prefix string, grace time.Duration) *Repo {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Repo{
		client: client,
		prefix: prefix,
		grace:  grace,
		now:    time.Now,
	}
}

func (r *Repo) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Repo) Get(ctx context.Context, key string) (*sessions.Session, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get %s", key)
	}

	var s sessions.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(errors.ErrSessionCorrupt, "decode %s: %v", key, err)
	}
	return &s, nil
}

func (r *Repo) Upsert(ctx context.Context, key string, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(err, "encode session")
	}

	ttl := session.Remaining(r.now()) + r.grace
	if ttl <= 0 {
		ttl = r.grace
	}
	if err := r.client.Set(ctx, r.redisKey(key), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return errors.Wrapf(err, "redis del %s", key)
	}
	return nil
}
