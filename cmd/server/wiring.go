package main

import (
	"context"

	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/provider"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/jrsteele09/go-session-keeper/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/go-session-keeper/sessions/repofakes"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "session-keeper"

// newSessionRepo returns the configured session store and the func that
// releases it.
func newSessionRepo(ctx context.Context, c config.StoreConfig) (sessions.Repo, func(), error) {
	switch c.GetSessionStore() {
	case config.StoreMemory:
		log.Warn().Msg("Using the in-memory session store, sessions are lost on restart")
		return fakesessionrepo.NewFakeSessionRepo(), func() {}, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrapf(err, "connect to redis at %s", c.GetRedisAddr())
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Err(err).Msg("Failed to close redis client")
			}
		}
		return redisrepo.New(client, redisKeyPrefix, redisrepo.DefaultGrace), closeFn, nil

	default:
		return nil, nil, errors.Wrapf(errors.ErrUnsupportedSessionDB, "%q", c.GetSessionStore())
	}
}

func newRefresher(ctx context.Context, c config.ProviderConfig) (provider.Refresher, error) {
	switch c.GetAuthProvider() {
	case config.ProviderGoTrue:
		if c.GetSupabaseURL() == "" {
			return nil, errors.Wrapf(errors.ErrUnsupportedProvider, "SUPABASE_URL is required for %s", config.ProviderGoTrue)
		}
		return provider.NewGoTrueRefresher(c.GetSupabaseURL(), c.GetSupabaseAnonKey()), nil

	case config.ProviderOIDC:
		return provider.NewOIDCRefresher(ctx, c.GetOIDCIssuer(), c.GetOIDCClientID(), c.GetOIDCClientSecret())

	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedProvider, "%q", c.GetAuthProvider())
	}
}
