package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/provider"
	"github.com/jrsteele09/go-session-keeper/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/go-session-keeper/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

func TestNewSessionRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		t.Setenv("SESSION_STORE", config.StoreMemory)
		repo, closeFn, err := newSessionRepo(ctx, config.New())
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &fakesessionrepo.FakeSessionRepo{}, repo)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("SESSION_STORE", config.StoreRedis)
		t.Setenv("REDIS_ADDR", mr.Addr())
		repo, closeFn, err := newSessionRepo(ctx, config.New())
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &redisrepo.Repo{}, repo)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		t.Setenv("SESSION_STORE", config.StoreRedis)
		t.Setenv("REDIS_ADDR", addr)
		_, _, err := newSessionRepo(ctx, config.New())
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "etcd")
		_, _, err := newSessionRepo(ctx, config.New())
		require.ErrorIs(t, err, errors.ErrUnsupportedSessionDB)
	})
}

func TestNewRefresher(t *testing.T) {
	ctx := context.Background()

	t.Run("gotrue", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER", config.ProviderGoTrue)
		t.Setenv("SUPABASE_URL", "https://project.supabase.co")
		r, err := newRefresher(ctx, config.New())
		require.NoError(t, err)
		require.IsType(t, &provider.GoTrueRefresher{}, r)
	})

	t.Run("gotrue without url", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER", config.ProviderGoTrue)
		t.Setenv("SUPABASE_URL", "")
		_, err := newRefresher(ctx, config.New())
		require.ErrorIs(t, err, errors.ErrUnsupportedProvider)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv("AUTH_PROVIDER", "saml")
		_, err := newRefresher(ctx, config.New())
		require.ErrorIs(t, err, errors.ErrUnsupportedProvider)
	})
}

func TestRefreshConfigFromEnv(t *testing.T) {
	t.Setenv("TOKEN_REFRESH_MARGIN", "10")
	t.Setenv("SESSION_MAX_RETRIES", "5")
	t.Setenv("SESSION_RETRY_DELAY_MS", "500")

	cfg := refreshConfig(config.New())
	require.Equal(t, 10*60, int(cfg.RefreshMargin.Seconds()))
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 500, int(cfg.RetryDelay.Milliseconds()))
}
