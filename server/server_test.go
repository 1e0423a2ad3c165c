package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/internal/metrics"
	"github.com/jrsteele09/go-session-keeper/provider"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-keeper/sessions/repofakes"
	"github.com/jrsteele09/go-session-keeper/triggers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type refresherFunc func(ctx context.Context, refreshToken string) (*sessions.Session, error)

func (f refresherFunc) Refresh(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	return f(ctx, refreshToken)
}

type testEnv struct {
	server    *Server
	clock     *clockwork.FakeClock
	scheduler *refresh.Scheduler
	visible   *triggers.Manual

	lock      sync.Mutex
	refreshes int
	refreshFn func() (*sessions.Session, error)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000")
	t.Setenv("ENV", "TEST")

	env := &testEnv{
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		visible: triggers.NewManual("visible"),
	}
	env.refreshFn = func() (*sessions.Session, error) {
		return &sessions.Session{
			AccessToken:  "renewed-access",
			RefreshToken: "renewed-refresh",
			ExpiresAt:    env.clock.Now().Add(time.Hour),
		}, nil
	}

	refresher := refresherFunc(func(ctx context.Context, refreshToken string) (*sessions.Session, error) {
		env.lock.Lock()
		env.refreshes++
		fn := env.refreshFn
		env.lock.Unlock()
		return fn()
	})

	client := provider.NewClient(fakesessionrepo.NewFakeSessionRepo(), refresher, "test", zerolog.Nop())
	env.scheduler = refresh.New(client, refresh.DefaultConfig(),
		refresh.WithClock(env.clock),
		refresh.WithTriggers(env.visible),
	)
	require.NoError(t, env.scheduler.Initialize(context.Background()))
	t.Cleanup(env.scheduler.Destroy)

	reg := prometheus.NewRegistry()
	_, err := metrics.NewRefresh(reg)
	require.NoError(t, err)

	env.server = New(config.New(), env.scheduler, client, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), env.visible)
	env.server.now = env.clock.Now
	return env
}

func (e *testEnv) refreshCount() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.refreshes
}

func (e *testEnv) setRefresh(fn func() (*sessions.Session, error)) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.refreshFn = fn
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, r)
	return w
}

func (e *testEnv) signIn(t *testing.T, expiresIn time.Duration) {
	t.Helper()
	body := `{"access_token":"access","refresh_token":"refresh","expires_in":` +
		jsonNumber(int64(expiresIn/time.Second)) + `}`
	w := e.do(http.MethodPost, RouteSessionSignIn, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, RouteHealth, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatusWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, RouteSession, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[map[string]any](t, w)
	require.Equal(t, false, resp["valid"])
	require.NotContains(t, resp, "expires_in")
	scheduler := resp["scheduler"].(map[string]any)
	require.Equal(t, "IDLE", scheduler["state"])
}

func TestSignInWithJWTClaims(t *testing.T) {
	env := newTestEnv(t)

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-42",
		"email": "trader@example.com",
		"exp":   env.clock.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	w := env.do(http.MethodPost, RouteSessionSignIn,
		`{"access_token":"`+accessToken+`","refresh_token":"refresh"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view := decode[SessionView](t, w)
	require.Equal(t, "user-42", view.UserID)
	require.Equal(t, "trader@example.com", view.Email)
	require.Equal(t, int64(3600), view.ExpiresIn)
	require.NotContains(t, w.Body.String(), accessToken, "tokens are never echoed")

	status := decode[StatusResponse](t, env.do(http.MethodGet, RouteSession, ""))
	require.True(t, status.Valid)
	require.NotNil(t, status.ExpiresIn)
	require.Equal(t, int64(3600), *status.ExpiresIn)
	require.Equal(t, refresh.StateScheduled, status.Scheduler.State)
	require.True(t, env.clock.Now().Add(55*time.Minute).Equal(status.Scheduler.NextRefresh))
}

func TestSignInValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"access_token":`},
		{"missing refresh token", `{"access_token":"a","expires_in":60}`},
		{"missing access token", `{"refresh_token":"r","expires_in":60}`},
		{"no expiry and opaque token", `{"access_token":"a","refresh_token":"r"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, RouteSessionSignIn, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Equal(t, "invalid_request", decode[map[string]string](t, w)["error"])
		})
	}
}

func TestSignInWithExpiresAt(t *testing.T) {
	env := newTestEnv(t)
	expiresAt := env.clock.Now().Add(2 * time.Hour).Unix()

	w := env.do(http.MethodPost, RouteSessionSignIn,
		`{"access_token":"a","refresh_token":"r","expires_at":`+jsonNumber(expiresAt)+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(7200), decode[SessionView](t, w).ExpiresIn)
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, time.Hour)

	w := env.do(http.MethodPost, RouteSessionSignOut, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	status := decode[StatusResponse](t, env.do(http.MethodGet, RouteSession, ""))
	require.False(t, status.Valid)
	require.Nil(t, status.ExpiresIn)
	require.Equal(t, refresh.StateIdle, status.Scheduler.State)
}

func TestCheckHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, RouteSessionCheck, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "no_session", decode[map[string]string](t, w)["error"])

	env.signIn(t, time.Hour)
	w = env.do(http.MethodPost, RouteSessionCheck, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(3600), decode[SessionView](t, w).ExpiresIn)
	require.Equal(t, 0, env.refreshCount(), "a fresh session is not renewed")
}

func TestRefreshHandler(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, 30*time.Minute)

	w := env.do(http.MethodPost, RouteSessionRefresh, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, int64(3600), decode[SessionView](t, w).ExpiresIn)
	require.Equal(t, 1, env.refreshCount())
	require.NotContains(t, w.Body.String(), "renewed-access")
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"revoked refresh token", errors.ErrInvalidRefreshToken, http.StatusUnauthorized, "session_expired"},
		{"provider down", errors.ErrProviderUnavailable, http.StatusBadGateway, "provider_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.signIn(t, time.Hour)
			env.setRefresh(func() (*sessions.Session, error) { return nil, tt.err })

			w := env.do(http.MethodPost, RouteSessionRefresh, "")
			require.Equal(t, tt.wantCode, w.Code)
			require.Equal(t, tt.wantErr, decode[map[string]string](t, w)["error"])
		})
	}

	t.Run("no session", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, RouteSessionRefresh, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWakeHandler(t *testing.T) {
	env := newTestEnv(t)

	fired := make(chan struct{}, 1)
	unsubscribe := env.visible.Subscribe(func() { fired <- struct{}{} })
	defer unsubscribe()

	w := env.do(http.MethodPost, RouteSessionWake+"?reason=bored", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, RouteSessionWake+"?reason=visible", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("wake trigger not fired")
	}
}

func TestCorsPreflight(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodOptions, RouteSessionCheck, nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	r = httptest.NewRequest(http.MethodOptions, RouteSessionCheck, nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, RouteSession, nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, r)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	env := newTestEnv(t)
	handler := ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, env.server.RecoverMiddleware)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "server_error", decode[map[string]string](t, w)["error"])
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, RouteMetrics, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "session_keeper_refresh_attempts_total")
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+RouteSessionEvents, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	env.scheduler.Events().Publish(refresh.Event{
		ID:   "evt-1",
		Type: refresh.EventSessionRefreshed,
		Session: &sessions.Session{
			AccessToken: "secret-access",
			UserID:      "user-1",
			ExpiresAt:   env.clock.Now().Add(time.Hour),
		},
	})

	var lines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			break
		}
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}

	require.Len(t, lines, 3)
	require.Equal(t, "id: evt-1", lines[0])
	require.Equal(t, "event: sessionRefreshed", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "data: "))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &payload))
	require.Equal(t, "sessionRefreshed", payload["type"])
	session := payload["session"].(map[string]any)
	require.Equal(t, "user-1", session["user_id"])
	require.NotContains(t, lines[2], "secret-access")
}

func TestRefreshAfterSignOut(t *testing.T) {
	env := newTestEnv(t)
	events, unsubscribe := env.scheduler.Events().Subscribe(4)
	defer unsubscribe()

	env.signIn(t, time.Hour)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodPost, RouteSessionSignOut, "").Code)

	w := env.do(http.MethodPost, RouteSessionRefresh, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "no_session", decode[map[string]string](t, w)["error"])

	status := decode[StatusResponse](t, env.do(http.MethodGet, RouteSession, ""))
	require.Equal(t, refresh.StateIdle, status.Scheduler.State)
	require.Zero(t, status.Scheduler.RetryCount)

	env.clock.Advance(time.Hour)
	require.Zero(t, env.refreshCount(), "the provider is never called without a session")
	select {
	case e := <-events:
		t.Fatalf("unexpected %s event after sign out", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
