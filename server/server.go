package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/rs/zerolog/log"
)

// Scheduler is the part of refresh.Scheduler the HTTP surface drives.
type Scheduler interface {
	CheckAndRefreshSession(ctx context.Context) (*sessions.Session, error)
	ForceRefresh(ctx context.Context) (*sessions.Session, error)
	IsSessionValid(ctx context.Context) bool
	TimeUntilExpiry(ctx context.Context) (time.Duration, bool)
	Status() refresh.Status
	Events() *refresh.Broadcaster
}

// Authenticator stores or clears the session handed over by a client after it
// signed in with the auth provider.
type Authenticator interface {
	SignIn(ctx context.Context, session *sessions.Session) error
	SignOut(ctx context.Context) error
}

// Waker is a trigger fired by the /session/wake endpoint.
type Waker interface {
	Name() string
	Fire()
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	keeper  Scheduler
	auth    Authenticator
	wakers  map[string]Waker
	metrics http.Handler
	now     func() time.Time
}

// New wires the session routes. metrics may be nil, in which case /metrics is
// not registered.
func New(config config.Config, keeper Scheduler, auth Authenticator, metrics http.Handler, wakers ...Waker) *Server {
	s := &Server{
		env:     config.GetEnv(),
		mux:     http.NewServeMux(),
		config:  config,
		keeper:  keeper,
		auth:    auth,
		wakers:  make(map[string]Waker, len(wakers)),
		metrics: metrics,
		now:     time.Now,
	}
	for _, w := range wakers {
		s.wakers[w.Name()] = w
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", colouredMethod(method), path, Red+error+ResetColor)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
