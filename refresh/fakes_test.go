package refresh_test

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/sessions"
)

// fakeProvider is an in-memory auth provider whose refresh behaviour is scripted
// per call.
type fakeProvider struct {
	lock         sync.Mutex
	session      *sessions.Session
	getErr       error
	getCalls     int
	refreshCalls int
	refreshFn    func(call int) (*sessions.Session, error)
	listeners    map[int]sessions.AuthListener
	nextID       int
}

func newFakeProvider(session *sessions.Session) *fakeProvider {
	return &fakeProvider{
		session:   session,
		listeners: make(map[int]sessions.AuthListener),
	}
}

func (p *fakeProvider) GetSession(context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.session.Clone(), nil
}

func (p *fakeProvider) RefreshSession(context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	p.refreshCalls++
	call := p.refreshCalls
	fn := p.refreshFn
	signedOut := p.session == nil
	p.lock.Unlock()

	if signedOut {
		return nil, errors.ErrNoSession
	}

	s, err := fn(call)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	p.session = s.Clone()
	p.lock.Unlock()
	return s, nil
}

func (p *fakeProvider) OnAuthStateChange(listener sessions.AuthListener) func() {
	p.lock.Lock()
	defer p.lock.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	return func() {
		p.lock.Lock()
		defer p.lock.Unlock()
		delete(p.listeners, id)
	}
}

func (p *fakeProvider) emit(event sessions.AuthEvent, session *sessions.Session) {
	p.lock.Lock()
	if event == sessions.EventSignedOut {
		p.session = nil
	} else if session != nil {
		p.session = session.Clone()
	}
	listeners := make([]sessions.AuthListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.lock.Unlock()

	for _, l := range listeners {
		l(event, session.Clone())
	}
}

func (p *fakeProvider) setSession(session *sessions.Session) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.session = session.Clone()
}

func (p *fakeProvider) setRefresh(fn func(call int) (*sessions.Session, error)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.refreshFn = fn
}

func (p *fakeProvider) refreshCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.refreshCalls
}

func (p *fakeProvider) getCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.getCalls
}

func (p *fakeProvider) listenerCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.listeners)
}

type recordingMetrics struct {
	lock      sync.Mutex
	delays    []time.Duration
	retries   []time.Duration
	successes int
	failures  int
	expired   int
}

func (m *recordingMetrics) RefreshScheduled(d time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.delays = append(m.delays, d)
}

func (m *recordingMetrics) RetryScheduled(d time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.retries = append(m.retries, d)
}

func (m *recordingMetrics) retryDelays() []time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]time.Duration(nil), m.retries...)
}

func (m *recordingMetrics) RefreshSucceeded() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.successes++
}

func (m *recordingMetrics) RefreshFailed() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.failures++
}

func (m *recordingMetrics) SessionExpired() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.expired++
}

func (m *recordingMetrics) snapshot() (delays []time.Duration, successes, failures, expired int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]time.Duration(nil), m.delays...), m.successes, m.failures, m.expired
}
