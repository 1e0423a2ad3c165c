// Package triggers provides wake-up sources that ask the refresh scheduler to
// re-check the session: the daemon equivalents of a browser tab becoming visible
// and the network coming back online.
package triggers

import (
	"sync"

	"github.com/google/uuid"
)

// hub is the listener registry shared by every trigger.
type hub struct {
	lock      sync.RWMutex
	listeners map[string]func()
}

func (h *hub) Subscribe(fn func()) func() {
	id := uuid.NewString()

	h.lock.Lock()
	if h.listeners == nil {
		h.listeners = make(map[string]func())
	}
	h.listeners[id] = fn
	h.lock.Unlock()

	return func() {
		h.lock.Lock()
		defer h.lock.Unlock()
		delete(h.listeners, id)
	}
}

func (h *hub) fire() {
	h.lock.RLock()
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.lock.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (h *hub) count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.listeners)
}

// Manual fires when Fire is called, e.g. from an HTTP request reporting that a
// client tab became visible.
type Manual struct {
	hub
	name string
}

func NewManual(name string) *Manual {
	return &Manual{name: name}
}

func (m *Manual) Name() string {
	return m.name
}

func (m *Manual) Fire() {
	m.fire()
}
