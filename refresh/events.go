package refresh

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventSessionRefreshed carries the renewed session.
	EventSessionRefreshed EventType = "sessionRefreshed"
	// EventSessionExpired has no session; listeners should force re-authentication.
	EventSessionExpired EventType = "sessionExpired"
)

type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	Session *sessions.Session `json:"session,omitempty"`
	At      time.Time         `json:"at"`
}

// Broadcaster fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broadcaster struct {
	log zerolog.Logger

	lock sync.RWMutex
	subs map[string]chan Event
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log:  log.With().Str("component", "events").Logger(),
		subs: make(map[string]chan Event),
	}
}

// Subscribe returns a channel of events and the func that closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.NewString()
	ch := make(chan Event, buffer)

	b.lock.Lock()
	b.subs[id] = ch
	b.lock.Unlock()

	return ch, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *Broadcaster) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.lock.RLock()
	defer b.lock.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- Event{ID: e.ID, Type: e.Type, Session: e.Session.Clone(), At: e.At}:
		default:
			b.log.Warn().Str("subscriber", id).Str("event", string(e.Type)).Msg("Subscriber too slow, event dropped")
		}
	}
}
