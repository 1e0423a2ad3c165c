package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 8

type eventPayload struct {
	ID      string            `json:"id"`
	Type    refresh.EventType `json:"type"`
	At      time.Time         `json:"at"`
	Session *SessionView      `json:"session,omitempty"`
}

// EventsHandler streams sessionRefreshed and sessionExpired as server-sent
// events until the client disconnects.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, "server_error", "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, unsubscribe := s.keeper.Events().Subscribe(eventBuffer)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case e, open := <-events:
				if !open {
					return
				}
				if err := s.writeEvent(w, e); err != nil {
					log.Err(err).Msg("Failed to write session event")
					return
				}
				flusher.Flush()
			}
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, e refresh.Event) error {
	payload := eventPayload{ID: e.ID, Type: e.Type, At: e.At}
	if e.Session != nil {
		v := s.view(e.Session)
		payload.Session = &v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data)
	return err
}
