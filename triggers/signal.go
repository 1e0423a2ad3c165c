package triggers

import (
	"os"
	"os/signal"
	"sync"
)

// Signal fires whenever the process receives one of its signals. SIGCONT (resumed
// after a stop or a laptop suspend) is the usual choice.
type Signal struct {
	hub
	signals []os.Signal

	once sync.Once
	ch   chan os.Signal
	done chan struct{}
}

func NewSignal(signals ...os.Signal) *Signal {
	return &Signal{
		signals: signals,
		ch:      make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

func (s *Signal) Name() string {
	return "signal"
}

// Start begins relaying signals until Stop is called.
func (s *Signal) Start() {
	signal.Notify(s.ch, s.signals...)
	go func() {
		for {
			select {
			case <-s.ch:
				s.fire()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Signal) Stop() {
	s.once.Do(func() {
		signal.Stop(s.ch)
		close(s.done)
	})
}
