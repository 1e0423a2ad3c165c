package triggers

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Connectivity probes a TCP address on an interval and fires when the network
// transitions from unreachable to reachable.
type Connectivity struct {
	hub
	addr     string
	interval time.Duration
	dialer   Dialer
	clock    clockwork.Clock
	log      zerolog.Logger

	lock   sync.Mutex
	online bool
	cancel context.CancelFunc
	done   chan struct{}
}

type ConnectivityConfig struct {
	Addr     string
	Interval time.Duration
	Dialer   Dialer
	Clock    clockwork.Clock
	Log      zerolog.Logger
}

func NewConnectivity(cfg ConnectivityConfig) *Connectivity {
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{Timeout: 5 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	return &Connectivity{
		addr:     cfg.Addr,
		interval: cfg.Interval,
		dialer:   cfg.Dialer,
		clock:    cfg.Clock,
		log:      cfg.Log.With().Str("component", "connectivity").Str("addr", cfg.Addr).Logger(),
		online:   true,
	}
}

func (c *Connectivity) Name() string {
	return "online"
}

// Online reports the result of the last probe. The network is assumed up until a
// probe says otherwise.
func (c *Connectivity) Online() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.online
}

// Start launches the probe loop. Calling Start twice is a no-op.
func (c *Connectivity) Start(ctx context.Context) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)
}

func (c *Connectivity) Stop() {
	c.lock.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.lock.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Connectivity) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.Probe(ctx)
		}
	}
}

// Probe dials once and fires listeners on an offline to online transition.
func (c *Connectivity) Probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	conn, err := c.dialer.DialContext(probeCtx, "tcp", c.addr)
	reachable := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	c.lock.Lock()
	wasOnline := c.online
	c.online = reachable
	c.lock.Unlock()

	switch {
	case wasOnline && !reachable:
		c.log.Warn().Err(err).Msg("Network offline")
	case !wasOnline && reachable:
		c.log.Info().Msg("Network back online")
		c.fire()
	}
}
