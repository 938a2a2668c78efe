// Package netmon tracks whether the sync server is reachable and tells
// subscribers about online/offline transitions.
package netmon

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/logging"
)

// Pinger checks reachability. client.GRPCClient satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	pinger      Pinger
	pingTimeout time.Duration
	log         logging.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

// New returns a monitor that starts offline until the first successful
// check or SetOnline call.
func New(p Pinger, pingTimeout time.Duration, logger logging.Logger) *Monitor {
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{
		pinger:      p,
		pingTimeout: pingTimeout,
		log:         logger.With("module", "netmon"),
		subs:        make(map[int]func(bool)),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for connectivity transitions and returns a func
// that removes it. fn is called synchronously from whoever changes the
// state, never with the monitor lock held.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// SetOnline records the connectivity state and notifies subscribers when it
// changed.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.Unlock()

	if online {
		m.log.Info(context.Background(), "switched to online mode")
	} else {
		m.log.Info(context.Background(), "switched to offline mode")
	}
	for _, fn := range fns {
		fn(online)
	}
}

// Check pings once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	err := m.pinger.Ping(ctx)
	cancel()

	if err != nil {
		m.log.Debug(ctx, "ping failed", "error", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
