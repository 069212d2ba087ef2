// Package connectivity tracks whether the backend is reachable and kicks the
// sync engine when it becomes reachable again.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/till/internal/syncclient"
)

// Prober checks backend reachability. *syncclient.Client implements it.
type Prober interface {
	HealthCheck(ctx context.Context) (*syncclient.HealthResponse, error)
}

// Defaults used when Options leaves a field zero.
const (
	DefaultProbeInterval = 10 * time.Second
	DefaultSyncInterval  = 60 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Options configures a Monitor.
type Options struct {
	ProbeInterval time.Duration
	SyncInterval  time.Duration
	ProbeTimeout  time.Duration
	// Trigger is called on every offline-to-online transition and on every
	// sync tick while online.
	Trigger func(ctx context.Context)
	Logger  *slog.Logger
}

// Monitor holds the current online state. The initial state is offline
// until the first probe or SetOnline call says otherwise.
type Monitor struct {
	prober Prober
	opts   Options
	log    *slog.Logger
	kick   chan struct{}

	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	nextID    int
}

// New creates a monitor. prober may be nil when state only arrives through
// SetOnline.
func New(prober Prober, opts Options) *Monitor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:    prober,
		opts:      opts,
		log:       logger,
		kick:      make(chan struct{}, 1),
		listeners: make(map[int]func(bool)),
	}
}

// IsOnline reports the last known state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers fn for state changes and returns its unsubscribe func.
func (m *Monitor) OnChange(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SetOnline records a platform connectivity notification. Listeners run
// only when the state actually changes; going online also queues a sync
// for the Run loop.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.log.Info("connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
	if online {
		select {
		case m.kick <- struct{}{}:
		default:
		}
	}
}

// Probe checks the backend once and updates the state.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	_, err := m.prober.HealthCheck(ctx)
	if err != nil {
		m.log.Debug("health probe failed", "err", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes and triggers syncs until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	probe := time.NewTicker(m.opts.ProbeInterval)
	defer probe.Stop()
	tick := time.NewTicker(m.opts.SyncInterval)
	defer tick.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-probe.C:
			m.Probe(ctx)
		case <-m.kick:
			m.trigger(ctx)
		case <-tick.C:
			if m.IsOnline() {
				m.trigger(ctx)
			}
		}
	}
}

func (m *Monitor) trigger(ctx context.Context) {
	if m.opts.Trigger != nil {
		m.opts.Trigger(ctx)
	}
}
