package livesync

import (
	"context"
	"log"
	"sync"
	"time"
)

// Prober checks backend reachability. *postgres.Repository satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger overrides the monitor logger.
func WithMonitorLogger(logger *log.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// Monitor tracks connectivity, either by probing on an interval or through Set.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	online    bool
	listeners []func(online bool)
}

// NewMonitor returns a monitor that starts online. A nil prober leaves Set as the only
// way to change state.
func NewMonitor(prober Prober, interval time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   log.New(log.Writer(), "[connectivity] ", log.LstdFlags|log.Lshortfile),
		online:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	onlineGauge.Set(1)
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers fn to run on every transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Set records the state. Listeners run synchronously, only when the state changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	if online {
		onlineGauge.Set(1)
		m.logger.Printf("backend reachable")
	} else {
		onlineGauge.Set(0)
		m.logger.Printf("backend unreachable")
	}
	transitionCounter.WithLabelValues(stateLabel(online)).Inc()
	for _, fn := range listeners {
		fn(online)
	}
}

// Probe runs one check and records its outcome.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.Online()
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.prober.Ping(probeCtx)
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}
	m.Set(err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil || m.interval <= 0 {
		<-ctx.Done()
		return
	}
	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

func stateLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
