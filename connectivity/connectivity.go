package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/the-lightning-land/lnurld/events"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Online:
		return "ONLINE"
	default:
		return "INVALID STATE"
	}
}

type Reporter interface {
	CurrentState() State
	// WaitForStateChange blocks until the state differs from source or
	// the context is done. It reports whether the state changed.
	WaitForStateChange(context.Context, State) bool
}

// Prober checks whether the node answers.
type Prober func(ctx context.Context) error

type Publisher interface {
	Publish(event *events.Event) int
}

type Config struct {
	Probe    Prober
	Interval time.Duration
	Timeout  time.Duration
	Events   Publisher
	Logger   Logger
}

// Monitor probes the node periodically and reports whether it is reachable.
type Monitor struct {
	probe    Prober
	interval time.Duration
	timeout  time.Duration
	events   Publisher
	logger   Logger

	mu      sync.Mutex
	state   State
	changed chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Reporter = (*Monitor)(nil)

func NewMonitor(config *Config) *Monitor {
	monitor := &Monitor{
		probe:    config.Probe,
		interval: config.Interval,
		timeout:  config.Timeout,
		events:   config.Events,
		logger:   config.Logger,
		state:    Offline,
		changed:  make(chan struct{}),
	}

	if monitor.interval == 0 {
		monitor.interval = 15 * time.Second
	}

	if monitor.timeout == 0 {
		monitor.timeout = 5 * time.Second
	}

	if monitor.logger == nil {
		monitor.logger = noopLogger{}
	}

	return monitor
}

// Start probes once synchronously and then keeps probing in the background.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.Probe(ctx)

	go func() {
		defer close(m.done)

		t := time.NewTicker(m.interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Probe(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
}

// Probe checks the node once and updates the state.
func (m *Monitor) Probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	state := Online
	if err := m.probe(ctx); err != nil {
		m.logger.Debugf("Node probe failed: %v", err)
		state = Offline
	}

	m.setState(state)

	return state
}

func (m *Monitor) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == state {
		return
	}

	m.logger.Infof("Node is %v", state)

	m.state = state
	close(m.changed)
	m.changed = make(chan struct{})

	if m.events != nil {
		eventType := events.NodeOffline
		if state == Online {
			eventType = events.NodeOnline
		}
		m.events.Publish(events.New(eventType, nil))
	}
}

func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Monitor) WaitForStateChange(ctx context.Context, source State) bool {
	for {
		m.mu.Lock()
		state := m.state
		changed := m.changed
		m.mu.Unlock()

		if state != source {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-changed:
		}
	}
}
