package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"google.golang.org/grpc/connectivity"
)

// --------------------------------------------------------------------------
// States and Events
// --------------------------------------------------------------------------

// ConnectivityState is the bucket a raw channel state falls into
type ConnectivityState uint8

const (
	StateTransient ConnectivityState = iota // Idle, Connecting, TransientFailure
	StateReady
	StateShutdown
)

// String returns a string representation of the state
func (s ConnectivityState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateShutdown:
		return "shutdown"
	default:
		return "transient"
	}
}

// stateOf maps a gRPC connectivity state to its bucket
func stateOf(s connectivity.State) ConnectivityState {
	switch s {
	case connectivity.Ready:
		return StateReady
	case connectivity.Shutdown:
		return StateShutdown
	default:
		return StateTransient
	}
}

// ConnectivityEvent is an edge of the connectivity state machine
type ConnectivityEvent uint8

const (
	Connected    ConnectivityEvent = iota + 1 // First transition into Ready
	Disconnected                              // Ready -> not Ready
	Reconnected                               // not Ready -> Ready, after the first connect
	Closed                                    // Shutdown, emitted once
)

// String returns a string representation of the event
func (e ConnectivityEvent) String() string {
	switch e {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnected:
		return "reconnected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectivityHandler is called synchronously for every emitted edge
type ConnectivityHandler func(ev ConnectivityEvent)

// --------------------------------------------------------------------------
// Monitor
// --------------------------------------------------------------------------

type observer struct {
	id uint64
	fn ConnectivityHandler
}

// Monitor watches a channel and emits only the edges of its connectivity
// state. Observers are called in subscription order on the monitor goroutine,
// Closed is emitted on the goroutine calling Close unless the channel shut
// down on its own before. Observers may call Close.
type Monitor struct {
	ch transport.Channel

	mu        sync.Mutex
	observers []observer
	nextID    uint64
	state     ConnectivityState
	everReady bool

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	notifying atomic.Bool // set while the watch goroutine runs observers
}

// NewMonitor creates a monitor for the channel, Start begins watching
func NewMonitor(ch transport.Channel) *Monitor {
	return &Monitor{
		ch:    ch,
		state: StateTransient,
		done:  make(chan struct{}),
	}
}

// Start starts the watch goroutine, an idle channel is asked to connect
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go m.watch(ctx)
	})
}

// Subscribe adds an observer. The returned func removes it and may be called
// more than once.
func (m *Monitor) Subscribe(fn ConnectivityHandler) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.observers = append(m.observers, observer{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// State returns the last observed state
func (m *Monitor) State() ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops watching and emits Closed if it was not emitted yet. Called
// from an observer it does not wait for the watch goroutine, which exits
// once the observer returns.
func (m *Monitor) Close() {
	m.startOnce.Do(func() { close(m.done) })
	if m.cancel != nil {
		m.cancel()
	}
	if !m.notifying.Load() {
		<-m.done
	}
	m.observe(connectivity.Shutdown)
}

// WaitForReady blocks until the channel is Ready, the timeout expired or ctx is done
func (m *Monitor) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		s := m.ch.GetState()
		switch s {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return common.ErrClosed
		case connectivity.Idle:
			m.ch.Connect()
		}
		if !m.ch.WaitForStateChange(ctx, s) {
			return common.ErrChannelNotReady
		}
	}
}

// watch follows the channel state until it shuts down or ctx is canceled
func (m *Monitor) watch(ctx context.Context) {
	defer close(m.done)
	for {
		s := m.ch.GetState()
		m.notifying.Store(true)
		m.observe(s)
		m.notifying.Store(false)
		if s == connectivity.Shutdown {
			return
		}
		if s == connectivity.Idle {
			m.ch.Connect()
		}
		if !m.ch.WaitForStateChange(ctx, s) {
			return
		}
	}
}

// observe records a raw state and notifies the observers of a resulting edge
func (m *Monitor) observe(raw connectivity.State) {
	next := stateOf(raw)

	m.mu.Lock()
	prev := m.state
	if prev == StateShutdown {
		m.mu.Unlock()
		return
	}
	m.state = next

	var ev ConnectivityEvent
	switch {
	case next == StateShutdown:
		ev = Closed
	case next == StateReady && prev != StateReady && !m.everReady:
		m.everReady = true
		ev = Connected
	case next == StateReady && prev != StateReady:
		ev = Reconnected
	case next != StateReady && prev == StateReady:
		ev = Disconnected
	}
	observers := append([]observer(nil), m.observers...)
	m.mu.Unlock()

	if ev == 0 {
		return
	}
	Logger.Debugf("Connectivity %s (%s -> %s)", ev, prev, next)
	for _, o := range observers {
		// an observer closed the monitor, Closed was the last edge
		if ev != Closed && m.State() == StateShutdown {
			return
		}
		o.fn(ev)
	}
}
