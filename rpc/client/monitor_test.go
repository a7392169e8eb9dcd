package client

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"
)

func expectEvent(t *testing.T, events <-chan ConnectivityEvent, want ConnectivityEvent) {
	t.Helper()
	select {
	case got := <-events:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", want)
	}
}

func expectNoEvent(t *testing.T, events <-chan ConnectivityEvent) {
	t.Helper()
	select {
	case got := <-events:
		t.Fatalf("unexpected event %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorEdges(t *testing.T) {
	ch := newFakeChannel(connectivity.Connecting)
	mon := NewMonitor(ch)
	events := make(chan ConnectivityEvent, 16)
	mon.Subscribe(func(ev ConnectivityEvent) { events <- ev })
	mon.Start()

	expectNoEvent(t, events)
	assert.Equal(t, StateTransient, mon.State())

	ch.set(connectivity.Ready)
	expectEvent(t, events, Connected)
	assert.Equal(t, StateReady, mon.State())

	ch.set(connectivity.TransientFailure)
	expectEvent(t, events, Disconnected)

	// transient to transient is not an edge
	ch.set(connectivity.Connecting)
	expectNoEvent(t, events)

	ch.set(connectivity.Ready)
	expectEvent(t, events, Reconnected)

	ch.set(connectivity.Shutdown)
	expectEvent(t, events, Closed)
	assert.Equal(t, StateShutdown, mon.State())

	// closed is terminal and emitted once
	mon.Close()
	expectNoEvent(t, events)
}

func TestMonitorCloseEmitsClosed(t *testing.T) {
	ch := newFakeChannel(connectivity.Ready)
	mon := NewMonitor(ch)
	events := make(chan ConnectivityEvent, 16)
	mon.Subscribe(func(ev ConnectivityEvent) { events <- ev })
	mon.Start()
	expectEvent(t, events, Connected)

	mon.Close()
	expectEvent(t, events, Closed)
	mon.Close()
	expectNoEvent(t, events)
}

func TestMonitorCloseWithoutStart(t *testing.T) {
	mon := NewMonitor(newFakeChannel(connectivity.Idle))
	events := make(chan ConnectivityEvent, 1)
	mon.Subscribe(func(ev ConnectivityEvent) { events <- ev })

	mon.Close()
	expectEvent(t, events, Closed)
}

func TestMonitorObserverOrderAndUnsubscribe(t *testing.T) {
	ch := newFakeChannel(connectivity.Idle)
	mon := NewMonitor(ch)
	defer mon.Close()

	calls := make(chan string, 16)
	mon.Subscribe(func(ConnectivityEvent) { calls <- "first" })
	unsubscribe := mon.Subscribe(func(ConnectivityEvent) { calls <- "second" })
	mon.Subscribe(func(ConnectivityEvent) { calls <- "third" })
	mon.Start()

	ch.set(connectivity.Ready)
	for _, want := range []string{"first", "second", "third"} {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s observer", want)
		}
	}

	unsubscribe()
	unsubscribe()

	ch.set(connectivity.TransientFailure)
	for _, want := range []string{"first", "third"} {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s observer", want)
		}
	}
}

func TestMonitorWaitForReady(t *testing.T) {
	ch := newFakeChannel(connectivity.Connecting)
	mon := NewMonitor(ch)
	defer mon.Close()

	err := mon.WaitForReady(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, common.ErrChannelNotReady)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.set(connectivity.Ready)
	}()
	assert.NoError(t, mon.WaitForReady(context.Background(), 2*time.Second))

	ch.set(connectivity.Shutdown)
	assert.ErrorIs(t, mon.WaitForReady(context.Background(), time.Second), common.ErrClosed)
}

func TestMonitorCloseFromObserver(t *testing.T) {
	ch := newFakeChannel(connectivity.Ready)
	mon := NewMonitor(ch)

	closed := make(chan struct{})
	mon.Subscribe(func(ev ConnectivityEvent) {
		if ev == Disconnected {
			mon.Close()
			close(closed)
		}
	})
	events := make(chan ConnectivityEvent, 16)
	mon.Subscribe(func(ev ConnectivityEvent) { events <- ev })
	mon.Start()
	expectEvent(t, events, Connected)

	ch.set(connectivity.TransientFailure)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from an observer did not return")
	}

	// later observers see Closed as the last edge, not the stale Disconnected
	expectEvent(t, events, Closed)
	expectNoEvent(t, events)
	assert.Equal(t, StateShutdown, mon.State())

	select {
	case <-mon.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch goroutine did not exit")
	}
}

func TestSessionCloseFromConnectivityListener(t *testing.T) {
	ft := newFakeTransport(connectivity.Ready)
	s, err := NewSession(context.Background(), common.ClientConfig{Endpoints: []string{"fake"}},
		WithTransport(ft), WithWaitForReady())
	require.NoError(t, err)

	closed := make(chan error, 1)
	s.AddConnectivityListener(func(ev ConnectivityEvent) {
		if ev == Disconnected {
			closed <- s.Close()
		}
	})

	ft.channel.set(connectivity.TransientFailure)
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Session.Close called from a connectivity listener did not return")
	}
	assert.Equal(t, StateShutdown, s.State())
}
