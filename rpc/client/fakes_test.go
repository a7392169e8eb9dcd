package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/serializer"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Fake Channel
// --------------------------------------------------------------------------

// fakeChannel is a transport.Channel whose state is set by the test
type fakeChannel struct {
	mu      sync.Mutex
	state   connectivity.State
	changed chan struct{}
}

func newFakeChannel(state connectivity.State) *fakeChannel {
	return &fakeChannel{state: state, changed: make(chan struct{})}
}

func (c *fakeChannel) GetState() connectivity.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) WaitForStateChange(ctx context.Context, source connectivity.State) bool {
	for {
		c.mu.Lock()
		if c.state != source {
			c.mu.Unlock()
			return true
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

func (c *fakeChannel) Connect() {}

func (c *fakeChannel) set(state connectivity.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	close(c.changed)
	c.changed = make(chan struct{})
}

// --------------------------------------------------------------------------
// Fake Event Stream
// --------------------------------------------------------------------------

// fakeEventStream acknowledges every request like the proxy does. reject
// turns a request into an error response, afterAck returns responses written
// right behind an acknowledgement.
type fakeEventStream struct {
	ctx       context.Context
	responses chan *common.ListenerResponse
	failed    chan error
	reject    func(req *common.ListenerRequest) string
	afterAck  func(req *common.ListenerRequest) []*common.ListenerResponse

	mu       sync.Mutex
	requests []*common.ListenerRequest
	broken   bool
}

func (s *fakeEventStream) Send(req *common.ListenerRequest) error {
	s.mu.Lock()
	if s.broken {
		s.mu.Unlock()
		return io.EOF
	}
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.reject != nil {
		if msg := s.reject(req); msg != "" {
			s.emit(common.NewListenerErrorResponse(req.Uid, msg))
			return nil
		}
	}
	if req.Subscribe {
		s.emit(common.NewSubscribedResponse(req.Uid))
	} else {
		s.emit(common.NewUnsubscribedResponse(req.Uid))
	}
	if s.afterAck != nil {
		for _, resp := range s.afterAck(req) {
			s.emit(resp)
		}
	}
	return nil
}

func (s *fakeEventStream) Recv() (*common.ListenerResponse, error) {
	select {
	case resp := <-s.responses:
		return resp, nil
	case err := <-s.failed:
		return nil, err
	case <-s.ctx.Done():
		return nil, status.Error(codes.Canceled, s.ctx.Err().Error())
	}
}

func (s *fakeEventStream) CloseSend() error {
	return nil
}

func (s *fakeEventStream) emit(resp *common.ListenerResponse) {
	s.responses <- resp
}

// fail breaks the stream with err as the proxy going away would
func (s *fakeEventStream) fail(err error) {
	s.mu.Lock()
	s.broken = true
	s.mu.Unlock()
	s.failed <- err
}

// sent returns the requests written on the stream, without the init request
func (s *fakeEventStream) sent() []*common.ListenerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*common.ListenerRequest
	for _, r := range s.requests {
		if r.Type != common.ListenerRequestInit {
			out = append(out, r)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Fake Transport
// --------------------------------------------------------------------------

// fakeTransport opens fake event streams on a fake channel
type fakeTransport struct {
	channel  *fakeChannel
	reject   func(req *common.ListenerRequest) string
	afterAck func(req *common.ListenerRequest) []*common.ListenerResponse

	mu      sync.Mutex
	streams []*fakeEventStream
}

var _ transport.IRPCClientTransport = (*fakeTransport)(nil)

func newFakeTransport(state connectivity.State) *fakeTransport {
	return &fakeTransport{channel: newFakeChannel(state)}
}

func (t *fakeTransport) Connect(common.ClientConfig) error { return nil }

func (t *fakeTransport) Invoke(context.Context, *common.Message) (*common.Message, error) {
	return nil, fmt.Errorf("not implemented")
}

func (t *fakeTransport) OpenEvents(ctx context.Context) (transport.EventStream, error) {
	s := &fakeEventStream{
		ctx:       ctx,
		responses: make(chan *common.ListenerResponse, 1024),
		failed:    make(chan error, 1),
		reject:    t.reject,
		afterAck:  t.afterAck,
	}
	t.mu.Lock()
	t.streams = append(t.streams, s)
	t.mu.Unlock()
	return s, nil
}

func (t *fakeTransport) OpenKeysPage(context.Context, *common.PageRequest) (transport.PageStream[common.BytesValue], error) {
	return nil, fmt.Errorf("not implemented")
}

func (t *fakeTransport) OpenEntriesPage(context.Context, *common.PageRequest) (transport.PageStream[common.EntryResult], error) {
	return nil, fmt.Errorf("not implemented")
}

func (t *fakeTransport) Channel() transport.Channel { return t.channel }

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) streamCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

// stream returns the i-th opened stream
func (t *fakeTransport) stream(i int) *fakeEventStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[i]
}

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// recordedEvent is what a recordingListener saw
type recordedEvent struct {
	typ EventType
	key string
	old *string
	new *string
}

// recordingListener records every event it receives
type recordingListener struct {
	*FuncMapListener[string, string]

	mu     sync.Mutex
	events []recordedEvent
	errs   []error
}

func newRecordingListener() *recordingListener {
	l := &recordingListener{}
	l.FuncMapListener = NewMapListener[string, string]().WhenAny(func(ev *MapEvent[string, string]) {
		key, err := ev.Key()
		oldV, errOld := ev.OldValue()
		newV, errNew := ev.NewValue()

		l.mu.Lock()
		defer l.mu.Unlock()
		for _, e := range []error{err, errOld, errNew} {
			if e != nil {
				l.errs = append(l.errs, e)
			}
		}
		l.events = append(l.events, recordedEvent{typ: ev.Type(), key: key, old: oldV, new: newV})
	})
	return l
}

func (l *recordingListener) received() []recordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedEvent(nil), l.events...)
}

func (l *recordingListener) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

type testManager struct {
	*eventManager[string, string]
	transport *fakeTransport
	monitor   *Monitor
	ser       serializer.IRPCSerializer
}

// newTestManager creates an event manager for map "test" on a fake transport
func newTestManager(t *testing.T, state connectivity.State) *testManager {
	t.Helper()

	ft := newFakeTransport(state)
	mon := NewMonitor(ft.channel)
	mon.Start()

	ser, err := serializer.New(serializer.FormatJSON)
	require.NoError(t, err)

	m := newEventManager[string, string](eventManagerConfig{
		name:           "test",
		transport:      ft,
		monitor:        mon,
		factory:        newRequestFactory("test", "", ser.Format()),
		serializer:     ser,
		readyTimeout:   200 * time.Millisecond,
		requestTimeout: time.Second,
		queueSize:      16,
	})
	t.Cleanup(func() {
		m.close()
		mon.Close()
	})
	return &testManager{eventManager: m, transport: ft, monitor: mon, ser: ser}
}

// enc serializes v with the manager's serializer
func (tm *testManager) enc(t *testing.T, v any) []byte {
	t.Helper()
	b, err := tm.ser.Serialize(v)
	require.NoError(t, err)
	return b
}

// waitDispatched blocks until all events queued so far were delivered
func (tm *testManager) waitDispatched(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	tm.enqueue(dispatchItem[string, string]{lifecycle: common.ResponseUnknown})
	go func() {
		for tm.queue.Len() > 0 {
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not dispatched")
	}
}
