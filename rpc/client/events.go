package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dMap/lib/util"
	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/serializer"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/jizhuozhi/go-future"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// streamHandle is one generation of the shared event stream
type streamHandle struct {
	gen    uint64
	stream transport.EventStream
	cancel context.CancelFunc
	sendMu sync.Mutex // Send must not be called concurrently
	broken bool       // guarded by eventManager.mu
}

// pendingAck correlates a listener request with its acknowledgement. onAck
// runs on the receive goroutine before the next response is read.
type pendingAck struct {
	promise *future.Promise[struct{}]
	gen     uint64
	onAck   func()
}

// dispatchItem is an event or lifecycle notification waiting for the dispatcher
type dispatchItem[K comparable, V any] struct {
	event     *MapEvent[K, V]
	groups    []*listenerGroup[K, V]
	lifecycle common.ListenerResponseKind
}

// eventManager multiplexes all listener registrations of one named map onto
// a single event stream. It owns the stream, the group registries and the
// table of pending acknowledgements, and replays every registration after
// the stream was lost.
type eventManager[K comparable, V any] struct {
	name           string
	transport      transport.IRPCClientTransport
	monitor        *Monitor
	factory        *requestFactory
	serializer     serializer.IRPCSerializer
	readyTimeout   time.Duration
	requestTimeout time.Duration
	sweepTimeout   time.Duration
	lifecycle      func(kind common.ListenerResponseKind)

	// mu guards the registries and the stream state, it is never held across a round trip
	mu             sync.Mutex
	keyGroups      map[string]*listenerGroup[K, V]
	filterGroups   map[string]*listenerGroup[K, V]
	filterIDGroups map[int64]*listenerGroup[K, V]
	stream         *streamHandle
	creating       *future.Future[*streamHandle]
	nextGen        uint64
	closing        bool

	nextFilterID    atomic.Int64
	keepStream      atomic.Bool
	pending         *xsync.MapOf[string, *pendingAck]
	queue           *util.MPSC[dispatchItem[K, V]]
	queueWarnAt     int
	dispatched      chan struct{} // closed once the dispatcher exited
	unsubscribeConn func()

	eventsReceived  *metrics.Counter
	resubscriptions *metrics.Counter
	streamResets    *metrics.Counter
}

// eventManagerConfig holds the collaborators of an eventManager
type eventManagerConfig struct {
	name           string
	transport      transport.IRPCClientTransport
	monitor        *Monitor
	factory        *requestFactory
	serializer     serializer.IRPCSerializer
	readyTimeout   time.Duration
	requestTimeout time.Duration
	queueSize      int
	lifecycle      func(kind common.ListenerResponseKind)
}

func newEventManager[K comparable, V any](c eventManagerConfig) *eventManager[K, V] {
	m := &eventManager[K, V]{
		name:            c.name,
		transport:       c.transport,
		monitor:         c.monitor,
		factory:         c.factory,
		serializer:      c.serializer,
		readyTimeout:    c.readyTimeout,
		requestTimeout:  c.requestTimeout,
		sweepTimeout:    c.readyTimeout + c.requestTimeout,
		lifecycle:       c.lifecycle,
		keyGroups:       make(map[string]*listenerGroup[K, V]),
		filterGroups:    make(map[string]*listenerGroup[K, V]),
		filterIDGroups:  make(map[int64]*listenerGroup[K, V]),
		pending:         xsync.NewMapOf[string, *pendingAck](),
		queue:           util.NewMPSC[dispatchItem[K, V]](),
		queueWarnAt:     c.queueSize,
		dispatched:      make(chan struct{}),
		eventsReceived:  metrics.GetOrCreateCounter(fmt.Sprintf(`dmap_events_received_total{map=%q}`, c.name)),
		resubscriptions: metrics.GetOrCreateCounter(fmt.Sprintf(`dmap_resubscriptions_total{map=%q}`, c.name)),
		streamResets:    metrics.GetOrCreateCounter(fmt.Sprintf(`dmap_stream_resets_total{map=%q}`, c.name)),
	}
	if m.queueWarnAt <= 0 {
		m.queueWarnAt = common.DefaultEventQueueSize
	}
	if m.requestTimeout <= 0 {
		m.requestTimeout = time.Duration(common.DefaultTimeoutSecond) * time.Second
	}
	if m.sweepTimeout <= 0 {
		m.sweepTimeout = time.Duration(common.DefaultTimeoutSecond) * time.Second
	}
	if c.monitor != nil {
		m.unsubscribeConn = c.monitor.Subscribe(m.onConnectivity)
	}
	go m.dispatch()
	return m
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// registerKeyListener adds l to the group of the serialized key
func (m *eventManager[K, V]) registerKeyListener(ctx context.Context, l MapListener[K, V], key []byte, lite bool) error {
	return m.register(ctx, keyGroup, key, l, lite)
}

// registerFilterListener adds l to the group of the serialized filter
func (m *eventManager[K, V]) registerFilterListener(ctx context.Context, l MapListener[K, V], filter []byte, lite bool) error {
	return m.register(ctx, filterGroup, filter, l, lite)
}

// removeKeyListener removes l from the group of the serialized key, if any
func (m *eventManager[K, V]) removeKeyListener(ctx context.Context, l MapListener[K, V], key []byte) error {
	return m.remove(ctx, keyGroup, key, l)
}

// removeFilterListener removes l from the group of the serialized filter, if any
func (m *eventManager[K, V]) removeFilterListener(ctx context.Context, l MapListener[K, V], filter []byte) error {
	return m.remove(ctx, filterGroup, filter, l)
}

func (m *eventManager[K, V]) register(ctx context.Context, kind groupKind, payload []byte, l MapListener[K, V], lite bool) error {
	if err := checkListener(l); err != nil {
		return err
	}
	for {
		g, err := m.findOrCreateGroup(kind, payload)
		if err != nil {
			return err
		}
		err = g.addListener(ctx, l, lite)
		if errors.Is(err, errGroupDestroyed) {
			// the group was emptied while we waited for it
			continue
		}
		return err
	}
}

func (m *eventManager[K, V]) remove(ctx context.Context, kind groupKind, payload []byte, l MapListener[K, V]) error {
	if err := checkListener(l); err != nil {
		return err
	}
	m.mu.Lock()
	g := m.registry(kind)[string(payload)]
	m.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.removeListener(ctx, l)
}

// findOrCreateGroup returns the registered group for the payload
func (m *eventManager[K, V]) findOrCreateGroup(kind groupKind, payload []byte) (*listenerGroup[K, V], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return nil, common.ErrClosed
	}
	registry := m.registry(kind)
	if g, ok := registry[string(payload)]; ok {
		return g, nil
	}
	g := newListenerGroup(m, kind, payload)
	registry[g.id] = g
	return g, nil
}

// dropGroup removes an emptied group from its registry
func (m *eventManager[K, V]) dropGroup(g *listenerGroup[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	registry := m.registry(g.kind)
	if registry[g.id] == g {
		delete(registry, g.id)
	}
}

// registry returns the registry of the group kind, m.mu must be held
func (m *eventManager[K, V]) registry(kind groupKind) map[string]*listenerGroup[K, V] {
	if kind == keyGroup {
		return m.keyGroups
	}
	return m.filterGroups
}

func (m *eventManager[K, V]) newFilterID() int64 {
	return m.nextFilterID.Add(1)
}

func (m *eventManager[K, V]) linkFilter(id int64, g *listenerGroup[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterIDGroups[id] = g
}

func (m *eventManager[K, V]) unlinkFilter(id int64, g *listenerGroup[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filterIDGroups[id] == g {
		delete(m.filterIDGroups, id)
	}
}

// groupCount returns the number of registered key and filter groups
func (m *eventManager[K, V]) groupCount() (keys, filters int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keyGroups), len(m.filterGroups)
}

// --------------------------------------------------------------------------
// Stream Handling
// --------------------------------------------------------------------------

// liveGen returns the generation of the live stream, 0 if there is none
func (m *eventManager[K, V]) liveGen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return 0
	}
	return m.stream.gen
}

// ensureStream returns the live stream, creating it if needed. At most one
// creation is in flight, concurrent callers wait for it. A nil handle means
// the stream could not be created and is retried on the next call.
func (m *eventManager[K, V]) ensureStream(ctx context.Context) (*streamHandle, error) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, common.ErrClosed
	}
	if m.stream != nil {
		h := m.stream
		m.mu.Unlock()
		return h, nil
	}
	if m.creating != nil {
		f := m.creating
		m.mu.Unlock()
		return f.Get()
	}
	p := future.NewPromise[*streamHandle]()
	m.creating = p.Future()
	m.mu.Unlock()

	h := m.createStream(ctx)

	m.mu.Lock()
	m.creating = nil
	if h != nil && (h.broken || m.closing) {
		h.broken = true
		h.cancel()
		h = nil
	}
	if h != nil {
		m.stream = h
	}
	m.mu.Unlock()

	p.Set(h, nil)
	return h, nil
}

// createStream waits for the channel, opens the stream, starts its receive
// goroutine and initializes it. It returns nil on any failure.
func (m *eventManager[K, V]) createStream(ctx context.Context) *streamHandle {
	if err := m.monitor.WaitForReady(ctx, m.readyTimeout); err != nil {
		eventsLogger.Warningf("Event stream of %s not created: %v", m.name, err)
		return nil
	}

	// the stream outlives the request that created it
	sctx, cancel := context.WithCancel(context.Background())
	stream, err := m.transport.OpenEvents(sctx)
	if err != nil {
		cancel()
		eventsLogger.Warningf("Failed to open event stream of %s: %v", m.name, err)
		return nil
	}

	m.mu.Lock()
	m.nextGen++
	h := &streamHandle{gen: m.nextGen, stream: stream, cancel: cancel}
	m.mu.Unlock()

	go m.receive(h)

	ictx, icancel := context.WithTimeout(ctx, m.readyTimeout)
	defer icancel()
	if err := m.send(ictx, h, m.factory.initRequest(), nil); err != nil {
		eventsLogger.Warningf("Failed to initialize event stream of %s: %v", m.name, err)
		m.discard(h)
		return nil
	}

	eventsLogger.Debugf("Event stream %d of %s ready", h.gen, m.name)
	return h
}

// writeRequest is the only path for (un)subscribe requests. It returns the
// generation of the stream the request was acknowledged on. Without a stream
// it returns generation 0 and no error: the group counts as registered and
// the next resubscription sweep writes it. onAck (may be nil) runs only if
// the proxy acknowledged the request.
func (m *eventManager[K, V]) writeRequest(ctx context.Context, req *common.ListenerRequest, onAck func()) (uint64, error) {
	h, err := m.ensureStream(ctx)
	if err != nil {
		return 0, err
	}
	if h == nil {
		eventsLogger.Warningf("No event stream for %s, %s request deferred to the next resubscription", m.name, req.Type)
		return 0, nil
	}

	err = m.send(ctx, h, req, onAck)
	if errors.Is(err, common.ErrStreamReset) {
		eventsLogger.Warningf("Event stream of %s reset during %s request, deferred to the next resubscription", m.name, req.Type)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return h.gen, nil
}

// send writes req on the stream and waits for its acknowledgement
func (m *eventManager[K, V]) send(ctx context.Context, h *streamHandle, req *common.ListenerRequest, onAck func()) error {
	p := future.NewPromise[struct{}]()
	m.pending.Store(req.Uid, &pendingAck{promise: p, gen: h.gen, onAck: onAck})
	stop := context.AfterFunc(ctx, func() {
		m.resolve(req.Uid, ctx.Err())
	})
	defer stop()

	h.sendMu.Lock()
	err := h.stream.Send(req)
	h.sendMu.Unlock()
	if err != nil {
		m.resolve(req.Uid, fmt.Errorf("%w: %v", common.ErrStreamReset, err))
	}

	_, err = p.Future().Get()
	return err
}

// resolve completes the pending acknowledgement of uid, at most once. A nil
// err is an acknowledgement and runs the onAck hook first.
func (m *eventManager[K, V]) resolve(uid string, err error) bool {
	pa, ok := m.pending.LoadAndDelete(uid)
	if !ok {
		return false
	}
	if err == nil && pa.onAck != nil {
		pa.onAck()
	}
	pa.promise.Set(struct{}{}, err)
	return true
}

// failPending resets all acknowledgements waiting on the stream generation
func (m *eventManager[K, V]) failPending(gen uint64) {
	m.pending.Range(func(uid string, pa *pendingAck) bool {
		if pa.gen == gen {
			m.resolve(uid, common.ErrStreamReset)
		}
		return true
	})
}

// receive reads the stream until it fails
func (m *eventManager[K, V]) receive(h *streamHandle) {
	for {
		resp, err := h.stream.Recv()
		if err != nil {
			m.onStreamError(h, err)
			return
		}
		m.handleResponse(resp)
	}
}

// handleResponse resolves acknowledgements inline and queues events and
// lifecycle notifications for the dispatcher
func (m *eventManager[K, V]) handleResponse(resp *common.ListenerResponse) {
	switch resp.Kind() {
	case common.ResponseSubscribed:
		m.resolve(resp.Subscribed.Uid, nil)
	case common.ResponseUnsubscribed:
		m.resolve(resp.Unsubscribed.Uid, nil)
	case common.ResponseError:
		m.resolve(resp.Error.Uid, &common.RequestError{Op: "listener", Msg: resp.Error.Message})
	case common.ResponseDestroyed:
		if resp.Destroyed.Cache == m.name {
			m.enqueue(dispatchItem[K, V]{lifecycle: common.ResponseDestroyed})
		}
	case common.ResponseTruncated:
		if resp.Truncated.Cache == m.name {
			m.enqueue(dispatchItem[K, V]{lifecycle: common.ResponseTruncated})
		}
	case common.ResponseEvent:
		m.eventsReceived.Inc()
		groups := m.matchGroups(resp.Event)
		if len(groups) == 0 {
			eventsLogger.Debugf("Event for %s matched no listener group", m.name)
			return
		}
		m.enqueue(dispatchItem[K, V]{
			event:  newMapEvent[K, V](m.name, m.serializer, resp.Event),
			groups: groups,
		})
	default:
		eventsLogger.Warningf("Ignoring unknown listener response on %s", m.name)
	}
}

// matchGroups returns every group the event was raised for: the groups of
// all listed filter ids plus the group of the exact key, each at most once
func (m *eventManager[K, V]) matchGroups(ev *common.MapEventResponse) []*listenerGroup[K, V] {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups := make([]*listenerGroup[K, V], 0, len(ev.FilterIDs)+1)
	seen := make(map[*listenerGroup[K, V]]struct{}, len(ev.FilterIDs)+1)
	add := func(g *listenerGroup[K, V]) {
		if g == nil {
			return
		}
		if _, ok := seen[g]; ok {
			return
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}

	for _, id := range ev.FilterIDs {
		add(m.filterIDGroups[id])
	}
	add(m.keyGroups[string(ev.Key)])
	return groups
}

// enqueue hands an item to the dispatcher, the receive goroutine never blocks on it
func (m *eventManager[K, V]) enqueue(item dispatchItem[K, V]) {
	if !m.queue.Push(item) {
		return
	}
	if n := m.queue.Len(); n == m.queueWarnAt {
		eventsLogger.Warningf("%d events of %s waiting for dispatch, listeners are too slow", n, m.name)
	}
}

// dispatch delivers queued items until the queue is closed and drained
func (m *eventManager[K, V]) dispatch() {
	defer close(m.dispatched)
	for item := range m.queue.Recv() {
		m.deliver(item)
	}
}

// deliver runs the callbacks of one item, a panicking listener does not stop the dispatcher
func (m *eventManager[K, V]) deliver(item dispatchItem[K, V]) {
	defer func() {
		if r := recover(); r != nil {
			eventsLogger.Errorf("Listener of %s panicked: %v", m.name, r)
		}
	}()

	if item.event == nil {
		if m.lifecycle != nil {
			m.lifecycle(item.lifecycle)
		}
		return
	}
	for _, g := range item.groups {
		g.notify(item.event)
	}
}

// onStreamError handles the end of a stream generation. Unless the stream
// was discarded on purpose every registration is replayed if the channel is
// still healthy, otherwise the next reconnect replays them.
func (m *eventManager[K, V]) onStreamError(h *streamHandle, err error) {
	m.mu.Lock()
	intentional := h.broken
	h.broken = true
	if m.stream == h {
		m.stream = nil
	}
	closing := m.closing
	m.mu.Unlock()

	h.cancel()
	m.failPending(h.gen)

	if intentional || closing {
		if !isStreamCanceled(err) {
			eventsLogger.Debugf("Event stream %d of %s ended: %v", h.gen, m.name, err)
		}
		return
	}

	m.streamResets.Inc()
	eventsLogger.Warningf("Event stream %d of %s failed: %v", h.gen, m.name, err)
	if m.monitor.State() == StateReady {
		go m.sweep()
	}
}

// discard drops the stream on purpose, its end does not trigger a sweep
func (m *eventManager[K, V]) discard(h *streamHandle) {
	m.mu.Lock()
	h.broken = true
	if m.stream == h {
		m.stream = nil
	}
	m.mu.Unlock()

	h.cancel()
	m.failPending(h.gen)
}

// discardStream drops the live stream, it is recreated on next use
func (m *eventManager[K, V]) discardStream() {
	m.mu.Lock()
	h := m.stream
	m.mu.Unlock()

	if h != nil {
		m.discard(h)
	}
}

// onConnectivity reacts to the connectivity edges of the session's channel
func (m *eventManager[K, V]) onConnectivity(ev ConnectivityEvent) {
	switch ev {
	case Disconnected, Closed:
		m.discardStream()
	case Connected, Reconnected:
		go m.sweep()
	}
}

// sweep replays the subscription of every live group, one goroutine per group
func (m *eventManager[K, V]) sweep() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	groups := make([]*listenerGroup[K, V], 0, len(m.keyGroups)+len(m.filterGroups))
	for _, g := range m.keyGroups {
		groups = append(groups, g)
	}
	for _, g := range m.filterGroups {
		groups = append(groups, g)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.sweepTimeout)
	defer cancel()

	if len(groups) == 0 {
		if m.keepStream.Load() {
			if _, err := m.ensureStream(ctx); err != nil {
				eventsLogger.Debugf("Event stream of %s not recreated: %v", m.name, err)
			}
		}
		return
	}

	m.resubscriptions.Inc()
	eventsLogger.Infof("Resubscribing %d listener groups of %s", len(groups), m.name)

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g *listenerGroup[K, V]) {
			defer wg.Done()
			if err := g.resubscribe(ctx); err != nil {
				eventsLogger.Warningf("Failed to resubscribe %s listener group of %s: %v", g.kind, m.name, err)
			}
		}(g)
	}
	wg.Wait()
}

// close ends the stream and stops the dispatcher after the queued items.
// The cancellation error of the stream is swallowed.
func (m *eventManager[K, V]) close() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.closing = true
	h := m.stream
	m.stream = nil
	if h != nil {
		h.broken = true
	}
	m.mu.Unlock()

	if m.unsubscribeConn != nil {
		m.unsubscribeConn()
	}
	if h != nil {
		h.sendMu.Lock()
		_ = h.stream.CloseSend()
		h.sendMu.Unlock()
		h.cancel()
		m.failPending(h.gen)
	}
	m.queue.Close()
}

// isStreamCanceled reports whether err is the normal result of ending a stream
func isStreamCanceled(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		status.Code(err) == codes.Canceled
}
