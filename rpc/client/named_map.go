package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/filter"
	"github.com/ValentinKolb/dMap/rpc/serializer"
	"github.com/ValentinKolb/dMap/rpc/transport"
)

// mapState is the local lifecycle state of a NamedMap
type mapState uint8

const (
	mapActive mapState = iota
	mapReleased
	mapDestroyed
)

// NamedMap is a typed client for one named map of the cluster. Keys, values
// and filters are encoded with the session serializer. All methods are safe
// for concurrent use. After Release or Destroy every method fails with
// common.ErrReleased or common.ErrDestroyed.
type NamedMap[K comparable, V any] struct {
	name       string
	session    *Session
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	factory    *requestFactory
	timeout    time.Duration
	events     *eventManager[K, V]

	mu        sync.Mutex
	state     mapState
	lifecycle []*MapLifecycleListener[K, V]
}

func newNamedMap[K comparable, V any](s *Session, name string) *NamedMap[K, V] {
	m := &NamedMap[K, V]{
		name:       name,
		session:    s,
		transport:  s.transport,
		serializer: s.serializer,
		factory:    newRequestFactory(name, s.config.Scope, s.serializer.Format()),
		timeout:    s.config.RequestTimeout(),
	}
	m.events = newEventManager[K, V](eventManagerConfig{
		name:           name,
		transport:      s.transport,
		monitor:        s.monitor,
		factory:        m.factory,
		serializer:     s.serializer,
		readyTimeout:   s.config.ReadyTimeout(),
		requestTimeout: s.config.RequestTimeout(),
		queueSize:      s.config.EventQueueSize,
		lifecycle:      m.onLifecycle,
	})
	return m
}

// --------------------------------------------------------------------------
// Basic Operations
// --------------------------------------------------------------------------

// Name returns the name of the map
func (m *NamedMap[K, V]) Name() string {
	return m.name
}

// IsActive reports whether the map was neither released nor destroyed
func (m *NamedMap[K, V]) IsActive() bool {
	return m.check() == nil
}

// Get returns the value mapped to key and whether it was present
func (m *NamedMap[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	resp, err := m.invokeWithKey(ctx, key, common.NewGetRequest)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.valueOf(resp)
}

// GetOrDefault returns the value mapped to key or def if the key is absent
func (m *NamedMap[K, V]) GetOrDefault(ctx context.Context, key K, def V) (V, error) {
	v, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// Put maps key to value and returns the previous value, if any
func (m *NamedMap[K, V]) Put(ctx context.Context, key K, value V) (V, bool, error) {
	return m.PutWithExpiry(ctx, key, value, 0)
}

// PutWithExpiry maps key to value for ttl (0 = cache default, millisecond
// resolution) and returns the previous value, if any
func (m *NamedMap[K, V]) PutWithExpiry(ctx context.Context, key K, value V, ttl time.Duration) (V, bool, error) {
	var zero V
	if ttl < 0 {
		return zero, false, fmt.Errorf("negative ttl: %s", ttl)
	}
	k, v, err := m.encodeEntry(key, value)
	if err != nil {
		return zero, false, err
	}
	resp, err := m.invoke(ctx, common.NewPutRequest(k, v, ttl.Milliseconds()))
	if err != nil {
		return zero, false, err
	}
	return m.valueOf(resp)
}

// PutIfAbsent maps key to value unless the key is already mapped. It returns
// the existing value if there was one.
func (m *NamedMap[K, V]) PutIfAbsent(ctx context.Context, key K, value V) (V, bool, error) {
	var zero V
	k, v, err := m.encodeEntry(key, value)
	if err != nil {
		return zero, false, err
	}
	resp, err := m.invoke(ctx, common.NewPutIfAbsentRequest(k, v))
	if err != nil {
		return zero, false, err
	}
	return m.valueOf(resp)
}

// Remove deletes the mapping of key and returns the removed value, if any
func (m *NamedMap[K, V]) Remove(ctx context.Context, key K) (V, bool, error) {
	resp, err := m.invokeWithKey(ctx, key, common.NewRemoveRequest)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.valueOf(resp)
}

// ContainsKey reports whether key is mapped
func (m *NamedMap[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	resp, err := m.invokeWithKey(ctx, key, common.NewContainsKeyRequest)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// ContainsValue reports whether any key maps to value
func (m *NamedMap[K, V]) ContainsValue(ctx context.Context, value V) (bool, error) {
	v, err := m.encode("value", value)
	if err != nil {
		return false, err
	}
	resp, err := m.invoke(ctx, common.NewContainsValueRequest(v))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Size returns the number of mappings
func (m *NamedMap[K, V]) Size(ctx context.Context) (int, error) {
	resp, err := m.invoke(ctx, common.NewSizeRequest())
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

// IsEmpty reports whether the map has no mappings
func (m *NamedMap[K, V]) IsEmpty(ctx context.Context) (bool, error) {
	resp, err := m.invoke(ctx, common.NewIsEmptyRequest())
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Clear removes all mappings, listeners receive a delete event per entry
func (m *NamedMap[K, V]) Clear(ctx context.Context) error {
	_, err := m.invoke(ctx, common.NewClearRequest())
	return err
}

// Truncate removes all mappings without raising entry events
func (m *NamedMap[K, V]) Truncate(ctx context.Context) error {
	_, err := m.invoke(ctx, common.NewTruncateRequest())
	return err
}

// Destroy removes the map from the cluster and releases all local resources
func (m *NamedMap[K, V]) Destroy(ctx context.Context) error {
	if _, err := m.invoke(ctx, common.NewDestroyRequest()); err != nil {
		return err
	}
	m.markInactive(mapDestroyed)
	return nil
}

// Release frees the local resources of the map, the map itself stays on the cluster
func (m *NamedMap[K, V]) Release() {
	m.markInactive(mapReleased)
}

// --------------------------------------------------------------------------
// Listeners
// --------------------------------------------------------------------------

// AddListener registers l for the events of all entries. A lite listener
// receives events without values.
func (m *NamedMap[K, V]) AddListener(ctx context.Context, l MapListener[K, V], lite bool) error {
	return m.AddFilterListener(ctx, l, filter.Always(), lite)
}

// RemoveListener removes a listener added with AddListener
func (m *NamedMap[K, V]) RemoveListener(ctx context.Context, l MapListener[K, V]) error {
	return m.RemoveFilterListener(ctx, l, filter.Always())
}

// AddKeyListener registers l for the events of a single key. Adding the same
// listener again only changes its verbosity.
func (m *NamedMap[K, V]) AddKeyListener(ctx context.Context, l MapListener[K, V], key K, lite bool) error {
	if err := m.check(); err != nil {
		return err
	}
	k, err := m.encode("key", key)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	return m.events.registerKeyListener(ctx, l, k, lite)
}

// RemoveKeyListener removes l from the listeners of key, removing an absent listener is a no-op
func (m *NamedMap[K, V]) RemoveKeyListener(ctx context.Context, l MapListener[K, V], key K) error {
	if err := m.check(); err != nil {
		return err
	}
	k, err := m.encode("key", key)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	return m.events.removeKeyListener(ctx, l, k)
}

// AddFilterListener registers l for the events matching f. Equal filters
// share one registration on the proxy.
func (m *NamedMap[K, V]) AddFilterListener(ctx context.Context, l MapListener[K, V], f *filter.Filter, lite bool) error {
	if err := m.check(); err != nil {
		return err
	}
	b, err := m.encode("filter", f)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	return m.events.registerFilterListener(ctx, l, b, lite)
}

// RemoveFilterListener removes l from the listeners of f, removing an absent listener is a no-op
func (m *NamedMap[K, V]) RemoveFilterListener(ctx context.Context, l MapListener[K, V], f *filter.Filter) error {
	if err := m.check(); err != nil {
		return err
	}
	b, err := m.encode("filter", f)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	return m.events.removeFilterListener(ctx, l, b)
}

// AddLifecycleListener registers l for the lifecycle changes of the map.
// Destroyed and Truncated are reported by the proxy, so the event stream is
// kept open while lifecycle listeners exist.
func (m *NamedMap[K, V]) AddLifecycleListener(ctx context.Context, l *MapLifecycleListener[K, V]) error {
	m.mu.Lock()
	if err := m.stateErr(); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, o := range m.lifecycle {
		if o == l {
			m.mu.Unlock()
			return nil
		}
	}
	m.lifecycle = append(m.lifecycle, l)
	m.mu.Unlock()

	m.events.keepStream.Store(true)
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	if _, err := m.events.ensureStream(ctx); err != nil {
		return err
	}
	return nil
}

// RemoveLifecycleListener removes l, removing an absent listener is a no-op
func (m *NamedMap[K, V]) RemoveLifecycleListener(l *MapLifecycleListener[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.lifecycle {
		if o == l {
			m.lifecycle = append(m.lifecycle[:i:i], m.lifecycle[i+1:]...)
			break
		}
	}
	m.events.keepStream.Store(len(m.lifecycle) > 0)
}

// onLifecycle is called by the dispatcher for lifecycle notifications of the proxy
func (m *NamedMap[K, V]) onLifecycle(kind common.ListenerResponseKind) {
	switch kind {
	case common.ResponseDestroyed:
		Logger.Infof("Named map %s was destroyed", m.name)
		m.markInactive(mapDestroyed)
	case common.ResponseTruncated:
		for _, l := range m.lifecycleListeners() {
			if l.truncated != nil {
				l.truncated(m)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Keys returns a cursor over the keys of the map
func (m *NamedMap[K, V]) Keys() (*Cursor[K], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	s := keysStrategy(m.transport, m.factory, func(b []byte) (K, error) {
		return decode[K](m.serializer, "key", b)
	})
	return newCursor(guardPage(m, s.fetchPage)), nil
}

// Entries returns a cursor over the entries of the map
func (m *NamedMap[K, V]) Entries() (*Cursor[Entry[K, V]], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	s := entriesStrategy(m.transport, m.factory, "entries", func(key, value []byte) (Entry[K, V], error) {
		k, err := decode[K](m.serializer, "key", key)
		if err != nil {
			return Entry[K, V]{}, err
		}
		v, err := decode[V](m.serializer, "value", value)
		if err != nil {
			return Entry[K, V]{}, err
		}
		return Entry[K, V]{Key: k, Value: v}, nil
	})
	return newCursor(guardPage(m, s.fetchPage)), nil
}

// Values returns a cursor over the values of the map
func (m *NamedMap[K, V]) Values() (*Cursor[V], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	s := entriesStrategy(m.transport, m.factory, "values", func(_, value []byte) (V, error) {
		return decode[V](m.serializer, "value", value)
	})
	return newCursor(guardPage(m, s.fetchPage)), nil
}

// guardPage fails page requests of cursors that outlive the map and applies
// the default request timeout to each page
func guardPage[K comparable, V, T any](m *NamedMap[K, V], fetch func(ctx context.Context, cookie []byte) ([]func() (T, error), []byte, error)) pageFetcher[T] {
	return func(ctx context.Context, cookie []byte) ([]func() (T, error), []byte, error) {
		if err := m.check(); err != nil {
			return nil, nil, err
		}
		ctx, cancel := withTimeout(ctx, m.timeout)
		defer cancel()
		return fetch(ctx, cookie)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// check returns the error of an inactive map
func (m *NamedMap[K, V]) check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateErr()
}

// stateErr returns the error of the current state, m.mu must be held
func (m *NamedMap[K, V]) stateErr() error {
	switch m.state {
	case mapReleased:
		return common.ErrReleased
	case mapDestroyed:
		return common.ErrDestroyed
	}
	return nil
}

// markInactive moves the map to a final state once. The event stream is
// closed and the lifecycle listeners are told.
func (m *NamedMap[K, V]) markInactive(state mapState) {
	m.mu.Lock()
	if m.state != mapActive {
		m.mu.Unlock()
		return
	}
	m.state = state
	listeners := append([]*MapLifecycleListener[K, V](nil), m.lifecycle...)
	m.mu.Unlock()

	m.events.close()
	m.session.forget(m.name, m)

	for _, l := range listeners {
		switch {
		case state == mapDestroyed && l.destroyed != nil:
			l.destroyed(m)
		case state == mapReleased && l.released != nil:
			l.released(m)
		}
	}
}

func (m *NamedMap[K, V]) lifecycleListeners() []*MapLifecycleListener[K, V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MapLifecycleListener[K, V](nil), m.lifecycle...)
}

// invoke sends a unary request for this map
func (m *NamedMap[K, V]) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return invokeRPCRequest(ctx, m.factory.message(req), m.transport, m.timeout)
}

// invokeWithKey encodes key and sends the request built by newReq
func (m *NamedMap[K, V]) invokeWithKey(ctx context.Context, key K, newReq func(key []byte) *common.Message) (*common.Message, error) {
	k, err := m.encode("key", key)
	if err != nil {
		return nil, err
	}
	return m.invoke(ctx, newReq(k))
}

func (m *NamedMap[K, V]) encode(field string, v any) ([]byte, error) {
	b, err := m.serializer.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("cannot serialize %s: %w", field, err)
	}
	return b, nil
}

func (m *NamedMap[K, V]) encodeEntry(key K, value V) ([]byte, []byte, error) {
	k, err := m.encode("key", key)
	if err != nil {
		return nil, nil, err
	}
	v, err := m.encode("value", value)
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

// valueOf decodes the optional value of a response
func (m *NamedMap[K, V]) valueOf(resp *common.Message) (V, bool, error) {
	var zero V
	if !resp.Ok {
		return zero, false, nil
	}
	v, err := decode[V](m.serializer, "value", resp.Value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// decode deserializes b into a new T
func decode[T any](s serializer.IRPCSerializer, field string, b []byte) (T, error) {
	var v T
	if err := s.Deserialize(b, &v); err != nil {
		return v, &common.DeserializationError{Field: field, Err: err}
	}
	return v, nil
}
