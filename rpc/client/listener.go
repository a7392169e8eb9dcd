package client

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/serializer"
)

// --------------------------------------------------------------------------
// Map Events
// --------------------------------------------------------------------------

// EventType is the kind of change a MapEvent describes
type EventType uint8

const (
	EventInserted EventType = EventType(common.EventInserted)
	EventUpdated  EventType = EventType(common.EventUpdated)
	EventDeleted  EventType = EventType(common.EventDeleted)
)

// String returns a string representation of the event type
func (t EventType) String() string {
	return common.EventID(t).String()
}

// lazyValue decodes serialized bytes at first access and caches the result
type lazyValue[T any] struct {
	once  sync.Once
	field string
	raw   []byte
	val   *T
	err   error
}

func (l *lazyValue[T]) get(s serializer.IRPCSerializer) (*T, error) {
	l.once.Do(func() {
		if len(l.raw) == 0 {
			return
		}
		v := new(T)
		if err := s.Deserialize(l.raw, v); err != nil {
			l.err = &common.DeserializationError{Field: l.field, Err: err}
			return
		}
		l.val = v
	})
	return l.val, l.err
}

// MapEvent is a change of one entry of a named map. Key and values are
// decoded on first access, a decoding failure is returned by the accessor
// as *common.DeserializationError. Events are shared by all listeners and
// must not be modified.
type MapEvent[K comparable, V any] struct {
	typ        EventType
	source     string
	serializer serializer.IRPCSerializer
	key        lazyValue[K]
	oldValue   lazyValue[V]
	newValue   lazyValue[V]
}

func newMapEvent[K comparable, V any](source string, s serializer.IRPCSerializer, ev *common.MapEventResponse) *MapEvent[K, V] {
	return &MapEvent[K, V]{
		typ:        EventType(ev.ID),
		source:     source,
		serializer: s,
		key:        lazyValue[K]{field: "key", raw: ev.Key},
		oldValue:   lazyValue[V]{field: "old value", raw: ev.OldValue},
		newValue:   lazyValue[V]{field: "new value", raw: ev.NewValue},
	}
}

// Type returns the kind of change
func (e *MapEvent[K, V]) Type() EventType {
	return e.typ
}

// Source returns the name of the map the event was raised on
func (e *MapEvent[K, V]) Source() string {
	return e.source
}

// Key returns the key of the changed entry
func (e *MapEvent[K, V]) Key() (K, error) {
	k, err := e.key.get(e.serializer)
	if err != nil || k == nil {
		var zero K
		return zero, err
	}
	return *k, nil
}

// OldValue returns the value before the change. It is nil for inserts and
// for lite registrations.
func (e *MapEvent[K, V]) OldValue() (*V, error) {
	return e.oldValue.get(e.serializer)
}

// NewValue returns the value after the change. It is nil for deletes and
// for lite registrations.
func (e *MapEvent[K, V]) NewValue() (*V, error) {
	return e.newValue.get(e.serializer)
}

// --------------------------------------------------------------------------
// Listeners
// --------------------------------------------------------------------------

// MapListener receives the events of the registrations it was added with.
// Listeners are identified by value, so implementations must be comparable
// (usually a pointer), others are rejected with common.ErrInvalidListener.
// Callbacks run on the map's dispatch goroutine, one at a time, in stream order.
type MapListener[K comparable, V any] interface {
	OnInserted(ev *MapEvent[K, V])
	OnUpdated(ev *MapEvent[K, V])
	OnDeleted(ev *MapEvent[K, V])
}

// checkListener rejects listeners that can not serve as a map key
func checkListener[K comparable, V any](l MapListener[K, V]) error {
	if l == nil {
		return fmt.Errorf("%w: nil", common.ErrInvalidListener)
	}
	if t := reflect.TypeOf(l); !t.Comparable() {
		return fmt.Errorf("%w: %s is not comparable, use a pointer", common.ErrInvalidListener, t)
	}
	return nil
}

// FuncMapListener is a MapListener built from optional callbacks
type FuncMapListener[K comparable, V any] struct {
	inserted func(ev *MapEvent[K, V])
	updated  func(ev *MapEvent[K, V])
	deleted  func(ev *MapEvent[K, V])
}

// NewMapListener creates a listener without callbacks
func NewMapListener[K comparable, V any]() *FuncMapListener[K, V] {
	return &FuncMapListener[K, V]{}
}

// WhenInserted sets the callback for insert events
func (l *FuncMapListener[K, V]) WhenInserted(fn func(ev *MapEvent[K, V])) *FuncMapListener[K, V] {
	l.inserted = fn
	return l
}

// WhenUpdated sets the callback for update events
func (l *FuncMapListener[K, V]) WhenUpdated(fn func(ev *MapEvent[K, V])) *FuncMapListener[K, V] {
	l.updated = fn
	return l
}

// WhenDeleted sets the callback for delete events
func (l *FuncMapListener[K, V]) WhenDeleted(fn func(ev *MapEvent[K, V])) *FuncMapListener[K, V] {
	l.deleted = fn
	return l
}

// WhenAny sets the callback for all event types
func (l *FuncMapListener[K, V]) WhenAny(fn func(ev *MapEvent[K, V])) *FuncMapListener[K, V] {
	l.inserted, l.updated, l.deleted = fn, fn, fn
	return l
}

func (l *FuncMapListener[K, V]) OnInserted(ev *MapEvent[K, V]) {
	if l.inserted != nil {
		l.inserted(ev)
	}
}

func (l *FuncMapListener[K, V]) OnUpdated(ev *MapEvent[K, V]) {
	if l.updated != nil {
		l.updated(ev)
	}
}

func (l *FuncMapListener[K, V]) OnDeleted(ev *MapEvent[K, V]) {
	if l.deleted != nil {
		l.deleted(ev)
	}
}

// dispatchEvent calls the callback of l matching the event type
func dispatchEvent[K comparable, V any](l MapListener[K, V], ev *MapEvent[K, V]) {
	switch ev.Type() {
	case EventInserted:
		l.OnInserted(ev)
	case EventUpdated:
		l.OnUpdated(ev)
	case EventDeleted:
		l.OnDeleted(ev)
	default:
		eventsLogger.Warningf("Dropping event of unknown type %d on %s", ev.Type(), ev.Source())
	}
}

// --------------------------------------------------------------------------
// Lifecycle Listeners
// --------------------------------------------------------------------------

// MapLifecycleListener receives the lifecycle changes of a named map
type MapLifecycleListener[K comparable, V any] struct {
	destroyed func(m *NamedMap[K, V])
	truncated func(m *NamedMap[K, V])
	released  func(m *NamedMap[K, V])
}

// NewMapLifecycleListener creates a lifecycle listener without callbacks
func NewMapLifecycleListener[K comparable, V any]() *MapLifecycleListener[K, V] {
	return &MapLifecycleListener[K, V]{}
}

// WhenDestroyed sets the callback for the destruction of the map on the cluster
func (l *MapLifecycleListener[K, V]) WhenDestroyed(fn func(m *NamedMap[K, V])) *MapLifecycleListener[K, V] {
	l.destroyed = fn
	return l
}

// WhenTruncated sets the callback for truncation of the map
func (l *MapLifecycleListener[K, V]) WhenTruncated(fn func(m *NamedMap[K, V])) *MapLifecycleListener[K, V] {
	l.truncated = fn
	return l
}

// WhenReleased sets the callback for the local release of the map
func (l *MapLifecycleListener[K, V]) WhenReleased(fn func(m *NamedMap[K, V])) *MapLifecycleListener[K, V] {
	l.released = fn
	return l
}

// Entry is a key value pair of a named map
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}
