package client

import (
	"context"
	"errors"
	"sync"
)

// errGroupDestroyed is returned by a group that lost its last listener while
// the caller waited for it. The caller looks the group up again.
var errGroupDestroyed = errors.New("listener group destroyed")

// groupKind tells whether a group is registered for a key or for a filter
type groupKind uint8

const (
	keyGroup groupKind = iota + 1
	filterGroup
)

func (k groupKind) String() string {
	if k == keyGroup {
		return "key"
	}
	return "filter"
}

// listenerEntry is one listener of a group
type listenerEntry struct {
	lite bool
}

// listenerGroup owns all listeners of one key or one filter and the single
// subscription they share. The subscription is lite as long as no listener
// asked for values: registeredLite == (liteFalseCount == 0) whenever a public
// method returns.
type listenerGroup[K comparable, V any] struct {
	manager *eventManager[K, V]
	kind    groupKind
	id      string // registry key, the serialized key or filter
	payload []byte // serialized key or filter sent to the proxy

	// opMu serializes the (un)subscribe round trips of the group
	opMu sync.Mutex

	// mu guards the fields below, it is never held across a round trip
	mu             sync.Mutex
	listeners      map[MapListener[K, V]]*listenerEntry
	order          []MapListener[K, V]
	registered     bool
	registeredLite bool
	liteFalseCount int
	filterID       int64
	streamGen      uint64 // generation of the stream the subscription was written on, 0 = none
	destroyed      bool
}

func newListenerGroup[K comparable, V any](m *eventManager[K, V], kind groupKind, payload []byte) *listenerGroup[K, V] {
	return &listenerGroup[K, V]{
		manager:   m,
		kind:      kind,
		id:        string(payload),
		payload:   payload,
		listeners: make(map[MapListener[K, V]]*listenerEntry),
	}
}

// addListener adds l or changes its verbosity. A round trip is only made
// when the group was not registered yet or the registered verbosity no
// longer matches the listeners.
func (g *listenerGroup[K, V]) addListener(ctx context.Context, l MapListener[K, V], lite bool) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return errGroupDestroyed
	}
	prev, exists := g.listeners[l]
	if exists && prev.lite == lite {
		g.mu.Unlock()
		return nil
	}

	// record the new state, undo restores it on failure
	if exists {
		prev.lite = lite
	} else {
		g.listeners[l] = &listenerEntry{lite: lite}
		g.order = append(g.order, l)
	}
	g.adjustCount(exists, lite)
	undo := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if exists {
			g.listeners[l].lite = !lite
			g.adjustCount(true, !lite)
		} else {
			g.dropListener(l)
			if !lite {
				g.liteFalseCount--
			}
		}
	}

	desired := g.liteFalseCount == 0
	required := !g.registered || desired != g.registeredLite
	wasRegistered := g.registered
	prevLite := g.registeredLite
	g.mu.Unlock()

	if !required {
		return nil
	}

	if wasRegistered {
		if err := g.doUnsubscribe(ctx); err != nil {
			undo()
			g.restore(ctx, wasRegistered, prevLite)
			return err
		}
	}
	if err := g.doSubscribe(ctx, desired); err != nil {
		undo()
		g.restore(ctx, wasRegistered, prevLite)
		return err
	}
	return nil
}

// removeListener removes l. The last listener takes the subscription with it,
// the last full listener downgrades the subscription to lite.
func (g *listenerGroup[K, V]) removeListener(ctx context.Context, l MapListener[K, V]) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	entry, ok := g.listeners[l]
	if g.destroyed || !ok {
		g.mu.Unlock()
		return nil
	}
	g.dropListener(l)
	if !entry.lite {
		g.liteFalseCount--
	}
	empty := len(g.listeners) == 0
	downgrade := !empty && g.liteFalseCount == 0 && g.registered && !g.registeredLite
	if empty {
		g.destroyed = true
	}
	g.mu.Unlock()

	if empty {
		err := g.doUnsubscribe(ctx)
		g.manager.dropGroup(g)
		return err
	}
	if downgrade {
		// a failed downgrade leaves the group unregistered, the next
		// resubscription sweep registers it again
		errUnsub := g.doUnsubscribe(ctx)
		return errors.Join(errUnsub, g.doSubscribe(ctx, true))
	}
	return nil
}

// resubscribe writes the subscription again on the live stream. Groups that
// are already subscribed on it are skipped, groups whose registration failed
// earlier are registered with the verbosity their listeners need.
func (g *listenerGroup[K, V]) resubscribe(ctx context.Context) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	if g.destroyed || len(g.listeners) == 0 {
		g.mu.Unlock()
		return nil
	}
	registered := g.registered
	lite := g.liteFalseCount == 0
	gen := g.streamGen
	g.mu.Unlock()

	if registered && gen != 0 && gen == g.manager.liveGen() {
		return nil
	}
	return g.doSubscribe(ctx, lite)
}

// doSubscribe writes a subscribe request. A filter group is linked to its new
// filter id when the acknowledgement is received, before any event that
// follows it on the stream is routed.
func (g *listenerGroup[K, V]) doSubscribe(ctx context.Context, lite bool) error {
	var filterID int64
	var gen uint64
	var err error

	switch g.kind {
	case keyGroup:
		gen, err = g.manager.writeRequest(ctx, g.manager.factory.keyRequest(g.payload, true, lite), nil)
	case filterGroup:
		filterID = g.manager.newFilterID()
		link := func() { g.manager.linkFilter(filterID, g) }
		gen, err = g.manager.writeRequest(ctx, g.manager.factory.filterRequest(g.payload, filterID, true, lite), link)
	}
	if err != nil {
		return err
	}

	g.mu.Lock()
	oldID := g.filterID
	g.registered = true
	g.registeredLite = lite
	g.streamGen = gen
	g.filterID = filterID
	g.mu.Unlock()

	if g.kind == filterGroup && oldID != 0 && oldID != filterID {
		g.manager.unlinkFilter(oldID, g)
	}
	return nil
}

// doUnsubscribe writes an unsubscribe request if the subscription lives on
// the current stream. The local registration is torn down in any case.
func (g *listenerGroup[K, V]) doUnsubscribe(ctx context.Context) error {
	g.mu.Lock()
	filterID := g.filterID
	lite := g.registeredLite
	gen := g.streamGen
	g.mu.Unlock()

	var err error
	if gen != 0 && gen == g.manager.liveGen() {
		switch g.kind {
		case keyGroup:
			_, err = g.manager.writeRequest(ctx, g.manager.factory.keyRequest(g.payload, false, lite), nil)
		case filterGroup:
			_, err = g.manager.writeRequest(ctx, g.manager.factory.filterRequest(g.payload, filterID, false, lite), nil)
		}
	}

	g.mu.Lock()
	g.registered = false
	g.streamGen = 0
	g.filterID = 0
	g.mu.Unlock()

	if g.kind == filterGroup && filterID != 0 {
		g.manager.unlinkFilter(filterID, g)
	}
	return err
}

// restore tries to bring back the previous subscription after a failed
// re-registration, a group without listeners is destroyed instead. The
// caller's ctx may already be done, the restore gets its own request timeout.
func (g *listenerGroup[K, V]) restore(ctx context.Context, wasRegistered, lite bool) {
	g.mu.Lock()
	empty := len(g.listeners) == 0
	if empty {
		g.destroyed = true
	}
	g.mu.Unlock()

	if empty {
		g.manager.dropGroup(g)
		return
	}
	if wasRegistered {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.manager.requestTimeout)
		defer cancel()
		if err := g.doSubscribe(ctx, lite); err != nil {
			eventsLogger.Errorf("Failed to restore %s subscription of %s: %v", g.kind, g.manager.name, err)
		}
	}
}

// notify delivers ev to every listener in registration order
func (g *listenerGroup[K, V]) notify(ev *MapEvent[K, V]) {
	g.mu.Lock()
	listeners := append([]MapListener[K, V](nil), g.order...)
	g.mu.Unlock()

	for _, l := range listeners {
		dispatchEvent(l, ev)
	}
}

// adjustCount updates liteFalseCount for an added (existed=false) or
// changed (existed=true) listener, g.mu must be held
func (g *listenerGroup[K, V]) adjustCount(existed, lite bool) {
	switch {
	case !existed && !lite:
		g.liteFalseCount++
	case existed && lite:
		g.liteFalseCount--
	case existed && !lite:
		g.liteFalseCount++
	}
}

// dropListener removes l from the listener set and the order, g.mu must be held
func (g *listenerGroup[K, V]) dropListener(l MapListener[K, V]) {
	delete(g.listeners, l)
	for i, o := range g.order {
		if o == l {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
}

// state returns the verbosity bookkeeping, used by tests and debug logging
func (g *listenerGroup[K, V]) state() (size int, registeredLite bool, liteFalseCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners), g.registeredLite, g.liteFalseCount
}
