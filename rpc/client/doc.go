// Package client implements the typed client of the distributed cache. A Session
// connects to one or more proxy endpoints, hands out NamedMaps and watches the
// connectivity of the channel.
//
// The package focuses on:
//   - CRUD access to named maps over unary calls
//   - Live change events for keys and filters, multiplexed on one event stream per map
//   - Paged iteration of keys, entries and values with cursors
//
// Key Components:
//
//   - Session: Created with NewSession. Owns the transport, the Monitor and the
//     map cache used by GetNamedMap.
//
//   - NamedMap: Typed facade of one map. Listener registrations for the same key
//     or filter share one subscription on the proxy. The subscription only
//     carries values while at least one of its listeners asked for them.
//
//   - Monitor: Emits Connected, Disconnected, Reconnected and Closed edges of the
//     channel. After a reconnect or a failed event stream every registration is
//     written again, so listeners survive connection loss without action of the
//     application.
//
//   - Cursor: Pull iterator over a paged result, see NamedMap.Keys.
//
// Usage Example:
//
//	session, _ := client.NewSession(ctx, common.ClientConfig{
//	  Endpoints: []string{"localhost:1408"},
//	  Format:    "msgpack",
//	})
//	defer session.Close()
//
//	people, _ := client.GetNamedMap[string, Person](session, "people")
//	people.Put(ctx, "alice", Person{Name: "Alice", Age: 30})
//
//	listener := client.NewMapListener[string, Person]().
//	  WhenAny(func(ev *client.MapEvent[string, Person]) {
//	    key, _ := ev.Key()
//	    fmt.Println(ev.Type(), key)
//	  })
//	people.AddFilterListener(ctx, listener, filter.Greater(filter.Extract("age"), 18), false)
//
//	keys, _ := people.Keys()
//	for key, err := range keys.All(ctx) {
//	  ...
//	}
//
// Thread Safety:
//
//	Sessions and named maps are safe for concurrent use. Listener callbacks of
//	a map run one at a time on its dispatch goroutine and may call back into
//	the map. Cursors are not safe for concurrent use.
package client
