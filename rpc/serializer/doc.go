// Package serializer provides the value serialization used by the dMap client.
// Keys, values and filter descriptors are encoded by the session serializer
// into opaque byte slices before they are sent to the proxy, and decoded again
// when they come back in responses and events.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//     Format returns the name sent along with every request so the proxy can decode
//     the payload with the same format.
//
//   - jsonSerializerImpl: JSON encoding. Human readable and the default, useful for
//     interoperability with proxies written in other languages.
//
//   - msgpackSerializerImpl: msgpack encoding with sorted map keys. Compact and fast,
//     and deterministic so equal values produce equal bytes.
//
//   - gobSerializerImpl: Go's built-in gob encoding. Only useful when the proxy is
//     written in Go; concrete types behind interfaces must be registered.
//
// Determinism:
//
//	The event manager groups listeners by the serialized bytes of their key or
//	filter. JSON sorts map keys and msgpack is configured to do so, so the same
//	value always maps to the same group.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s, err := serializer.New("msgpack")
//	data, err := s.Serialize(key)
//	// ... send data ...
//	var k string
//	err = s.Deserialize(data, &k)
package serializer
