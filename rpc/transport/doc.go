// Package transport defines the interfaces for the communication between the
// dMap client and the cache proxy. All implementations speak gRPC; the
// subpackages differ only in how the underlying connection is established.
//
// The package focuses on:
//   - A unary call for the named map CRUD operations
//   - The shared duplex event stream used by all listeners of a map
//   - Server streams for the paged key / entry iteration
//   - Exposing the channel's connectivity state to the client's monitor
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations.
//
//   - IClientConnector: Establishes and tunes the raw connections gRPC runs on,
//     implemented by the tcp and unix subpackages.
//
//   - Channel: The observable connectivity state of the transport.
//
//   - EventStream, PageStream: The typed streams handed to the client.
package transport
