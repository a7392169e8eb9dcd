// Package rpc provides the client side of the distributed cache protocol. It is
// the communication layer between applications and the gRPC proxy in front of
// the cache cluster.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the wire messages, configuration structures, and logging.
//
//   - transport: gRPC channel abstractions with pluggable dialers
//     (TCP, Unix sockets) sharing one codec and compressor.
//
//   - serializer: Serialization of keys, values and filters with multiple
//     format options (JSON, MessagePack, GOB).
//
//   - filter: Serializable filter and extractor descriptors evaluated by the cluster.
//
//   - client: The typed client. Sessions, named maps, listeners and cursors.
package rpc
