// Package common provides the data structures shared by the dMap client packages.
// It defines the wire messages exchanged with the cache proxy, the client
// configuration and the logging integration.
//
// Key Components:
//
//   - Message: unary request/response structure for named map operations.
//     Which fields are used depends on the MessageType.
//
//   - ListenerRequest / ListenerResponse: the messages of the shared event
//     stream. A ListenerResponse is a one-of, use Kind to find the set variant.
//
//   - PageRequest, BytesValue, EntryResult: messages of the paged key and
//     entry streams. The first element of a page carries the continuation cookie.
//
//   - ClientConfig: endpoints, timeouts, serializer format and transport settings.
//
//   - Logger: custom logging implementation that plugs into dragonboat's
//     logger factory so every package logger shares one format.
package common
