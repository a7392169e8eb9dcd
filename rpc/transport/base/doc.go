// Package base implements the gRPC client transport shared by all connection
// types of the dMap client. The tcp and unix packages only supply the
// connector that dials and tunes the raw connection.
//
// The package focuses on:
//   - One gRPC client connection per transport, balanced round robin over all endpoints
//   - A hand written service descriptor for the proxy's named map service
//   - A msgpack codec for the wire messages and an optional zstd compressor
//
// Key Components:
//
//   - clientTransport: Implements transport.IRPCClientTransport. Endpoints are
//     fed to a manual resolver, so a single endpoint and a cluster of proxies
//     are handled the same way. The gRPC connection doubles as the
//     transport.Channel observed by the client's connectivity monitor.
//
//   - NamedMapServiceDesc / RegisterNamedMapServer: The service descriptor,
//     also used by proxies written in Go and by in-process test servers.
//
//   - msgpackCodec: Registered under the content-subtype "msgpack" at init.
//
//   - zstdCompressor: Registered as "zstd" at init, used for every call when
//     ClientTransportConfig.Compression is set. Encoders and decoders are pooled.
//
// Thread Safety:
//
//	The transport is safe for concurrent use. Connect replaces the underlying
//	connection, streams opened on the previous connection fail with it.
package base
