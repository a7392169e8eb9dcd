// Package tcp provides the TCP connector of the dMap client transport. gRPC
// runs on connections dialed by this package, which applies the socket
// options of common.TCPConf and common.SocketConf before handing them over.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of transport.IClientConnector
//
//   - NewTCPClientTransport: base.NewBaseClientTransport with the TCP connector.
//     Endpoints are host:port, optionally prefixed with tcp://.
package tcp
