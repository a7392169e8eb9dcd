// Package unix provides the Unix domain socket connector of the dMap client
// transport, for proxies running on the same machine.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets.
//     Endpoints are written as unix:/path/to/socket or unix:///path/to/socket.
//
//   - NewUnixClientTransport: base.NewBaseClientTransport with the unix connector.
package unix
