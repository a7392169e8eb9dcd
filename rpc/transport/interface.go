package transport

import (
	"context"
	"net"

	"github.com/ValentinKolb/dMap/rpc/common"
	"google.golang.org/grpc/connectivity"
)

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the given endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// Channel is the observable connection state of a client transport.
// *grpc.ClientConn implements it.
type Channel interface {
	// GetState returns the current connectivity state
	GetState() connectivity.State
	// WaitForStateChange blocks until the state differs from source or ctx is done.
	// It returns false if ctx expired first.
	WaitForStateChange(ctx context.Context, source connectivity.State) bool
	// Connect makes an idle channel start connecting
	Connect()
}

// --------------------------------------------------------------------------
// Streams
// --------------------------------------------------------------------------

// EventStream is the shared duplex stream carrying listener requests to the
// proxy and acknowledgements, lifecycle notifications and events back.
type EventStream interface {
	Send(req *common.ListenerRequest) error
	Recv() (*common.ListenerResponse, error)
	CloseSend() error
}

// PageStream is a server stream returning one page of a paged iteration.
// Recv returns io.EOF once the page is complete.
type PageStream[R any] interface {
	Recv() (*R, error)
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Invoke sends a unary named map request and returns the response
	Invoke(ctx context.Context, req *common.Message) (*common.Message, error)
	// OpenEvents opens a new event stream, it lives until ctx is canceled
	OpenEvents(ctx context.Context) (EventStream, error)
	// OpenKeysPage requests the key page following req.Cookie
	OpenKeysPage(ctx context.Context, req *common.PageRequest) (PageStream[common.BytesValue], error)
	// OpenEntriesPage requests the entry page following req.Cookie
	OpenEntriesPage(ctx context.Context, req *common.PageRequest) (PageStream[common.EntryResult], error)
	// Channel returns the connection state of the transport, nil before Connect
	Channel() Channel
	// Close closes the transport connection
	Close() error
}
