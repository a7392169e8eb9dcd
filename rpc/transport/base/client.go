package base

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/resolver/manual"
)

var Logger = logger.GetLogger("transport")

// resolverScheme is the scheme of the per-transport manual resolver holding the endpoints
const resolverScheme = "dmap"

// roundRobinServiceConfig spreads calls over all endpoints
const roundRobinServiceConfig = `{"loadBalancingConfig":[{"round_robin":{}}]}`

// clientTransport implements the core client transport functionality on top of
// a gRPC client connection, independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector transport.IClientConnector
	dialOpts  []grpc.DialOption
	config    common.ClientConfig
	conn      *grpc.ClientConn
	connMu    sync.RWMutex // Protects conn and config
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector.
// Extra dial options are applied after the defaults.
func NewBaseClientTransport(connector transport.IClientConnector, opts ...grpc.DialOption) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		dialOpts:  opts,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close an existing connection
	if err := t.Close(); err != nil {
		Logger.Warningf("Failed to close previous connection: %v", err)
	}

	// All endpoints are handed to a manual resolver, the round robin balancer
	// keeps one sub connection per endpoint
	addresses := make([]resolver.Address, 0, len(config.Endpoints))
	for _, endpoint := range config.Endpoints {
		addresses = append(addresses, resolver.Address{Addr: endpoint})
	}
	r := manual.NewBuilderWithScheme(resolverScheme)
	r.InitialState(resolver.State{Addresses: addresses})

	conn, err := grpc.NewClient(resolverScheme+":///proxy", t.dialOptions(config, r)...)
	if err != nil {
		return fmt.Errorf("failed to create client for %v: %v", config.Endpoints, err)
	}

	t.connMu.Lock()
	t.config = config
	t.conn = conn
	t.connMu.Unlock()

	Logger.Infof("Created client for %d endpoints using %s transport", len(config.Endpoints), t.connector.GetName())
	return nil
}

func (t *clientTransport) Invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	conn, err := t.getConn()
	if err != nil {
		return nil, err
	}

	resp := new(common.Message)
	if err := conn.Invoke(ctx, InvokeMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *clientTransport) OpenEvents(ctx context.Context) (transport.EventStream, error) {
	conn, err := t.getConn()
	if err != nil {
		return nil, err
	}

	stream, err := conn.NewStream(ctx, &NamedMapServiceDesc.Streams[0], EventsMethod)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[common.ListenerRequest, common.ListenerResponse]{ClientStream: stream}, nil
}

func (t *clientTransport) OpenKeysPage(ctx context.Context, req *common.PageRequest) (transport.PageStream[common.BytesValue], error) {
	return openPage[common.BytesValue](ctx, t, &NamedMapServiceDesc.Streams[1], NextKeySetPageMethod, req)
}

func (t *clientTransport) OpenEntriesPage(ctx context.Context, req *common.PageRequest) (transport.PageStream[common.EntryResult], error) {
	return openPage[common.EntryResult](ctx, t, &NamedMapServiceDesc.Streams[2], NextEntrySetPageMethod, req)
}

func (t *clientTransport) Channel() transport.Channel {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn
}

func (t *clientTransport) Close() error {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getConn returns the current client connection
func (t *clientTransport) getConn() (*grpc.ClientConn, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil, fmt.Errorf("transport is not connected")
	}
	return t.conn, nil
}

// openPage starts a server stream for one page of a paged iteration
func openPage[R any](ctx context.Context, t *clientTransport, desc *grpc.StreamDesc, method string, req *common.PageRequest) (transport.PageStream[R], error) {
	conn, err := t.getConn()
	if err != nil {
		return nil, err
	}

	stream, err := conn.NewStream(ctx, desc, method)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[common.PageRequest, R]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// dial establishes a raw connection with the connector and applies its socket settings
func (t *clientTransport) dial(ctx context.Context, endpoint string) (net.Conn, error) {
	conn, err := t.connector.Connect(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", endpoint, err)
	}

	t.connMu.RLock()
	config := t.config
	t.connMu.RUnlock()

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", endpoint, err)
	}
	Logger.Debugf("Connected to %s", endpoint)
	return conn, nil
}

// dialOptions builds the gRPC dial options from the client configuration
func (t *clientTransport) dialOptions(config common.ClientConfig, r *manual.Resolver) []grpc.DialOption {
	maxMsgSize := config.Transport.MaxMessageSizeMB * 1024 * 1024
	if maxMsgSize <= 0 {
		maxMsgSize = common.DefaultMaxMessageSizeMB * 1024 * 1024
	}

	callOpts := []grpc.CallOption{
		grpc.CallContentSubtype(CodecName),
		grpc.MaxCallRecvMsgSize(maxMsgSize),
		grpc.MaxCallSendMsgSize(maxMsgSize),
	}
	if config.Transport.Compression {
		callOpts = append(callOpts, grpc.UseCompressor(CompressorName))
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithResolvers(r),
		grpc.WithDefaultServiceConfig(roundRobinServiceConfig),
		grpc.WithContextDialer(t.dial),
		grpc.WithDefaultCallOptions(callOpts...),
	}

	if config.Transport.KeepaliveTimeSec > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(config.Transport.KeepaliveTimeSec) * time.Second,
			Timeout:             time.Duration(config.Transport.KeepaliveTimeoutSec) * time.Second,
			PermitWithoutStream: false,
		}))
	}

	return append(opts, t.dialOpts...)
}
