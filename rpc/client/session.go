package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/serializer"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"github.com/ValentinKolb/dMap/rpc/transport/tcp"
	"github.com/ValentinKolb/dMap/rpc/transport/unix"
	"github.com/puzpuzpuz/xsync/v3"
)

// namedMapHandle is the untyped view of a NamedMap held by its session
type namedMapHandle interface {
	Name() string
	Release()
}

// Session is a connection to the proxy. It owns the transport, the
// connectivity monitor and one NamedMap per name.
type Session struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	monitor    *Monitor
	maps       *xsync.MapOf[string, namedMapHandle]

	mu     sync.Mutex
	closed bool
}

// sessionOptions holds the optional collaborators of a session
type sessionOptions struct {
	transport    transport.IRPCClientTransport
	serializer   serializer.IRPCSerializer
	waitForReady bool
}

// SessionOption configures NewSession
type SessionOption func(o *sessionOptions)

// WithTransport replaces the transport chosen from the endpoints
func WithTransport(t transport.IRPCClientTransport) SessionOption {
	return func(o *sessionOptions) { o.transport = t }
}

// WithSerializer replaces the serializer built from ClientConfig.Format
func WithSerializer(s serializer.IRPCSerializer) SessionOption {
	return func(o *sessionOptions) { o.serializer = s }
}

// WithWaitForReady makes NewSession block until the channel is ready
func WithWaitForReady() SessionOption {
	return func(o *sessionOptions) { o.waitForReady = true }
}

// NewSession creates a session for the proxy endpoints of config. The channel
// connects in the background unless WithWaitForReady is given, in which case
// ctx and ClientConfig.ReadyTimeoutMillis bound the wait.
func NewSession(ctx context.Context, config common.ClientConfig, opts ...SessionOption) (*Session, error) {
	config = config.Defaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.serializer == nil {
		s, err := serializer.New(config.Format)
		if err != nil {
			return nil, err
		}
		o.serializer = s
	}
	if o.transport == nil {
		o.transport = defaultTransport(config.Endpoints)
	}

	if err := o.transport.Connect(config); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := &Session{
		config:     config,
		transport:  o.transport,
		serializer: o.serializer,
		monitor:    NewMonitor(o.transport.Channel()),
		maps:       xsync.NewMapOf[string, namedMapHandle](),
	}
	s.monitor.Start()

	if o.waitForReady {
		if err := s.monitor.WaitForReady(ctx, config.ReadyTimeout()); err != nil {
			s.Close()
			return nil, err
		}
	}

	Logger.Infof("Session created for %v (format %s)", config.Endpoints, config.Format)
	return s, nil
}

// defaultTransport picks the unix transport for socket endpoints and tcp otherwise
func defaultTransport(endpoints []string) transport.IRPCClientTransport {
	if unix.IsUnixEndpoint(endpoints[0]) {
		return unix.NewUnixClientTransport()
	}
	return tcp.NewTCPClientTransport()
}

// GetNamedMap returns the map with the given name. The same map is returned
// until it is released or destroyed. Asking for a name with other key or value
// types than the cached map fails.
func GetNamedMap[K comparable, V any](s *Session, name string) (*NamedMap[K, V], error) {
	if name == "" {
		return nil, fmt.Errorf("map name must not be empty")
	}
	if s.isClosed() {
		return nil, common.ErrClosed
	}

	h, _ := s.maps.LoadOrCompute(name, func() namedMapHandle {
		return newNamedMap[K, V](s, name)
	})
	m, ok := h.(*NamedMap[K, V])
	if !ok {
		return nil, fmt.Errorf("named map %s is already in use with other types (%T)", name, h)
	}
	return m, nil
}

// AddConnectivityListener adds fn to the observers of the session's channel.
// The returned func removes it.
func (s *Session) AddConnectivityListener(fn ConnectivityHandler) (remove func()) {
	return s.monitor.Subscribe(fn)
}

// State returns the connectivity state of the session's channel
func (s *Session) State() ConnectivityState {
	return s.monitor.State()
}

// Config returns the effective configuration of the session
func (s *Session) Config() common.ClientConfig {
	return s.config
}

// Close releases every map, emits Closed and closes the connection
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var maps []namedMapHandle
	s.maps.Range(func(_ string, h namedMapHandle) bool {
		maps = append(maps, h)
		return true
	})
	for _, h := range maps {
		h.Release()
	}

	s.monitor.Close()
	Logger.Infof("Session for %v closed", s.config.Endpoints)
	return s.transport.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// forget drops a released or destroyed map from the cache
func (s *Session) forget(name string, h namedMapHandle) {
	s.maps.Compute(name, func(old namedMapHandle, loaded bool) (namedMapHandle, bool) {
		// a newer map of the same name stays
		return old, !loaded || old == h
	})
}
