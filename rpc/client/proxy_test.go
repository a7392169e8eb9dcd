package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/transport/base"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// --------------------------------------------------------------------------
// In-process proxy
// --------------------------------------------------------------------------

// fakeProxy is an in-memory implementation of the named map service. Every
// filter matches every entry of its cache.
type fakeProxy struct {
	mu       sync.Mutex
	data     map[string]map[string][]byte
	lastTTL  int64
	streams  map[*proxyStream]struct{}
	pageSize int
}

// proxyStream holds the registrations of one client event stream
type proxyStream struct {
	sendMu sync.Mutex
	stream grpc.BidiStreamingServer[common.ListenerRequest, common.ListenerResponse]

	cache   string
	keys    map[string]bool // key -> lite
	filters map[int64]bool  // filter id -> lite
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		data:     make(map[string]map[string][]byte),
		streams:  make(map[*proxyStream]struct{}),
		pageSize: 2,
	}
}

func (p *fakeProxy) Invoke(_ context.Context, req *common.Message) (*common.Message, error) {
	p.mu.Lock()
	entries, ok := p.data[req.Cache]
	if !ok {
		entries = make(map[string][]byte)
		p.data[req.Cache] = entries
	}
	key := string(req.Key)
	old, present := entries[key]

	if req.Cache == "readonly" && req.MsgType == common.MsgTPut {
		p.mu.Unlock()
		return common.NewErrorResponse(errors.New("cache is read only")), nil
	}

	resp := &common.Message{MsgType: req.MsgType}
	var notify func()
	switch req.MsgType {
	case common.MsgTGet:
		resp.Value, resp.Ok = old, present
	case common.MsgTPut:
		entries[key] = req.Value
		p.lastTTL = req.TTL
		resp.Value, resp.Ok = old, present
		id := common.EventInserted
		if present {
			id = common.EventUpdated
		}
		notify = p.eventFunc(req.Cache, id, req.Key, old, req.Value)
	case common.MsgTPutIfAbsent:
		if present {
			resp.Value, resp.Ok = old, true
		} else {
			entries[key] = req.Value
			notify = p.eventFunc(req.Cache, common.EventInserted, req.Key, nil, req.Value)
		}
	case common.MsgTRemove:
		delete(entries, key)
		resp.Value, resp.Ok = old, present
		if present {
			notify = p.eventFunc(req.Cache, common.EventDeleted, req.Key, old, nil)
		}
	case common.MsgTContainsKey:
		resp.Ok = present
	case common.MsgTContainsValue:
		for _, v := range entries {
			if bytes.Equal(v, req.Value) {
				resp.Ok = true
			}
		}
	case common.MsgTSize:
		resp.Count = int64(len(entries))
	case common.MsgTIsEmpty:
		resp.Ok = len(entries) == 0
	case common.MsgTClear:
		var fns []func()
		for k, v := range entries {
			fns = append(fns, p.eventFunc(req.Cache, common.EventDeleted, []byte(k), v, nil))
		}
		clear(entries)
		notify = func() {
			for _, fn := range fns {
				fn()
			}
		}
	case common.MsgTTruncate:
		clear(entries)
		notify = p.lifecycleFunc(req.Cache, &common.ListenerResponse{Truncated: &common.CacheResponse{Cache: req.Cache}})
	case common.MsgTDestroy:
		delete(p.data, req.Cache)
		notify = p.lifecycleFunc(req.Cache, &common.ListenerResponse{Destroyed: &common.CacheResponse{Cache: req.Cache}})
	default:
		resp = common.NewErrorResponse(errors.New("unsupported operation"))
	}
	p.mu.Unlock()

	if notify != nil {
		notify()
	}
	return resp, nil
}

// eventFunc returns a func sending the event to every interested stream, p.mu must be held
func (p *fakeProxy) eventFunc(cache string, id common.EventID, key, oldValue, newValue []byte) func() {
	type target struct {
		s  *proxyStream
		ev *common.MapEventResponse
	}
	var targets []target
	for s := range p.streams {
		if s.cache != cache {
			continue
		}
		ev := &common.MapEventResponse{ID: id, Key: key}
		lite, matched := true, false
		if l, ok := s.keys[string(key)]; ok {
			matched = true
			lite = lite && l
		}
		for fid, l := range s.filters {
			matched = true
			lite = lite && l
			ev.FilterIDs = append(ev.FilterIDs, fid)
		}
		if !matched {
			continue
		}
		if !lite {
			ev.OldValue, ev.NewValue = oldValue, newValue
		}
		targets = append(targets, target{s: s, ev: ev})
	}
	return func() {
		for _, t := range targets {
			t.s.send(&common.ListenerResponse{Event: t.ev})
		}
	}
}

// lifecycleFunc returns a func sending resp to every stream of the cache, p.mu must be held
func (p *fakeProxy) lifecycleFunc(cache string, resp *common.ListenerResponse) func() {
	var targets []*proxyStream
	for s := range p.streams {
		if s.cache == cache {
			targets = append(targets, s)
		}
	}
	return func() {
		for _, s := range targets {
			s.send(resp)
		}
	}
}

func (s *proxyStream) send(resp *common.ListenerResponse) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	_ = s.stream.Send(resp)
}

func (p *fakeProxy) Events(stream grpc.BidiStreamingServer[common.ListenerRequest, common.ListenerResponse]) error {
	s := &proxyStream{stream: stream, keys: make(map[string]bool), filters: make(map[int64]bool)}
	p.mu.Lock()
	p.streams[s] = struct{}{}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.streams, s)
		p.mu.Unlock()
	}()

	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		p.mu.Lock()
		switch req.Type {
		case common.ListenerRequestInit:
			s.cache = req.Cache
		case common.ListenerRequestKey:
			if req.Subscribe {
				s.keys[string(req.Key)] = req.Lite
			} else {
				delete(s.keys, string(req.Key))
			}
		case common.ListenerRequestFilter:
			if req.Subscribe {
				s.filters[req.FilterID] = req.Lite
			} else {
				delete(s.filters, req.FilterID)
			}
		}
		p.mu.Unlock()

		if req.Subscribe {
			s.send(common.NewSubscribedResponse(req.Uid))
		} else {
			s.send(common.NewUnsubscribedResponse(req.Uid))
		}
	}
}

// page returns the sorted keys of the page starting at cookie and the next cookie
func (p *fakeProxy) page(cache string, cookie []byte) ([]string, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, len(p.data[cache]))
	for k := range p.data[cache] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if len(cookie) > 0 {
		start, _ = strconv.Atoi(string(cookie))
	}
	end := min(start+p.pageSize, len(keys))
	var next []byte
	if end < len(keys) {
		next = []byte(strconv.Itoa(end))
	}
	return keys[min(start, end):end], next
}

func (p *fakeProxy) NextKeySetPage(req *common.PageRequest, stream grpc.ServerStreamingServer[common.BytesValue]) error {
	keys, next := p.page(req.Cache, req.Cookie)
	if err := stream.Send(&common.BytesValue{Value: next}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := stream.Send(&common.BytesValue{Value: []byte(k)}); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProxy) NextEntrySetPage(req *common.PageRequest, stream grpc.ServerStreamingServer[common.EntryResult]) error {
	keys, next := p.page(req.Cache, req.Cookie)
	if err := stream.Send(&common.EntryResult{Cookie: next}); err != nil {
		return err
	}
	for _, k := range keys {
		p.mu.Lock()
		v := p.data[req.Cache][k]
		p.mu.Unlock()
		if err := stream.Send(&common.EntryResult{Key: []byte(k), Value: v}); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProxy) ttl() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTTL
}

// --------------------------------------------------------------------------
// Session Setup
// --------------------------------------------------------------------------

// bufconnConnector dials the in-process listener
type bufconnConnector struct {
	lis *bufconn.Listener
}

func (c *bufconnConnector) Connect(ctx context.Context, _ string) (net.Conn, error) {
	return c.lis.DialContext(ctx)
}

func (c *bufconnConnector) GetName() string { return "bufconn" }

func (c *bufconnConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// newTestSession starts a fake proxy and connects a session to it
func newTestSession(t *testing.T) (*Session, *fakeProxy) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	proxy := newFakeProxy()
	base.RegisterNamedMapServer(srv, proxy)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	s, err := NewSession(context.Background(), common.ClientConfig{
		Endpoints:          []string{"bufnet"},
		Format:             "json",
		TimeoutSecond:      5,
		ReadyTimeoutMillis: 5000,
		Transport:          common.ClientTransportConfig{Compression: true},
	}, WithTransport(base.NewBaseClientTransport(&bufconnConnector{lis: lis})), WithWaitForReady())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, proxy
}
