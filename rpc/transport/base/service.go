package base

import (
	"context"

	"github.com/ValentinKolb/dMap/rpc/common"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC name of the proxy's named map service
const ServiceName = "dmap.proxy.v1.NamedMapService"

// Full method names
const (
	InvokeMethod           = "/" + ServiceName + "/Invoke"
	EventsMethod           = "/" + ServiceName + "/Events"
	NextKeySetPageMethod   = "/" + ServiceName + "/NextKeySetPage"
	NextEntrySetPageMethod = "/" + ServiceName + "/NextEntrySetPage"
)

// --------------------------------------------------------------------------
// Server side (used by proxies and in-process test servers)
// --------------------------------------------------------------------------

// NamedMapServer is the server API of the named map service
type NamedMapServer interface {
	// Invoke executes a single named map operation
	Invoke(ctx context.Context, req *common.Message) (*common.Message, error)
	// Events serves the shared listener stream of one client
	Events(stream grpc.BidiStreamingServer[common.ListenerRequest, common.ListenerResponse]) error
	// NextKeySetPage streams the cookie of the next page followed by the keys of this page
	NextKeySetPage(req *common.PageRequest, stream grpc.ServerStreamingServer[common.BytesValue]) error
	// NextEntrySetPage streams the cookie of the next page (first element) followed by the entries of this page
	NextEntrySetPage(req *common.PageRequest, stream grpc.ServerStreamingServer[common.EntryResult]) error
}

// RegisterNamedMapServer registers srv with the given gRPC server
func RegisterNamedMapServer(s grpc.ServiceRegistrar, srv NamedMapServer) {
	s.RegisterService(&NamedMapServiceDesc, srv)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(common.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NamedMapServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InvokeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NamedMapServer).Invoke(ctx, req.(*common.Message))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(NamedMapServer).Events(&grpc.GenericServerStream[common.ListenerRequest, common.ListenerResponse]{ServerStream: stream})
}

func nextKeySetPageHandler(srv any, stream grpc.ServerStream) error {
	m := new(common.PageRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(NamedMapServer).NextKeySetPage(m, &grpc.GenericServerStream[common.PageRequest, common.BytesValue]{ServerStream: stream})
}

func nextEntrySetPageHandler(srv any, stream grpc.ServerStream) error {
	m := new(common.PageRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(NamedMapServer).NextEntrySetPage(m, &grpc.GenericServerStream[common.PageRequest, common.EntryResult]{ServerStream: stream})
}

// NamedMapServiceDesc describes the named map service. The messages are plain
// structs of the common package, encoded by the msgpack codec.
var NamedMapServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NamedMapServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "NextKeySetPage",
			Handler:       nextKeySetPageHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "NextEntrySetPage",
			Handler:       nextEntrySetPageHandler,
			ServerStreams: true,
		},
	},
	Metadata: "dmap/proxy/v1/named_map",
}
