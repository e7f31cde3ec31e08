// Package transport exposes the catalog, resolver and hot-swap engine over
// gRPC as semverx.v1.SwapService.
//
// The service has no generated stubs: messages are Go structs carried by the
// JSON codec registered in this package, and the service descriptor is
// written by hand. The standard grpc.health.v1 service runs next to it.
package transport

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "semverx.v1.SwapService"

// SwapServiceServer is implemented by Server.
type SwapServiceServer interface {
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
	Swap(context.Context, *SwapRequest) (*SwapResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	CanSwap(context.Context, *CanSwapRequest) (*CanSwapResponse, error)
}

func RegisterSwapServiceServer(s grpc.ServiceRegistrar, srv SwapServiceServer) {
	s.RegisterService(&swapServiceDesc, srv)
}

var swapServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: unary(func(s SwapServiceServer, ctx context.Context, req *ResolveRequest) (any, error) {
			return s.Resolve(ctx, req)
		})},
		{MethodName: "Swap", Handler: unary(func(s SwapServiceServer, ctx context.Context, req *SwapRequest) (any, error) {
			return s.Swap(ctx, req)
		})},
		{MethodName: "Get", Handler: unary(func(s SwapServiceServer, ctx context.Context, req *GetRequest) (any, error) {
			return s.Get(ctx, req)
		})},
		{MethodName: "CanSwap", Handler: unary(func(s SwapServiceServer, ctx context.Context, req *CanSwapRequest) (any, error) {
			return s.CanSwap(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "semverx/v1/swap",
}

// unary builds a method handler for a request type.
func unary[Req any](call func(SwapServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(SwapServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(ctx)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		})
	}
}

func fullMethod(ctx context.Context) string {
	if m, ok := grpc.Method(ctx); ok {
		return m
	}
	return ""
}
