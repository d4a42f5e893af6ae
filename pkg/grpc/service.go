package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service is registered by hand: every method takes and returns a
// google.protobuf.Struct shaped like the matching HTTP JSON body.
const (
	ServiceName = "geoalert.v1.GeoAlert"

	FullMethodIngest           = "/" + ServiceName + "/Ingest"
	FullMethodListGeofences    = "/" + ServiceName + "/ListGeofences"
	FullMethodListAlerts       = "/" + ServiceName + "/ListAlerts"
	FullMethodAcknowledgeAlert = "/" + ServiceName + "/AcknowledgeAlert"
	FullMethodResolveAlert     = "/" + ServiceName + "/ResolveAlert"
)

type GeoAlertService interface {
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListGeofences(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAlerts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(GeoAlertService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GeoAlertService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GeoAlertService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var GeoAlertServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GeoAlertService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: unaryHandler(FullMethodIngest, GeoAlertService.Ingest)},
		{MethodName: "ListGeofences", Handler: unaryHandler(FullMethodListGeofences, GeoAlertService.ListGeofences)},
		{MethodName: "ListAlerts", Handler: unaryHandler(FullMethodListAlerts, GeoAlertService.ListAlerts)},
		{MethodName: "AcknowledgeAlert", Handler: unaryHandler(FullMethodAcknowledgeAlert, GeoAlertService.AcknowledgeAlert)},
		{MethodName: "ResolveAlert", Handler: unaryHandler(FullMethodResolveAlert, GeoAlertService.ResolveAlert)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geoalert.v1",
}

func RegisterGeoAlertService(s grpc.ServiceRegistrar, srv GeoAlertService) {
	s.RegisterService(&GeoAlertServiceDesc, srv)
}

type GeoAlertClient struct {
	cc grpc.ClientConnInterface
}

func NewGeoAlertClient(cc grpc.ClientConnInterface) *GeoAlertClient {
	return &GeoAlertClient{cc: cc}
}

func (c *GeoAlertClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GeoAlertClient) Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodIngest, in, opts...)
}

func (c *GeoAlertClient) ListGeofences(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodListGeofences, in, opts...)
}

func (c *GeoAlertClient) ListAlerts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodListAlerts, in, opts...)
}

func (c *GeoAlertClient) AcknowledgeAlert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodAcknowledgeAlert, in, opts...)
}

func (c *GeoAlertClient) ResolveAlert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodResolveAlert, in, opts...)
}
