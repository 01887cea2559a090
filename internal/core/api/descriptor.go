package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service carries protocol frames and JSON values inside well-known
// wrapper messages, so it needs no generated code.
const (
	ServiceName = "microproto.v1.PropertyService"

	ConnectFullMethodName     = "/" + ServiceName + "/Connect"
	GetPropertyFullMethodName = "/" + ServiceName + "/GetProperty"
	SetPropertyFullMethodName = "/" + ServiceName + "/SetProperty"
)

// ConnectStream is the server side of Connect. Each message is one binary
// protocol packet.
type ConnectStream = grpc.BidiStreamingServer[wrapperspb.BytesValue, wrapperspb.BytesValue]

// ConnectClient is the client side of Connect.
type ConnectClient = grpc.BidiStreamingClient[wrapperspb.BytesValue, wrapperspb.BytesValue]

// PropertyServiceServer is the server API for the property service.
type PropertyServiceServer interface {
	// Connect runs a binary protocol session over the stream.
	Connect(ConnectStream) error
	// GetProperty returns the JSON value of the named property.
	GetProperty(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// SetProperty writes {"name": ..., "value": ...} and returns the JSON
	// value after the write.
	SetProperty(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
}

// UnimplementedPropertyServiceServer can be embedded for forward compatibility.
type UnimplementedPropertyServiceServer struct{}

func (UnimplementedPropertyServiceServer) Connect(ConnectStream) error {
	return status.Error(codes.Unimplemented, "method Connect not implemented")
}

func (UnimplementedPropertyServiceServer) GetProperty(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetProperty not implemented")
}

func (UnimplementedPropertyServiceServer) SetProperty(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method SetProperty not implemented")
}

// RegisterPropertyServiceServer registers srv with s.
func RegisterPropertyServiceServer(s grpc.ServiceRegistrar, srv PropertyServiceServer) {
	s.RegisterService(&PropertyServiceDesc, srv)
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(PropertyServiceServer).Connect(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ServerStream: stream})
}

func getPropertyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PropertyServiceServer).GetProperty(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPropertyFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PropertyServiceServer).GetProperty(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func setPropertyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PropertyServiceServer).SetProperty(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetPropertyFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PropertyServiceServer).SetProperty(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PropertyServiceDesc is the grpc.ServiceDesc for the property service.
var PropertyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PropertyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProperty", Handler: getPropertyHandler},
		{MethodName: "SetProperty", Handler: setPropertyHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "microproto/v1/property_service",
}

// PropertyServiceClient is the client API for the property service.
type PropertyServiceClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (ConnectClient, error)
	GetProperty(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	SetProperty(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type propertyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPropertyServiceClient returns a client bound to cc.
func NewPropertyServiceClient(cc grpc.ClientConnInterface) PropertyServiceClient {
	return &propertyServiceClient{cc}
}

func (c *propertyServiceClient) Connect(ctx context.Context, opts ...grpc.CallOption) (ConnectClient, error) {
	stream, err := c.cc.NewStream(ctx, &PropertyServiceDesc.Streams[0], ConnectFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ClientStream: stream}, nil
}

func (c *propertyServiceClient) GetProperty(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, GetPropertyFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *propertyServiceClient) SetProperty(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, SetPropertyFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
