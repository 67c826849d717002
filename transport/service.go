package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GroupServer is the server API of the group transport service.
//
// Payloads are CBOR inside protobuf well-known wrappers, so no protoc
// step is needed:
//
//	service Group {
//	  rpc Join(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);    // member -> members
//	  rpc Deliver(google.protobuf.BytesValue) returns (google.protobuf.Empty);      // protocol envelope
//	  rpc Leave(google.protobuf.BytesValue) returns (google.protobuf.Empty);        // member
//	}
type GroupServer interface {
	Join(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Deliver(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Leave(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

// UnimplementedGroupServer can be embedded to have forward compatible implementations.
type UnimplementedGroupServer struct{}

func (UnimplementedGroupServer) Join(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Join not implemented")
}
func (UnimplementedGroupServer) Deliver(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Deliver not implemented")
}
func (UnimplementedGroupServer) Leave(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Leave not implemented")
}

// RegisterGroupServer registers the group service on a gRPC server.
func RegisterGroupServer(s grpc.ServiceRegistrar, srv GroupServer) {
	s.RegisterService(&Group_ServiceDesc, srv)
}

// GroupClient is the client API of the group transport service.
type GroupClient interface {
	Join(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Deliver(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Leave(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

const (
	groupServiceName   = "remotesvc.transport.v1.Group"
	groupJoinMethod    = "/" + groupServiceName + "/Join"
	groupDeliverMethod = "/" + groupServiceName + "/Deliver"
	groupLeaveMethod   = "/" + groupServiceName + "/Leave"
)

type groupClient struct{ cc grpc.ClientConnInterface }

func NewGroupClient(cc grpc.ClientConnInterface) GroupClient { return &groupClient{cc: cc} }

func (c *groupClient) Join(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, groupJoinMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *groupClient) Deliver(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, groupDeliverMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *groupClient) Leave(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, groupLeaveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Group_Join_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GroupServer).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: groupJoinMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GroupServer).Join(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Group_Deliver_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GroupServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: groupDeliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GroupServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Group_Leave_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GroupServer).Leave(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: groupLeaveMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GroupServer).Leave(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Group_ServiceDesc is the grpc.ServiceDesc for the Group service.
var Group_ServiceDesc = grpc.ServiceDesc{
	ServiceName: groupServiceName,
	HandlerType: (*GroupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: _Group_Join_Handler},
		{MethodName: "Deliver", Handler: _Group_Deliver_Handler},
		{MethodName: "Leave", Handler: _Group_Leave_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "remotesvc/transport/v1/group.proto",
}
