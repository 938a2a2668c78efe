// Package syncapi describes the record-sync gRPC service shared by the client
// and the reference server.
//
// Messages are protobuf well-known types: requests and records travel as
// structpb.Struct, acknowledgements as emptypb.Empty. The codec helpers in
// this package convert them to plain Go values.
package syncapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "ledgersync.sync.v1.SyncService"

const (
	PingMethod   = "/" + ServiceName + "/Ping"
	CreateMethod = "/" + ServiceName + "/Create"
	UpdateMethod = "/" + ServiceName + "/Update"
	DeleteMethod = "/" + ServiceName + "/Delete"
	ListMethod   = "/" + ServiceName + "/List"
)

// SyncServiceServer is implemented by the reference server.
type SyncServiceServer interface {
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Create upserts a record by id and returns it with its new version.
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Update merges fields into a record, creating it when absent.
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Delete tombstones a record. Deleting twice is not an error.
	Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// List returns records of one type with version greater than since,
	// tombstones included.
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SyncServiceClient is the client-side stub.
type SyncServiceClient interface {
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type syncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) SyncServiceClient {
	return &syncServiceClient{cc: cc}
}

func (c *syncServiceClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, PingMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CreateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, UpdateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, DeleteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// unary builds a grpc.MethodHandler that decodes Req and dispatches to call.
func unary[Req any, Resp any](fullMethod string, call func(SyncServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(SyncServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is registered with grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(PingMethod, SyncServiceServer.Ping)},
		{MethodName: "Create", Handler: unary(CreateMethod, SyncServiceServer.Create)},
		{MethodName: "Update", Handler: unary(UpdateMethod, SyncServiceServer.Update)},
		{MethodName: "Delete", Handler: unary(DeleteMethod, SyncServiceServer.Delete)},
		{MethodName: "List", Handler: unary(ListMethod, SyncServiceServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledgersync/sync/v1/sync.proto",
}

// RegisterSyncServiceServer registers srv on s.
func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
