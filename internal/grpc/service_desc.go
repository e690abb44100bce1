package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "gamefilter.v1.DraftService"

const (
	methodGetSession      = "/" + ServiceName + "/GetSession"
	methodSubmitPick      = "/" + ServiceName + "/SubmitPick"
	methodStreamSnapshots = "/" + ServiceName + "/StreamSnapshots"
)

// DraftServiceServer is the server API. Messages are google.protobuf.Struct
// so the service needs no generated code.
type DraftServiceServer interface {
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitPick(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamSnapshots(*structpb.Struct, grpc.ServerStream) error
}

// Register adds the DraftService to s
func Register(s grpc.ServiceRegistrar, srv DraftServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary(method string, call func(DraftServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DraftServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DraftServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DraftServiceServer).StreamSnapshots(in, stream)
}

// ServiceDesc describes DraftService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DraftServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSession",
			Handler:    unary(methodGetSession, DraftServiceServer.GetSession),
		},
		{
			MethodName: "SubmitPick",
			Handler:    unary(methodSubmitPick, DraftServiceServer.SubmitPick),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSnapshots",
			Handler:       streamSnapshotsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "gamefilter/v1/draft.proto",
}

// Client calls a remote DraftService
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"sessionId": sessionID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetSession, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitPick(ctx context.Context, sessionID string, slot int, entityID, entityKind string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{
		"sessionId":  sessionID,
		"slot":       float64(slot),
		"entityId":   entityID,
		"entityKind": entityKind,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodSubmitPick, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SnapshotStream receives snapshot messages
type SnapshotStream struct {
	grpc.ClientStream
}

func (s *SnapshotStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) StreamSnapshots(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*SnapshotStream, error) {
	req, err := structpb.NewStruct(map[string]any{"sessionId": sessionID})
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], methodStreamSnapshots, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SnapshotStream{ClientStream: stream}, nil
}
