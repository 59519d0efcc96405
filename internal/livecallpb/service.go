package livecallpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName                        = "live_call.LiveCall"
	LiveCall_StreamCall_FullMethodName = "/live_call.LiveCall/StreamCall"
)

// LiveCallClient is the client API for the LiveCall service.
type LiveCallClient interface {
	StreamCall(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientRequest, ServerResponse], error)
}

type liveCallClient struct {
	cc grpc.ClientConnInterface
}

func NewLiveCallClient(cc grpc.ClientConnInterface) LiveCallClient {
	return &liveCallClient{cc}
}

func (c *liveCallClient) StreamCall(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientRequest, ServerResponse], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod(), grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &LiveCall_ServiceDesc.Streams[0], LiveCall_StreamCall_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ClientRequest, ServerResponse]{ClientStream: stream}, nil
}

// LiveCallServer is the server API for the LiveCall service. Servers must be
// created with grpc.ForceServerCodec(Codec{}).
type LiveCallServer interface {
	StreamCall(grpc.BidiStreamingServer[ClientRequest, ServerResponse]) error
}

// UnimplementedLiveCallServer can be embedded to have forward compatible implementations.
type UnimplementedLiveCallServer struct{}

func (UnimplementedLiveCallServer) StreamCall(grpc.BidiStreamingServer[ClientRequest, ServerResponse]) error {
	return status.Errorf(codes.Unimplemented, "method StreamCall not implemented")
}

func RegisterLiveCallServer(s grpc.ServiceRegistrar, srv LiveCallServer) {
	s.RegisterService(&LiveCall_ServiceDesc, srv)
}

func _LiveCall_StreamCall_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(LiveCallServer).StreamCall(&grpc.GenericServerStream[ClientRequest, ServerResponse]{ServerStream: stream})
}

var LiveCall_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LiveCallServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamCall",
			Handler:       _LiveCall_StreamCall_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "proto/voice.proto",
}
