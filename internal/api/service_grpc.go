package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name advertised in the ServiceDesc below
// and used by grpc-gateway's pass-through dialer in internal/apiserver.
const ServiceName = "replaybuffer.ReplayBuffer"

// ReplayBufferServer is the server-side contract for the RPC surface of §6.
// internal/service implements this interface; internal/apiserver registers
// it against a *grpc.Server via RegisterReplayBufferServer.
type ReplayBufferServer interface {
	Checkpoint(context.Context, *CheckpointRequest) (*CheckpointResponse, error)
	MutatePriorities(context.Context, *MutatePrioritiesRequest) (*MutatePrioritiesResponse, error)
	Reset(context.Context, *ResetRequest) (*ResetResponse, error)
	ServerInfo(context.Context, *ServerInfoRequest) (*ServerInfoResponse, error)
	InsertStream(InsertStream_Server) error
	SampleStream(SampleStream_Server) error
	InitializeConnection(InitializeConnection_Server) error
}

// InsertStream_Server is the server side of the bidi InsertStream RPC.
type InsertStream_Server interface {
	Send(*InsertStreamResponse) error
	Recv() (*InsertStreamRequest, error)
	grpc.ServerStream
}

// SampleStream_Server is the server side of the bidi SampleStream RPC.
type SampleStream_Server interface {
	Send(*SampleStreamResponse) error
	Recv() (*SampleStreamRequest, error)
	grpc.ServerStream
}

// InitializeConnection_Server is the server side of the in-process
// handshake stream (§4.10).
type InitializeConnection_Server interface {
	Send(*InitializeConnectionResponse) error
	Recv() (*InitializeConnectionRequest, error)
	RecvConfirmation() (*InitializeConnectionConfirmation, error)
	grpc.ServerStream
}

type insertStreamServer struct{ grpc.ServerStream }

func (s *insertStreamServer) Send(m *InsertStreamResponse) error { return s.ServerStream.SendMsg(m) }
func (s *insertStreamServer) Recv() (*InsertStreamRequest, error) {
	m := new(InsertStreamRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type sampleStreamServer struct{ grpc.ServerStream }

func (s *sampleStreamServer) Send(m *SampleStreamResponse) error { return s.ServerStream.SendMsg(m) }
func (s *sampleStreamServer) Recv() (*SampleStreamRequest, error) {
	m := new(SampleStreamRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type initializeConnectionServer struct{ grpc.ServerStream }

func (s *initializeConnectionServer) Send(m *InitializeConnectionResponse) error {
	return s.ServerStream.SendMsg(m)
}
func (s *initializeConnectionServer) Recv() (*InitializeConnectionRequest, error) {
	m := new(InitializeConnectionRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
func (s *initializeConnectionServer) RecvConfirmation() (*InitializeConnectionConfirmation, error) {
	m := new(InitializeConnectionConfirmation)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func checkpointHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckpointRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayBufferServer).Checkpoint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Checkpoint"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayBufferServer).Checkpoint(ctx, req.(*CheckpointRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func mutatePrioritiesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MutatePrioritiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayBufferServer).MutatePriorities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/MutatePriorities"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayBufferServer).MutatePriorities(ctx, req.(*MutatePrioritiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func resetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayBufferServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Reset"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayBufferServer).Reset(ctx, req.(*ResetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func serverInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ServerInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayBufferServer).ServerInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ServerInfo"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayBufferServer).ServerInfo(ctx, req.(*ServerInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func insertStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplayBufferServer).InsertStream(&insertStreamServer{stream})
}

func sampleStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplayBufferServer).SampleStream(&sampleStreamServer{stream})
}

func initializeConnectionHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplayBufferServer).InitializeConnection(&initializeConnectionServer{stream})
}

// ServiceDesc is the hand-written equivalent of a protoc-gen-go-grpc
// _ServiceDesc: it wires ReplayBufferServer's methods into a *grpc.Server
// without a generated stub.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplayBufferServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkpoint", Handler: checkpointHandler},
		{MethodName: "MutatePriorities", Handler: mutatePrioritiesHandler},
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "ServerInfo", Handler: serverInfoHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "InsertStream", Handler: insertStreamHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: "SampleStream", Handler: sampleStreamHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: "InitializeConnection", Handler: initializeConnectionHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "replaybuffer.proto",
}

// RegisterReplayBufferServer registers impl's RPC surface against s.
func RegisterReplayBufferServer(s *grpc.Server, impl ReplayBufferServer) {
	s.RegisterService(&ServiceDesc, impl)
}
