package grpctransport

import (
	"google.golang.org/grpc"
)

// serviceName and methodName identify the single bidirectional streaming
// RPC this package exposes. There is deliberately no .proto file: frames
// are opaque []byte, so the service is described by hand with a
// grpc.ServiceDesc rather than generated stubs.
const (
	serviceName = "fraktor.remoting.Frames"
	methodName  = "Stream"
)

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).handleStream(stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*streamHandlerType)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodName,
			Handler:       streamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "fraktor/remoting/frames.proto",
}

// streamHandlerType is a placeholder interface satisfying grpc.ServiceDesc's
// HandlerType field; the real dispatch happens in streamHandler above.
type streamHandlerType any

func fullMethod() string {
	return "/" + serviceName + "/" + methodName
}
