// Package grpctransport is the socket-crossing Transport implementation:
// authorities resolve to "host:port" gRPC targets and frames travel over a
// single long-lived bidirectional stream per dialed peer.
package grpctransport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"github.com/babyman/fraktor/internal/remoting"
)

const authorityHeader = "fraktor-authority"

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// Transport dials authorities as "host:port" gRPC targets. Dialed
// connections are cached and reused for the lifetime of the Transport.
type Transport struct {
	self string

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func New(selfAuthority string) *Transport {
	return &Transport{self: selfAuthority, conns: make(map[string]*grpc.ClientConn)}
}

var _ remoting.Transport = (*Transport)(nil)

func (t *Transport) clientConn(target string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cc, ok := t.conns[target]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rawCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: dial %s: %w", target, err)
	}
	t.conns[target] = cc
	return cc, nil
}

func (t *Transport) Dial(ctx context.Context, authority string) (remoting.Conn, error) {
	cc, err := t.clientConn(authority)
	if err != nil {
		return nil, err
	}
	outCtx := metadata.AppendToOutgoingContext(ctx, authorityHeader, t.self)
	stream, err := cc.NewStream(outCtx, &serviceDesc.Streams[0], fullMethod())
	if err != nil {
		return nil, fmt.Errorf("grpctransport: open stream to %s: %w", authority, err)
	}
	return &clientStreamConn{stream: stream}, nil
}

type clientStreamConn struct {
	stream grpc.ClientStream
}

func (c *clientStreamConn) Send(ctx context.Context, frame []byte) error {
	return c.stream.SendMsg(frame)
}

func (c *clientStreamConn) Recv(ctx context.Context) ([]byte, error) {
	var frame []byte
	if err := c.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *clientStreamConn) Close() error {
	return c.stream.CloseSend()
}

// Server accepts inbound streams and hands each one out through Accept as a
// remoting.Conn. The Bridge itself only dials; it does not call Accept.
type Server struct {
	grpcServer *grpc.Server
	accept     chan acceptedConn
}

type acceptedConn struct {
	authority string
	conn      remoting.Conn
}

func NewServer() *Server {
	s := &Server{accept: make(chan acceptedConn, 16)}
	s.grpcServer = grpc.NewServer()
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }

func (s *Server) handleStream(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	authority := ""
	if vals := md.Get(authorityHeader); len(vals) > 0 {
		authority = vals[0]
	}
	conn := &serverStreamConn{stream: stream, done: make(chan struct{})}
	select {
	case s.accept <- acceptedConn{authority: authority, conn: conn}:
	case <-stream.Context().Done():
		return stream.Context().Err()
	}
	<-conn.done
	return nil
}

// Accept blocks until a peer opens an inbound stream, returning its
// claimed authority and a Conn for the bridge to drive.
func (s *Server) Accept(ctx context.Context) (string, remoting.Conn, error) {
	select {
	case ac := <-s.accept:
		return ac.authority, ac.conn, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

type serverStreamConn struct {
	stream grpc.ServerStream
	done   chan struct{}
}

func (c *serverStreamConn) Send(ctx context.Context, frame []byte) error {
	return c.stream.SendMsg(frame)
}

func (c *serverStreamConn) Recv(ctx context.Context) ([]byte, error) {
	var frame []byte
	if err := c.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *serverStreamConn) Close() error {
	close(c.done)
	return nil
}
