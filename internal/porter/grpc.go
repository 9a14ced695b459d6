package porter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// gRPC 传输: 一个双向流 porter.v1.Porter/Connect, 每帧是 BytesValue 包裹的 JSON Envelope
const (
	grpcServiceName   = "porter.v1.Porter"
	grpcConnectMethod = "/porter.v1.Porter/Connect"
)

type connectService interface {
	Connect(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*connectService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "porter/v1/porter.proto",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(connectService).Connect(stream)
}

type grpcService struct {
	ctx context.Context
	srv *Server
}

func (g *grpcService) Connect(stream grpc.ServerStream) error {
	return g.srv.Serve(g.ctx, newStreamConn(stream, nil))
}

// RegisterGRPC exposes s on a gRPC server. ctx bounds the request handlers.
func RegisterGRPC(ctx context.Context, gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, &grpcService{ctx: ctx, srv: s})
}

// DialGRPC opens a stream to a porter server. Without options it dials insecurely.
func DialGRPC(target string, opts ...grpc.DialOption) (Conn, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("porter: dial %s: %w", target, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], grpcConnectMethod)
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("porter: open stream: %w", err)
	}

	return newStreamConn(stream, func() error {
		cancel()
		return cc.Close()
	}), nil
}

type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

type streamConn struct {
	stream  msgStream
	closeFn func() error

	sendMu sync.Mutex
	closed atomic.Bool
	once   sync.Once
}

func newStreamConn(stream msgStream, closeFn func() error) *streamConn {
	return &streamConn{stream: stream, closeFn: closeFn}
}

func (c *streamConn) Send(_ context.Context, env *Envelope) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
		return streamErr(err)
	}
	return nil
}

func (c *streamConn) Recv() (*Envelope, error) {
	for {
		m := new(wrapperspb.BytesValue)
		if err := c.stream.RecvMsg(m); err != nil {
			c.closed.Store(true)
			return nil, streamErr(err)
		}
		if env, ok := decodeFrame(m.GetValue()); ok {
			return env, nil
		}
	}
}

func (c *streamConn) Close() error {
	c.closed.Store(true)
	var err error
	c.once.Do(func() {
		if c.closeFn != nil {
			err = c.closeFn()
		}
	})
	return err
}

func streamErr(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrClosed
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable:
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
