package porter

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestGRPCTransport(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()

	srv := NewServer(testChannel, func(ctx context.Context, req *Request) {
		var in echoReq
		_ = req.Decode(&in)
		req.Reply(echoReq{Type: in.Type, N: in.N + 1})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterGRPC(ctx, gs, srv)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	conn, err := DialGRPC("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	c := NewClient(conn, testChannel, WithTimeout(5*time.Second))
	defer c.Close()

	events := make(chan echoReq, 1)
	c.OnMessage(func(payload json.RawMessage) {
		var ev echoReq
		if json.Unmarshal(payload, &ev) == nil {
			events <- ev
		}
	})

	var out echoReq
	require.NoError(t, c.Request(context.Background(), echoReq{Type: "PING", N: 41}, &out))
	assert.Equal(t, echoReq{Type: "PING", N: 42}, out)

	srv.Broadcast(echoReq{Type: "STATUS"})
	select {
	case ev := <-events:
		assert.Equal(t, "STATUS", ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered over grpc")
	}
}
