package porter

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-signer/pkg/errno"
)

const testChannel = "wallet"

type echoReq struct {
	Type string `json:"type"`
	N    int    `json:"n"`
}

// startServer 连接一个 Client 和 Server, 返回 client
func startServer(t *testing.T, h HandlerFunc, opts ...ClientOption) (*Client, *Server) {
	t.Helper()
	srv := NewServer(testChannel, h)
	a, b := Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx, b) }()

	c := NewClient(a, testChannel, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestRequestReply(t *testing.T) {
	c, _ := startServer(t, func(ctx context.Context, req *Request) {
		var in echoReq
		require.NoError(t, req.Decode(&in))
		req.Reply(echoReq{Type: in.Type, N: in.N * 2})
	})

	for i := 1; i <= 5; i++ {
		var out echoReq
		require.NoError(t, c.Request(context.Background(), echoReq{Type: "ECHO", N: i}, &out))
		assert.Equal(t, "ECHO", out.Type)
		assert.Equal(t, i*2, out.N)
	}
}

func TestRemoteErrorKeepsCodeAndData(t *testing.T) {
	c, _ := startServer(t, func(ctx context.Context, req *Request) {
		var in echoReq
		_ = req.Decode(&in)
		if in.N == 1 {
			req.Fail(errno.ErrDeclined)
			return
		}
		req.Fail(&errno.RPCError{Code: -32000, Message: "insufficient funds", Data: json.RawMessage(`{"need":"0x10"}`)})
	})

	err := c.Request(context.Background(), echoReq{N: 1}, nil)
	assert.ErrorIs(t, err, errno.ErrDeclined)
	assert.Equal(t, "Declined", err.Error())

	err = c.Request(context.Background(), echoReq{N: 2}, nil)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.ErrorIs(t, err, errno.ErrRPC)
	assert.Equal(t, -32000, remote.RPCCode)
	assert.Equal(t, "insufficient funds", remote.Message)
	assert.JSONEq(t, `{"need":"0x10"}`, string(remote.Data))
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	c, _ := startServer(t, func(ctx context.Context, req *Request) {
		var m map[string]string
		m["boom"] = "x"
	})

	err := c.Request(context.Background(), echoReq{}, nil)
	assert.ErrorIs(t, err, errno.InternalServerError)

	// 连接仍然可用
	err = c.Request(context.Background(), echoReq{}, nil)
	assert.ErrorIs(t, err, errno.InternalServerError)
}

func TestAtMostOneReply(t *testing.T) {
	second := make(chan bool, 1)
	c, _ := startServer(t, func(ctx context.Context, req *Request) {
		assert.True(t, req.Reply(echoReq{N: 1}))
		second <- req.Reply(echoReq{N: 2})
	})

	var out echoReq
	require.NoError(t, c.Request(context.Background(), echoReq{}, &out))
	assert.Equal(t, 1, out.N)
	assert.False(t, <-second)
}

func TestUnmatchedReplyDiscarded(t *testing.T) {
	a, b := Pipe()
	c := NewClient(a, testChannel)
	defer c.Close()

	go func() {
		env, err := b.Recv()
		if err != nil {
			return
		}
		ctx := context.Background()
		// 先发一个无人等待的应答, 再发真正的应答
		_ = b.Send(ctx, &Envelope{ID: "nobody-1", Channel: testChannel, Kind: KindReply, Payload: json.RawMessage(`{"n":99}`)})
		_ = b.Send(ctx, &Envelope{ID: env.ID, Channel: testChannel, Kind: KindReply, Payload: json.RawMessage(`{"n":7}`)})
	}()

	var out echoReq
	require.NoError(t, c.Request(context.Background(), echoReq{}, &out))
	assert.Equal(t, 7, out.N)
}

func TestRequestTimeout(t *testing.T) {
	c, _ := startServer(t, func(ctx context.Context, req *Request) {
		// never answers
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	err := c.Request(context.Background(), echoReq{}, nil)
	assert.ErrorIs(t, err, errno.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	// caller deadline overrides the default
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.Request(ctx, echoReq{}, nil)
	assert.ErrorIs(t, err, errno.ErrTimeout)
}

func TestDisconnected(t *testing.T) {
	a, b := Pipe()
	c := NewClient(a, testChannel, WithTimeout(0))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Request(context.Background(), echoReq{}, nil) }()

	// 等请求到达后再断开
	_, err := b.Recv()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errno.ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request hung after disconnect")
	}

	<-c.Done()
	assert.ErrorIs(t, c.Request(context.Background(), echoReq{}, nil), errno.ErrDisconnected)
}

func TestHandlerCompletesAfterCallerLeaves(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	committed := make(chan bool, 1)

	c, _ := startServer(t, func(ctx context.Context, req *Request) {
		close(started)
		<-release
		committed <- req.Reply(echoReq{N: 1})
	}, WithTimeout(0))

	go func() { _ = c.Request(context.Background(), echoReq{}, nil) }()
	<-started
	require.NoError(t, c.Close())

	close(release)
	select {
	case ok := <-committed:
		assert.True(t, ok, "reply handle consumed even though the caller is gone")
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not complete")
	}
}

func TestBroadcast(t *testing.T) {
	srv := NewServer(testChannel, func(ctx context.Context, req *Request) { req.Reply(struct{}{}) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received atomic.Int32
	got := make(chan struct{}, 4)
	var clients []*Client
	for i := 0; i < 2; i++ {
		a, b := Pipe()
		go func() { _ = srv.Serve(ctx, b) }()
		c := NewClient(a, testChannel)
		defer c.Close()
		c.OnMessage(func(payload json.RawMessage) {
			var ev echoReq
			if json.Unmarshal(payload, &ev) == nil && ev.Type == "STATUS" {
				received.Add(1)
				got <- struct{}{}
			}
		})
		clients = append(clients, c)
	}

	// 确保两个连接都已注册
	for _, c := range clients {
		require.NoError(t, c.Request(context.Background(), echoReq{}, nil))
	}
	assert.Equal(t, 2, srv.Connections())

	srv.Broadcast(echoReq{Type: "STATUS"})
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast not delivered")
		}
	}
	assert.Equal(t, int32(2), received.Load())
}

func TestUnsubscribe(t *testing.T) {
	a, b := Pipe()
	c := NewClient(a, testChannel)
	defer c.Close()

	calls := make(chan struct{}, 2)
	unsubscribe := c.OnMessage(func(json.RawMessage) { calls <- struct{}{} })

	ctx := context.Background()
	require.NoError(t, b.Send(ctx, &Envelope{Channel: testChannel, Kind: KindEvent, Payload: json.RawMessage(`{}`)}))
	<-calls

	unsubscribe()
	// 后注册的监听器作为屏障: 它收到第二个事件时, 已退订的监听器不应再被调用
	seen := make(chan struct{}, 1)
	c.OnMessage(func(json.RawMessage) { seen <- struct{}{} })
	require.NoError(t, b.Send(ctx, &Envelope{Channel: testChannel, Kind: KindEvent, Payload: json.RawMessage(`{}`)}))

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Len(t, calls, 0)
}

func TestListenerCanRequest(t *testing.T) {
	a, b := Pipe()
	c := NewClient(a, testChannel, WithTimeout(2*time.Second))
	defer c.Close()

	// 对端: 每个请求都应答
	ctx := context.Background()
	go func() {
		for {
			env, err := b.Recv()
			if err != nil {
				return
			}
			if env.Kind == KindRequest {
				_ = b.Send(ctx, &Envelope{ID: env.ID, Channel: testChannel, Kind: KindReply, Payload: json.RawMessage(`{}`)})
			}
		}
	}()

	done := make(chan error, 1)
	c.OnMessage(func(json.RawMessage) {
		done <- c.Request(ctx, echoReq{Type: "FOLLOW_UP"}, nil)
	})
	require.NoError(t, b.Send(ctx, &Envelope{Channel: testChannel, Kind: KindEvent, Payload: json.RawMessage(`{}`)}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("request issued from a listener did not complete")
	}
}
