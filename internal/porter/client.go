package porter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
)

// Client 前台一侧: 发起请求并接收广播事件
type Client struct {
	conn    Conn
	channel string
	timeout time.Duration
	prefix  string
	seq     atomic.Uint64

	mu           sync.Mutex
	pending      map[string]chan *Envelope
	listeners    map[uint64]func(json.RawMessage)
	nextListener uint64
	closed       bool

	// 事件在独立 goroutine 中按到达顺序派发, 监听器内可以再发起 Request
	evMu     sync.Mutex
	evQueue  []json.RawMessage
	evSignal chan struct{}

	done chan struct{}
}

type ClientOption func(*Client)

// WithTimeout sets the default per-request timeout, used when the
// request context carries no deadline of its own. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient starts reading from conn immediately.
func NewClient(conn Conn, channel string, opts ...ClientOption) *Client {
	c := &Client{
		conn:      conn,
		channel:   channel,
		timeout:   30 * time.Second,
		prefix:    uuid.NewString()[:8],
		pending:   make(map[string]chan *Envelope),
		listeners: make(map[uint64]func(json.RawMessage)),
		evSignal:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	go c.dispatchLoop()
	return c
}

// Request sends payload and decodes the matching reply into out (if non-nil).
func (c *Client) Request(ctx context.Context, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("porter: encode request: %w", err)
	}

	id := fmt.Sprintf("%s-%d", c.prefix, c.seq.Add(1))
	ch := make(chan *Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errno.ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err = c.conn.Send(ctx, &Envelope{ID: id, Channel: c.channel, Kind: KindRequest, Payload: raw})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return errno.ErrDisconnected
		}
		return c.ctxErr(ctx, err)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			return errno.ErrDisconnected
		}
		if env.Error != nil {
			return env.Error
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(env.Payload, out)
	case <-ctx.Done():
		return c.ctxErr(ctx, ctx.Err())
	}
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errno.ErrTimeout
	}
	return err
}

// OnMessage registers a broadcast listener. Listeners run sequentially in arrival order
// on a dispatch goroutine separate from reply delivery, so a listener may call Request.
// A slow listener delays later events, never replies.
func (c *Client) OnMessage(fn func(payload json.RawMessage)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		env, err := c.conn.Recv()
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				logger.Warn("[Porter] 连接读取失败", zap.String("channel", c.channel), zap.Error(err))
			}
			return
		}
		if env.Channel != c.channel {
			logger.Warn("[Porter] 丢弃其他通道的消息", zap.String("channel", env.Channel))
			continue
		}

		switch env.Kind {
		case KindReply:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.mu.Unlock()

			if !ok {
				logger.Warn("[Porter] 未匹配的应答已丢弃", zap.String("id", env.ID))
				continue
			}
			ch <- env
		case KindEvent:
			c.evMu.Lock()
			c.evQueue = append(c.evQueue, env.Payload)
			c.evMu.Unlock()
			select {
			case c.evSignal <- struct{}{}:
			default:
			}
		default:
			logger.Warn("[Porter] 意外的消息类型", zap.String("kind", string(env.Kind)))
		}
	}
}

// dispatchLoop 派发已收到的事件, 连接断开后丢弃未派发的事件
func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.evSignal:
		case <-c.done:
			return
		}

		c.evMu.Lock()
		queue := c.evQueue
		c.evQueue = nil
		c.evMu.Unlock()

		for _, payload := range queue {
			c.mu.Lock()
			fns := make([]func(json.RawMessage), 0, len(c.listeners))
			for _, fn := range c.listeners {
				fns = append(fns, fn)
			}
			c.mu.Unlock()

			for _, fn := range fns {
				fn(payload)
			}
		}
	}
}

// shutdown fails every pending request with ErrDisconnected.
func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	close(c.done)
}
