package porter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
)

const replyTimeout = 5 * time.Second

// HandlerFunc handles one request. It may reply later from another goroutine.
type HandlerFunc func(ctx context.Context, req *Request)

// Request 后台收到的一条请求, 至多应答一次
type Request struct {
	ID      string
	Payload json.RawMessage

	srv     *Server
	conn    Conn
	replied atomic.Bool
}

func (r *Request) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// Reply sends a result. It returns false if the request was already answered.
func (r *Request) Reply(result any) bool {
	return r.respond(result, nil)
}

// Fail sends an error reply. It returns false if the request was already answered.
func (r *Request) Fail(err error) bool {
	return r.respond(nil, err)
}

func (r *Request) respond(result any, err error) bool {
	if !r.replied.CompareAndSwap(false, true) {
		logger.Error("[Porter] 重复应答已丢弃", zap.String("id", r.ID))
		return false
	}

	env := &Envelope{ID: r.ID, Channel: r.srv.channel, Kind: KindReply}
	if err != nil {
		env.Error = ToRemoteError(err)
	} else {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			env.Error = ToRemoteError(mErr)
		} else {
			env.Payload = raw
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	if sErr := r.conn.Send(ctx, env); sErr != nil {
		// 请求方已断开, 应答丢弃
		logger.Warn("[Porter] 应答发送失败", zap.String("id", r.ID), zap.Error(sErr))
	}
	return true
}

// Server 后台一侧: 分发请求, 广播事件
type Server struct {
	channel string
	handler HandlerFunc

	mu    sync.RWMutex
	conns map[Conn]struct{}
}

func NewServer(channel string, handler HandlerFunc) *Server {
	return &Server{
		channel: channel,
		handler: handler,
		conns:   make(map[Conn]struct{}),
	}
}

// Serve reads requests from conn until it closes. Handlers run with ctx,
// not with the connection lifetime, so committed work finishes after a disconnect.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		env, err := conn.Recv()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}

		if env.Kind != KindRequest || env.Channel != s.channel || env.ID == "" {
			logger.Warn("[Porter] 丢弃非请求消息",
				zap.String("kind", string(env.Kind)),
				zap.String("channel", env.Channel),
			)
			continue
		}

		req := &Request{ID: env.ID, Payload: env.Payload, srv: s, conn: conn}
		go s.handle(ctx, req)
	}
}

// handle 处理器 panic 时以内部错误应答, 不拖垮整个后台进程
func (s *Server) handle(ctx context.Context, req *Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[Porter] 请求处理 panic", zap.String("id", req.ID), zap.Any("panic", rec), zap.Stack("stack"))
			if !req.replied.Load() {
				req.Fail(errno.InternalServerError)
			}
		}
	}()
	s.handler(ctx, req)
}

// Broadcast sends an event to every connected context. No acknowledgement.
func (s *Server) Broadcast(event any) {
	raw, err := json.Marshal(event)
	if err != nil {
		logger.Error("[Porter] 事件序列化失败", zap.Error(err))
		return
	}

	s.mu.RLock()
	conns := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	env := &Envelope{Channel: s.channel, Kind: KindEvent, Payload: raw}
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		if err := c.Send(ctx, env); err != nil {
			logger.Debug("[Porter] 广播发送失败", zap.Error(err))
		}
		cancel()
	}
}

// Connections returns the number of connected contexts.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
