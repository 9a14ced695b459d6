package porter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"wallet-signer/pkg/logger"
)

var ErrClosed = errors.New("porter: connection closed")

// Conn is one side of a transport between two contexts.
// Send must be safe for concurrent use; Recv is called from a single goroutine.
type Conn interface {
	Send(ctx context.Context, env *Envelope) error
	// Recv blocks until a frame arrives. It returns ErrClosed once either side closed.
	Recv() (*Envelope, error)
	Close() error
}

type pipeConn struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory conns. Frames are JSON-encoded so the
// two sides never share values. Closing either end disconnects both.
func Pipe() (Conn, Conn) {
	a2b := make(chan []byte, 64)
	b2a := make(chan []byte, 64)
	done := make(chan struct{})
	once := new(sync.Once)

	a := &pipeConn{in: b2a, out: a2b, done: done, once: once}
	b := &pipeConn{in: a2b, out: b2a, done: done, once: once}
	return a, b
}

func (p *pipeConn) Send(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.out <- data:
		return nil
	}
}

func (p *pipeConn) Recv() (*Envelope, error) {
	for {
		select {
		case <-p.done:
			return nil, ErrClosed
		case data := <-p.in:
			if env, ok := decodeFrame(data); ok {
				return env, nil
			}
		}
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// decodeFrame drops frames that are not valid envelopes.
func decodeFrame(data []byte) (*Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("[Porter] 丢弃无法解析的消息帧", zap.Error(err), zap.Int("size", len(data)))
		return nil, false
	}
	return &env, true
}
