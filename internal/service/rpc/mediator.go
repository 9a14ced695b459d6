package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
)

// JSON-RPC 标准错误码
const (
	CodeInternalError = -32603
	CodeServerError   = -32000
)

// Response 节点应答信封: Result 与 Error 二选一
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errno.RPCError `json:"error,omitempty"`
}

// Mediator 按 chainId 把 JSON-RPC 调用转发给对应节点, 不做重试
type Mediator struct {
	endpoints map[uint64]string

	mu      sync.Mutex
	clients map[uint64]*gethrpc.Client
}

func NewMediator(endpoints map[uint64]string) *Mediator {
	return &Mediator{
		endpoints: endpoints,
		clients:   make(map[uint64]*gethrpc.Client),
	}
}

// SendRpc calls method on the node of chainID. Failures come back as an error envelope.
func (m *Mediator) SendRpc(ctx context.Context, chainID uint64, method string, params ...interface{}) Response {
	client, err := m.client(ctx, chainID)
	if err != nil {
		logger.Warn("[RPC] 无可用节点", zap.Uint64("chain_id", chainID), zap.Error(err))
		return Response{Error: &errno.RPCError{Code: CodeServerError, Message: err.Error()}}
	}

	var result json.RawMessage
	if err := client.CallContext(ctx, &result, method, params...); err != nil {
		rpcErr := toRPCError(err)
		logger.Warn("[RPC] 调用失败",
			zap.Uint64("chain_id", chainID),
			zap.String("method", method),
			zap.Int("code", rpcErr.Code),
			zap.String("message", rpcErr.Message),
		)
		return Response{Error: rpcErr}
	}
	return Response{Result: result}
}

func (m *Mediator) client(ctx context.Context, chainID uint64) (*gethrpc.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[chainID]; ok {
		return c, nil
	}
	url, ok := m.endpoints[chainID]
	if !ok || url == "" {
		return nil, fmt.Errorf("unsupported chain %d", chainID)
	}

	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	m.clients[chainID] = c
	logger.Info("[RPC] 已连接节点", zap.Uint64("chain_id", chainID))
	return c, nil
}

// Close 关闭所有已建立的节点连接
func (m *Mediator) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		c.Close()
		delete(m.clients, id)
	}
}

// toRPCError 节点返回的 code/message/data 原样保留, 其余错误归为 internal error
func toRPCError(err error) *errno.RPCError {
	var jsonErr gethrpc.Error
	if errors.As(err, &jsonErr) {
		out := &errno.RPCError{Code: jsonErr.ErrorCode(), Message: jsonErr.Error()}
		var dataErr gethrpc.DataError
		if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
			if data, mErr := json.Marshal(dataErr.ErrorData()); mErr == nil {
				out.Data = data
			}
		}
		return out
	}
	return &errno.RPCError{Code: CodeInternalError, Message: err.Error()}
}
