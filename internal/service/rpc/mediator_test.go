package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode 按 method 返回预设的 result 或 error
func fakeNode(t *testing.T, replies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		body, ok := replies[req.Method]
		if !ok {
			body = `"error":{"code":-32601,"message":"method not found"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,` + body + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendRpc(t *testing.T) {
	node := fakeNode(t, map[string]string{
		"eth_sendRawTransaction": `"result":"0xabc"`,
		"eth_call":               `"error":{"code":3,"message":"execution reverted","data":"0x08c379a0"}`,
	})
	m := NewMediator(map[uint64]string{1: node.URL})
	defer m.Close()

	tests := []struct {
		name     string
		chainID  uint64
		method   string
		result   string
		wantCode int
		wantMsg  string
		wantData string
	}{
		{name: "success", chainID: 1, method: "eth_sendRawTransaction", result: `"0xabc"`},
		{name: "node error with data", chainID: 1, method: "eth_call", wantCode: 3, wantMsg: "execution reverted", wantData: `"0x08c379a0"`},
		{name: "unknown method", chainID: 1, method: "eth_nope", wantCode: -32601, wantMsg: "method not found"},
		{name: "unknown chain", chainID: 5, method: "eth_sendRawTransaction", wantCode: CodeServerError, wantMsg: "unsupported chain 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := m.SendRpc(context.Background(), tt.chainID, tt.method, "0x01")
			if tt.wantCode == 0 {
				require.Nil(t, resp.Error)
				assert.JSONEq(t, tt.result, string(resp.Result))
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, string(resp.Error.Data))
			}
		})
	}
}

func TestSendRpcTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewMediator(map[uint64]string{1: srv.URL})
	defer m.Close()

	resp := m.SendRpc(context.Background(), 1, "eth_sendRawTransaction", "0x01")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}
