package porter

import (
	"encoding/json"
	"errors"

	"wallet-signer/pkg/errno"
)

type Kind string

const (
	KindRequest Kind = "request"
	KindReply   Kind = "reply"
	KindEvent   Kind = "event"
)

// Envelope 通道上传输的唯一帧格式
//
//	request: {id, channel, payload}
//	reply:   {id, channel, payload | error}
//	event:   {channel, payload}
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// RemoteError is an error that crossed the channel. Code is an errno code;
// node errors additionally keep their JSON-RPC code and data verbatim.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	RPCCode int             `json:"rpcCode,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is lets callers match remote errors against errno values with errors.Is.
func (e *RemoteError) Is(target error) bool {
	switch t := target.(type) {
	case errno.Errno:
		return t.Code == e.Code
	case *errno.Errno:
		return t != nil && t.Code == e.Code
	}
	return false
}

// ToRemoteError 把本地错误转换为可序列化的错误
func ToRemoteError(err error) *RemoteError {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}

	var rpcErr *errno.RPCError
	if errors.As(err, &rpcErr) {
		return &RemoteError{
			Code:    errno.ErrRPC.Code,
			Message: rpcErr.Message,
			RPCCode: rpcErr.Code,
			Data:    rpcErr.Data,
		}
	}

	code, msg := errno.Decode(err)
	return &RemoteError{Code: code, Message: msg}
}
