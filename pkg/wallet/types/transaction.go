package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TxParams 是 dApp 请求的语义交易 (eth_sendTransaction 参数)。
// 指针字段为 nil 表示请求中未指定该字段。
type TxParams struct {
	From                 *common.Address      `json:"from,omitempty"`
	To                   *common.Address      `json:"to,omitempty"`
	Data                 *hexutil.Bytes       `json:"data,omitempty"`
	Value                *hexutil.Big         `json:"value,omitempty"`
	ChainID              *hexutil.Big         `json:"chainId,omitempty"`
	Type                 *hexutil.Uint64      `json:"type,omitempty"`
	AccessList           *ethtypes.AccessList `json:"accessList,omitempty"`
	Nonce                *hexutil.Uint64      `json:"nonce,omitempty"`
	Gas                  *hexutil.Uint64      `json:"gas,omitempty"`
	GasPrice             *hexutil.Big         `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big         `json:"maxPriorityFeePerGas,omitempty"`
}

// ApprovalResult is the user's decision on a pending activity.
// When Approved, exactly one of RawTx (unsigned) or SignedRawTx (externally signed) is expected.
type ApprovalResult struct {
	Approved    bool   `json:"approved"`
	RawTx       string `json:"rawTx,omitempty"`
	SignedRawTx string `json:"signedRawTx,omitempty"`
}
