package approval

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/wallet/types"
)

// homesteadTx 无 chainId 的 pre-EIP-155 未签名交易 (6 字段)
type homesteadTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
}

func decodeHex(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	b, err := hexutil.Decode(raw)
	if err != nil {
		return nil, errno.ErrInvalidTransaction.WithMessage("Invalid transaction: malformed hex")
	}
	return b, nil
}

// decodeUnsigned 解析交易字节并丢弃其中已有的签名字段, 返回未签名交易及其 chainId (可能为 nil)
func decodeUnsigned(raw []byte) (*ethtypes.Transaction, *big.Int, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		var legacy homesteadTx
		if len(raw) == 0 || raw[0] < 0xc0 || rlp.DecodeBytes(raw, &legacy) != nil {
			return nil, nil, errno.ErrInvalidTransaction.WithMessage("Invalid transaction: " + err.Error())
		}
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    legacy.Nonce,
			GasPrice: legacy.GasPrice,
			Gas:      legacy.Gas,
			To:       legacy.To,
			Value:    legacy.Value,
			Data:     legacy.Data,
		}), nil, nil
	}

	switch tx.Type() {
	case ethtypes.LegacyTxType:
		chainID := legacyChainID(tx)
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    tx.Nonce(),
			GasPrice: tx.GasPrice(),
			Gas:      tx.Gas(),
			To:       tx.To(),
			Value:    tx.Value(),
			Data:     tx.Data(),
		}), chainID, nil
	case ethtypes.AccessListTxType:
		return ethtypes.NewTx(&ethtypes.AccessListTx{
			ChainID:    tx.ChainId(),
			Nonce:      tx.Nonce(),
			GasPrice:   tx.GasPrice(),
			Gas:        tx.Gas(),
			To:         tx.To(),
			Value:      tx.Value(),
			Data:       tx.Data(),
			AccessList: tx.AccessList(),
		}), tx.ChainId(), nil
	case ethtypes.DynamicFeeTxType:
		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:    tx.ChainId(),
			Nonce:      tx.Nonce(),
			GasTipCap:  tx.GasTipCap(),
			GasFeeCap:  tx.GasFeeCap(),
			Gas:        tx.Gas(),
			To:         tx.To(),
			Value:      tx.Value(),
			Data:       tx.Data(),
			AccessList: tx.AccessList(),
		}), tx.ChainId(), nil
	default:
		return nil, nil, errno.ErrInvalidTransaction.WithMessage(fmt.Sprintf("Invalid transaction: unsupported type %d", tx.Type()))
	}
}

// legacyChainID: 未签名的 EIP-155 编码中 v 即 chainId, r = s = 0
func legacyChainID(tx *ethtypes.Transaction) *big.Int {
	v, r, s := tx.RawSignatureValues()
	if r.Sign() == 0 && s.Sign() == 0 {
		if v.Sign() == 0 {
			return nil
		}
		return new(big.Int).Set(v)
	}
	if id := tx.ChainId(); id != nil && id.Sign() != 0 {
		return id
	}
	return nil
}

// checkTamper 比较请求中指定过的关键字段与待签名交易, 未指定的字段不检查
func checkTamper(req *types.TxParams, tx *ethtypes.Transaction, chainID *big.Int) error {
	if req.To != nil {
		if tx.To() == nil || *tx.To() != *req.To {
			return mismatch("to")
		}
	}
	if req.Data != nil && !bytes.Equal(*req.Data, tx.Data()) {
		return mismatch("data")
	}
	if req.AccessList != nil && !sameAccessList(*req.AccessList, tx.AccessList()) {
		return mismatch("accessList")
	}
	if req.Type != nil && uint64(*req.Type) != uint64(tx.Type()) {
		return mismatch("type")
	}
	if req.ChainID != nil && !sameBig(req.ChainID.ToInt(), chainID) {
		return mismatch("chainId")
	}
	if req.Value != nil && !sameBig(req.Value.ToInt(), tx.Value()) {
		return mismatch("value")
	}
	return nil
}

func mismatch(field string) error {
	return errno.ErrInvalidTransaction.WithMessage("Invalid transaction: " + field + " does not match the request")
}

// nil 视为 0
func sameBig(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}

// nil 与空列表等价
func sameAccessList(a, b ethtypes.AccessList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Address != b[i].Address || len(a[i].StorageKeys) != len(b[i].StorageKeys) {
			return false
		}
		for j := range a[i].StorageKeys {
			if a[i].StorageKeys[j] != b[i].StorageKeys[j] {
				return false
			}
		}
	}
	return true
}
