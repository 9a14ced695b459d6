package approval

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"wallet-signer/internal/model"
	"wallet-signer/internal/service/activity"
	"wallet-signer/internal/service/rpc"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/monitor"
	"wallet-signer/pkg/wallet/types"
)

// 处理器依赖的协作方
type (
	AccountFinder interface {
		Find(ctx context.Context, address string) (types.Account, error)
	}
	Signer interface {
		Sign(ctx context.Context, keyRef string, digest []byte) ([]byte, error)
	}
	RPCSender interface {
		SendRpc(ctx context.Context, chainID uint64, method string, params ...interface{}) rpc.Response
	}
	NonceSaver interface {
		Save(ctx context.Context, chainID uint64, address string, nonce uint64) error
	}
	ActivityLog interface {
		Append(ctx context.Context, rec model.Activity) error
		RetryLater(rec model.Activity) error
	}
)

type Deps struct {
	Accounts AccountFinder
	Vault    Signer
	RPC      RPCSender
	Nonces   NonceSaver
	Log      ActivityLog
	// BlockTxSend 开发环境开关, 为 true 时在广播前拒绝
	BlockTxSend bool
}

// Processor 把用户决定变成一次性的结算结果: 校验, 签名, 广播, 记录, 应答
type Processor struct {
	store *Store
	deps  Deps
	now   func() time.Time
}

func NewProcessor(store *Store, deps Deps) *Processor {
	return &Processor{store: store, deps: deps, now: time.Now}
}

// Process settles activity id with the user's decision.
// The original caller is answered exactly once and the activity is resolved on every terminal path.
func (p *Processor) Process(ctx context.Context, id string, result types.ApprovalResult) error {
	pending, err := p.store.Claim(id)
	if err != nil {
		logger.Warn("[Approval] 活动不存在或已在处理", zap.String("id", id))
		return err
	}
	defer p.store.Resolve(id)

	if !result.Approved {
		p.settle(pending, Settlement{Err: errno.ErrDeclined}, "declined")
		return errno.ErrDeclined
	}

	v := &approveVisitor{p: p, ctx: ctx, result: result}
	if err := pending.Activity.Accept(v); err != nil {
		p.settle(pending, Settlement{Err: err}, outcomeOf(err))
		return err
	}

	p.settle(pending, Settlement{TxHash: v.txHash}, "submitted")
	return nil
}

func (p *Processor) settle(pending *Pending, s Settlement, outcome string) {
	monitor.Business.ApprovalsTotal.WithLabelValues(outcome).Inc()
	if !pending.Reply.Send(s) {
		return
	}

	fields := []zap.Field{zap.String("id", pending.Activity.ID), zap.String("outcome", outcome)}
	if s.Err != nil {
		logger.Info("[Approval] 活动已结算", append(fields, zap.Error(s.Err))...)
		return
	}
	logger.Info("[Approval] 活动已结算", append(fields, zap.String("tx_hash", s.TxHash))...)
}

func outcomeOf(err error) string {
	var rpcErr *errno.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return "rpc_rejected"
	case errors.Is(err, errno.ErrInvalidTransaction), errors.Is(err, errno.ErrMissingTransaction):
		return "invalid"
	default:
		return "failed"
	}
}

// approveVisitor 按活动类型处理已批准的活动
type approveVisitor struct {
	p      *Processor
	ctx    context.Context
	result types.ApprovalResult

	txHash string
}

func (v *approveVisitor) VisitTransaction(a *types.Activity, payload *types.TransactionPayload) error {
	return v.p.approveTransaction(v.ctx, a, payload, v.result, &v.txHash)
}

func (p *Processor) approveTransaction(ctx context.Context, a *types.Activity, payload *types.TransactionPayload, result types.ApprovalResult, txHash *string) error {
	raw, preSigned := result.RawTx, false
	switch {
	case result.RawTx == "" && result.SignedRawTx == "":
		return errno.ErrMissingTransaction
	case result.RawTx != "" && result.SignedRawTx != "":
		return errno.ErrInvalidTransaction.WithMessage("Invalid transaction: rawTx and signedRawTx are mutually exclusive")
	case result.SignedRawTx != "":
		raw, preSigned = result.SignedRawTx, true
	}

	rawBytes, err := decodeHex(raw)
	if err != nil {
		return err
	}
	unsigned, chainID, err := decodeUnsigned(rawBytes)
	if err != nil {
		return err
	}
	if err := checkTamper(&payload.TxParams, unsigned, chainID); err != nil {
		logger.Warn("[Approval] 交易与请求不一致, 拒绝签名",
			zap.String("id", a.ID),
			zap.String("account", payload.AccountAddress),
			zap.Error(err),
		)
		return err
	}

	// 签名开始后不再响应取消, 广播与记录必须跑完
	ctx = context.WithoutCancel(ctx)

	var signedRaw []byte
	if preSigned {
		signedRaw = rawBytes
	} else {
		signedRaw, err = p.sign(ctx, payload, unsigned, chainID)
		if err != nil {
			return err
		}
	}
	unsignedRaw, err := unsigned.MarshalBinary()
	if err != nil {
		return err
	}

	if p.deps.BlockTxSend {
		logger.Warn("[Approval] 开发环境已禁止广播交易", zap.String("id", a.ID))
		return errno.ErrTxSendBlocked
	}

	resp := p.deps.RPC.SendRpc(ctx, payload.ChainID, "eth_sendRawTransaction", hexutil.Encode(signedRaw))
	if resp.Error != nil {
		monitor.Business.RPCErrorsTotal.WithLabelValues(strconv.FormatUint(payload.ChainID, 10)).Inc()
		return resp.Error
	}
	*txHash = resultHash(resp.Result, signedRaw)

	rec, err := activity.NewRecord(a, payload, hexutil.Encode(unsignedRaw), *txHash, unsigned.Value(), p.now())
	if err != nil {
		logger.Error("[Approval] 构造活动记录失败", zap.String("id", a.ID), zap.Error(err))
	}
	p.persist(ctx, payload, unsigned.Nonce(), rec, err == nil)
	return nil
}

// sign 取得账户的密钥引用, 对签名哈希签名并序列化完整交易
func (p *Processor) sign(ctx context.Context, payload *types.TransactionPayload, unsigned *ethtypes.Transaction, chainID *big.Int) ([]byte, error) {
	account, err := p.deps.Accounts.Find(ctx, payload.AccountAddress)
	if err != nil {
		return nil, err
	}

	signer := ethtypes.LatestSignerForChainID(chainID)
	hash := signer.Hash(unsigned)

	start := time.Now()
	sig, err := p.deps.Vault.Sign(ctx, account.UUID, hash[:])
	monitor.Business.SignDuration.WithLabelValues(string(account.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	signed, err := unsigned.WithSignature(signer, sig)
	if err != nil {
		return nil, errno.ErrInvalidTransaction.WithMessage("Invalid transaction: " + err.Error())
	}
	return signed.MarshalBinary()
}

// persist 并发推进 nonce 与写入活动记录, 二者失败都不影响已广播的结果
func (p *Processor) persist(ctx context.Context, payload *types.TransactionPayload, nonce uint64, rec model.Activity, haveRecord bool) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.deps.Nonces.Save(ctx, payload.ChainID, payload.AccountAddress, nonce); err != nil {
			logger.Error("[Approval] 保存 nonce 失败",
				zap.Uint64("chain_id", payload.ChainID),
				zap.String("address", payload.AccountAddress),
				zap.Uint64("nonce", nonce),
				zap.Error(err),
			)
		}
	}()

	if haveRecord {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.deps.Log.Append(ctx, rec); err != nil {
				monitor.Business.ActivityLogErrors.Inc()
				logger.Error("[Approval] 写入活动记录失败", zap.String("id", rec.ID), zap.Error(err))
				if err := p.deps.Log.RetryLater(rec); err != nil {
					logger.Warn("[Approval] 活动记录无法加入补写队列", zap.String("id", rec.ID), zap.Error(err))
				}
			}
		}()
	}

	wg.Wait()
}

// resultHash 优先使用节点返回的哈希
func resultHash(result json.RawMessage, signedRaw []byte) string {
	var hash string
	if err := json.Unmarshal(result, &hash); err == nil && hash != "" {
		return hash
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(signedRaw); err != nil {
		return ""
	}
	return tx.Hash().Hex()
}
