package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-signer/internal/porter"
	"wallet-signer/internal/service/account"
	"wallet-signer/internal/service/approval"
	"wallet-signer/internal/vault"
	"wallet-signer/pkg/bip39"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/wallet/types"
)

// Broadcaster 向所有前台连接广播事件 (porter.Server)
type Broadcaster interface {
	Broadcast(event any)
}

// Background 后台上下文: 持有 vault / 注册表 / 审批状态, 处理前台发来的请求
type Background struct {
	vault     *vault.Vault
	accounts  *account.Registry
	store     *approval.Store
	processor *approval.Processor
}

func NewBackground(v *vault.Vault, accounts *account.Registry, store *approval.Store, processor *approval.Processor) *Background {
	return &Background{
		vault:     v,
		accounts:  accounts,
		store:     store,
		processor: processor,
	}
}

// Handle is the porter.HandlerFunc of the background context.
func (b *Background) Handle(ctx context.Context, req *porter.Request) {
	var msg types.Request
	if err := req.Decode(&msg); err != nil {
		req.Fail(errno.ErrBind.WithMessage(err.Error()))
		return
	}

	resp, err := b.dispatch(ctx, &msg)
	if err != nil {
		logger.Debug("[Background] 请求失败", zap.String("type", string(msg.Type)), zap.Error(err))
		req.Fail(err)
		return
	}
	resp.Type = msg.Type
	req.Reply(resp)
}

func (b *Background) dispatch(ctx context.Context, msg *types.Request) (*types.Response, error) {
	switch msg.Type {
	case types.MsgGetWalletStatus:
		return &types.Response{Status: b.vault.Status()}, nil

	case types.MsgSetupWallet:
		return b.setup(ctx, msg)

	case types.MsgUnlockWallet:
		if err := b.vault.Unlock(msg.Password); err != nil {
			return nil, err
		}
		return &types.Response{Status: b.vault.Status()}, nil

	case types.MsgLockWallet:
		b.vault.Lock()
		return &types.Response{Status: b.vault.Status()}, nil

	case types.MsgAddAccount:
		if msg.AccountParams == nil {
			return nil, errno.ErrBind.WithMessage("accountParams required")
		}
		acc, err := b.addAccount(ctx, *msg.AccountParams)
		if err != nil {
			return nil, err
		}
		return &types.Response{Account: &acc}, nil

	case types.MsgDeleteAccount:
		return b.deleteAccount(ctx, msg.Password, msg.Address)

	case types.MsgGetAccounts:
		accounts, err := b.accounts.List(ctx)
		if err != nil {
			return nil, err
		}
		return &types.Response{Accounts: accounts}, nil

	case types.MsgGetPublicKey:
		acc, err := b.accounts.Find(ctx, msg.Address)
		if err != nil {
			return nil, err
		}
		pub, err := b.vault.PublicKey(acc.UUID)
		if err != nil {
			return nil, err
		}
		return &types.Response{PublicKey: pub}, nil

	case types.MsgSendTransaction:
		return b.sendTransaction(ctx, msg)

	case types.MsgGetApprovals:
		return &types.Response{Approvals: b.store.List()}, nil

	case types.MsgApprove:
		if msg.Result == nil {
			return nil, errno.ErrBind.WithMessage("result required")
		}
		if err := b.processor.Process(ctx, msg.ApprovalID, *msg.Result); err != nil {
			return nil, err
		}
		return &types.Response{}, nil

	default:
		return nil, errno.ErrBind.WithMessage(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// setup 初始化钱包并创建第一个账户; 未提供助记词时生成 12 词助记词
func (b *Background) setup(ctx context.Context, msg *types.Request) (*types.Response, error) {
	mnemonic := msg.SeedPhrase
	if mnemonic == "" {
		var err error
		if mnemonic, err = bip39.Generate(128); err != nil {
			return nil, err
		}
	}
	if err := b.vault.Setup(msg.Password, mnemonic); err != nil {
		return nil, err
	}

	params := types.AddAccountParams{Type: types.AccountTypeHD}
	if msg.AccountParams != nil {
		params = *msg.AccountParams
	}
	acc, err := b.addAccount(ctx, params)
	if err != nil {
		return nil, err
	}
	return &types.Response{Status: b.vault.Status(), Account: &acc}, nil
}

func (b *Background) addAccount(ctx context.Context, params types.AddAccountParams) (types.Account, error) {
	info, err := b.vault.AddKey(params)
	if err != nil {
		return types.Account{}, err
	}

	acc, err := b.accounts.Add(ctx, types.Account{
		Address:        info.Address,
		UUID:           info.UUID,
		Type:           info.Type,
		Name:           params.Name,
		DerivationPath: info.DerivationPath,
	})
	if err != nil {
		logger.Error("[Background] 账户注册失败, vault 中保留孤立密钥",
			zap.String("uuid", info.UUID),
			zap.String("address", info.Address),
			zap.Error(err),
		)
		return types.Account{}, err
	}
	return acc, nil
}

func (b *Background) deleteAccount(ctx context.Context, password, address string) (*types.Response, error) {
	acc, err := b.accounts.Find(ctx, address)
	if err != nil {
		return nil, err
	}
	if err := b.vault.DeleteKey(password, acc.UUID); err != nil {
		return nil, err
	}
	deleted, err := b.accounts.Delete(ctx, acc.Address)
	if err != nil {
		return nil, err
	}
	return &types.Response{Account: &deleted}, nil
}

// sendTransaction 入队待审批活动, 阻塞到审批结算后才应答
func (b *Background) sendTransaction(ctx context.Context, msg *types.Request) (*types.Response, error) {
	if msg.ChainID == 0 {
		return nil, errno.ErrBind.WithMessage("chainId required")
	}
	acc, err := b.accounts.Find(ctx, msg.AccountAddress)
	if err != nil {
		return nil, err
	}

	var params types.TxParams
	if msg.TxParams != nil {
		params = *msg.TxParams
	}
	activity := &types.Activity{
		ID:        uuid.NewString(),
		Source:    msg.Source,
		CreatedAt: time.Now(),
		Payload: &types.TransactionPayload{
			ChainID:        msg.ChainID,
			AccountAddress: acc.Address,
			TxParams:       params,
		},
	}

	settled, err := b.store.Submit(activity)
	if err != nil {
		return nil, err
	}

	select {
	case s := <-settled:
		if s.Err != nil {
			return nil, s.Err
		}
		return &types.Response{TxHash: s.TxHash}, nil
	case <-ctx.Done():
		b.store.Resolve(activity.ID)
		return nil, errno.ErrDisconnected
	}
}

// ForwardEvents 把 vault 状态变化和待审批列表变化广播给前台, 阻塞直到 ctx 结束
func (b *Background) ForwardEvents(ctx context.Context, bc Broadcaster) error {
	statuses := make(chan types.WalletStatus, 8)
	statusSub := b.vault.SubscribeStatus(statuses)
	defer statusSub.Unsubscribe()

	approvals := make(chan []*types.Activity, 8)
	approvalSub := b.store.SubscribeUpdates(approvals)
	defer approvalSub.Unsubscribe()

	for {
		select {
		case status := <-statuses:
			bc.Broadcast(types.Event{Type: types.MsgWalletStatusUpdated, Status: status})
		case list := <-approvals:
			bc.Broadcast(types.Event{Type: types.MsgApprovalsUpdated, Approvals: list})
		case err := <-statusSub.Err():
			return err
		case err := <-approvalSub.Err():
			return err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
