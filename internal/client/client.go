package client

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wallet-signer/internal/porter"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/wallet/types"
)

// Client 前台对后台消息的类型化封装
type Client struct {
	porter *porter.Client
}

func New(p *porter.Client) *Client {
	return &Client{porter: p}
}

// request 发送请求并断言应答类型与请求一致; 不一致属于协议错误, 直接 panic
func (c *Client) request(ctx context.Context, req types.Request) (*types.Response, error) {
	var resp types.Response
	if err := c.porter.Request(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.Type != req.Type {
		panic(fmt.Sprintf("wallet client: response type %q does not match request type %q", resp.Type, req.Type))
	}
	return &resp, nil
}

func (c *Client) GetWalletStatus(ctx context.Context) (types.WalletStatus, error) {
	resp, err := c.request(ctx, types.Request{Type: types.MsgGetWalletStatus})
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// SetupWallet 初始化钱包; seedPhrase 为空时由后台生成
func (c *Client) SetupWallet(ctx context.Context, password, seedPhrase string, params *types.AddAccountParams) (types.Account, error) {
	resp, err := c.request(ctx, types.Request{
		Type:          types.MsgSetupWallet,
		Password:      password,
		SeedPhrase:    seedPhrase,
		AccountParams: params,
	})
	if err != nil {
		return types.Account{}, err
	}
	return derefAccount(resp.Account), nil
}

func (c *Client) UnlockWallet(ctx context.Context, password string) error {
	_, err := c.request(ctx, types.Request{Type: types.MsgUnlockWallet, Password: password})
	return err
}

func (c *Client) LockWallet(ctx context.Context) error {
	_, err := c.request(ctx, types.Request{Type: types.MsgLockWallet})
	return err
}

func (c *Client) AddAccount(ctx context.Context, params types.AddAccountParams) (types.Account, error) {
	resp, err := c.request(ctx, types.Request{Type: types.MsgAddAccount, AccountParams: &params})
	if err != nil {
		return types.Account{}, err
	}
	return derefAccount(resp.Account), nil
}

func (c *Client) DeleteAccount(ctx context.Context, password, address string) error {
	_, err := c.request(ctx, types.Request{Type: types.MsgDeleteAccount, Password: password, Address: address})
	return err
}

func (c *Client) GetAccounts(ctx context.Context) ([]types.Account, error) {
	resp, err := c.request(ctx, types.Request{Type: types.MsgGetAccounts})
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *Client) GetPublicKey(ctx context.Context, address string) (string, error) {
	resp, err := c.request(ctx, types.Request{Type: types.MsgGetPublicKey, Address: address})
	if err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

// SendTransaction 提交交易请求, 阻塞到用户审批并广播后返回交易哈希。
// 审批可能需要很久, 调用方应传入合适的 ctx deadline。
func (c *Client) SendTransaction(ctx context.Context, chainID uint64, accountAddress string, params types.TxParams, source string) (string, error) {
	resp, err := c.request(ctx, types.Request{
		Type:           types.MsgSendTransaction,
		ChainID:        chainID,
		AccountAddress: accountAddress,
		TxParams:       &params,
		Source:         source,
	})
	if err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

func (c *Client) GetApprovals(ctx context.Context) ([]*types.Activity, error) {
	resp, err := c.request(ctx, types.Request{Type: types.MsgGetApprovals})
	if err != nil {
		return nil, err
	}
	return resp.Approvals, nil
}

func (c *Client) Approve(ctx context.Context, approvalID string, result types.ApprovalResult) error {
	_, err := c.request(ctx, types.Request{Type: types.MsgApprove, ApprovalID: approvalID, Result: &result})
	return err
}

// OnWalletStatusUpdated 订阅钱包状态广播, 返回取消订阅函数
func (c *Client) OnWalletStatusUpdated(fn func(types.WalletStatus)) func() {
	return c.onEvent(types.MsgWalletStatusUpdated, func(ev *types.Event) { fn(ev.Status) })
}

// OnApprovalsUpdated 订阅待审批列表广播
func (c *Client) OnApprovalsUpdated(fn func([]*types.Activity)) func() {
	return c.onEvent(types.MsgApprovalsUpdated, func(ev *types.Event) { fn(ev.Approvals) })
}

func (c *Client) onEvent(typ types.MessageType, fn func(*types.Event)) func() {
	return c.porter.OnMessage(func(payload json.RawMessage) {
		var ev types.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Warn("[Client] 无法解析广播事件", zap.Error(err))
			return
		}
		if ev.Type == typ {
			fn(&ev)
		}
	})
}

// Done is closed when the connection to the background is gone.
func (c *Client) Done() <-chan struct{} {
	return c.porter.Done()
}

func (c *Client) Close() error {
	return c.porter.Close()
}

func derefAccount(acc *types.Account) types.Account {
	if acc == nil {
		return types.Account{}
	}
	return *acc
}
