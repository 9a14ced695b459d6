package types

// MessageType 前后台消息类型标签
type MessageType string

const (
	MsgGetWalletStatus     MessageType = "GET_WALLET_STATUS"
	MsgWalletStatusUpdated MessageType = "WALLET_STATUS_UPDATED"
	MsgSetupWallet         MessageType = "SETUP_WALLET"
	MsgUnlockWallet        MessageType = "UNLOCK_WALLET"
	MsgLockWallet          MessageType = "LOCK_WALLET"
	MsgAddAccount          MessageType = "ADD_ACCOUNT"
	MsgDeleteAccount       MessageType = "DELETE_ACCOUNT"
	MsgGetAccounts         MessageType = "GET_ACCOUNTS"
	MsgGetPublicKey        MessageType = "GET_PUBLIC_KEY"
	MsgSendTransaction     MessageType = "SEND_TRANSACTION"
	MsgGetApprovals        MessageType = "GET_APPROVALS"
	MsgApprovalsUpdated    MessageType = "APPROVALS_UPDATED"
	MsgApprove             MessageType = "APPROVE"
)

// Request 前台发往后台的请求, 按 Type 使用对应字段
type Request struct {
	Type MessageType `json:"type"`

	Password      string            `json:"password,omitempty"`
	SeedPhrase    string            `json:"seedPhrase,omitempty"`
	AccountParams *AddAccountParams `json:"accountParams,omitempty"`
	Address       string            `json:"address,omitempty"`

	ChainID        uint64    `json:"chainId,omitempty"`
	AccountAddress string    `json:"accountAddress,omitempty"`
	TxParams       *TxParams `json:"txParams,omitempty"`
	Source         string    `json:"source,omitempty"`

	ApprovalID string          `json:"approvalId,omitempty"`
	Result     *ApprovalResult `json:"result,omitempty"`
}

// Response 后台应答, Type 必须与请求一致
type Response struct {
	Type MessageType `json:"type"`

	Status    WalletStatus `json:"status,omitempty"`
	Account   *Account     `json:"account,omitempty"`
	Accounts  []Account    `json:"accounts,omitempty"`
	PublicKey string       `json:"publicKey,omitempty"`
	TxHash    string       `json:"txHash,omitempty"`
	Approvals []*Activity  `json:"approvals,omitempty"`
}

// Event 广播事件, 无需应答
type Event struct {
	Type      MessageType  `json:"type"`
	Status    WalletStatus `json:"status,omitempty"`
	Approvals []*Activity  `json:"approvals,omitempty"`
}

// PorterChannel 前后台通信使用的通道名
const PorterChannel = "wallet-background"
