package types

type AccountType string

const (
	AccountTypeHD         AccountType = "hd"
	AccountTypePrivateKey AccountType = "privateKey"
	AccountTypeHardware   AccountType = "hardware"
)

// Account 账户, UUID 是 vault 中的密钥引用
type Account struct {
	Address        string      `json:"address"`
	UUID           string      `json:"uuid"`
	Type           AccountType `json:"type"`
	Name           string      `json:"name"`
	DerivationPath string      `json:"derivationPath,omitempty"`
}

// AddAccountParams 新建账户参数
type AddAccountParams struct {
	Type           AccountType `json:"type"`
	Name           string      `json:"name,omitempty"`
	DerivationPath string      `json:"derivationPath,omitempty"` // hd / hardware
	PrivateKey     string      `json:"privateKey,omitempty"`     // privateKey 导入
	Address        string      `json:"address,omitempty"`        // hardware
	PublicKey      string      `json:"publicKey,omitempty"`      // hardware
}

type WalletStatus string

const (
	WalletStatusWelcome  WalletStatus = "WELCOME"
	WalletStatusLocked   WalletStatus = "LOCKED"
	WalletStatusUnlocked WalletStatus = "UNLOCKED"
)
