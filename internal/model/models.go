package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wallet-signer/pkg/wallet/types"
)

// Account 账户表, 主键为 EIP-55 地址
type Account struct {
	Address        string    `gorm:"primaryKey;type:varchar(42)" json:"address"`
	UUID           string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	Type           string    `gorm:"type:varchar(20);not null" json:"type"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	DerivationPath string    `gorm:"type:varchar(64)" json:"derivation_path"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a Account) RecordID() string { return a.Address }

func (a Account) ToDomain() types.Account {
	return types.Account{
		Address:        a.Address,
		UUID:           a.UUID,
		Type:           types.AccountType(a.Type),
		Name:           a.Name,
		DerivationPath: a.DerivationPath,
	}
}

func AccountFromDomain(acc types.Account) Account {
	return Account{
		Address:        acc.Address,
		UUID:           acc.UUID,
		Type:           string(acc.Type),
		Name:           acc.Name,
		DerivationPath: acc.DerivationPath,
	}
}

// Activity 已结算的活动记录 (只追加)
type Activity struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type           string          `gorm:"type:varchar(32);not null" json:"type"`
	Source         string          `gorm:"type:varchar(255)" json:"source"`
	ChainID        uint64          `gorm:"not null;index:idx_activity_account" json:"chain_id"`
	AccountAddress string          `gorm:"type:varchar(42);not null;index:idx_activity_account" json:"account_address"`
	TxParams       types.TxParams  `gorm:"serializer:json;type:jsonb" json:"tx_params"`
	RawTx          string          `gorm:"type:text" json:"raw_tx"`
	TxHash         string          `gorm:"type:varchar(66);index" json:"tx_hash"`
	Value          decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"value"` // wei
	ParamsDigest   string          `gorm:"type:varchar(64)" json:"params_digest"`
	TimeAt         time.Time       `json:"time_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (Activity) TableName() string {
	return "activities"
}

func (a Activity) RecordID() string { return a.ID }

// Nonce 每条链、每个地址最后一次成功广播的 nonce
type Nonce struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ChainID   uint64    `gorm:"not null" json:"chain_id"`
	Address   string    `gorm:"type:varchar(42);not null" json:"address"`
	Nonce     uint64    `gorm:"not null" json:"nonce"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Nonce) TableName() string {
	return "nonces"
}

func (n Nonce) RecordID() string { return n.ID }

// NonceID 组合主键 "<chainId>:<address>"
func NonceID(chainID uint64, address string) string {
	return fmt.Sprintf("%d:%s", chainID, address)
}
