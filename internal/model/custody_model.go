package model

import (
	"time"
)

// CustodyAccountModel 托管账户可用余额
type CustodyAccountModel struct {
	Address   string    `json:"address" gorm:"primaryKey"`
	Liquidity uint64    `json:"liquidity" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (CustodyAccountModel) TableName() string {
	return "custody_account"
}

// AssetModel 托管账户创建的同质化代币
type AssetModel struct {
	Id        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`

	Creator  string `json:"creator" gorm:"not null"` // 创建资产的托管账户
	Total    uint64 `json:"total" gorm:"not null"`
	Decimals uint32 `json:"decimals" gorm:"not null"`
	UnitName string `json:"unit_name"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Manager  string `json:"manager"`
	Reserve  string `json:"reserve"`
	Freeze   string `json:"freeze"`
	Clawback string `json:"clawback"`
}

// TableName 自定义表名
func (AssetModel) TableName() string {
	return "asset"
}

// AssetHoldingModel 地址持有的代币数量
type AssetHoldingModel struct {
	AssetId   uint64    `json:"asset_id" gorm:"primaryKey;autoIncrement:false"`
	Address   string    `json:"address" gorm:"primaryKey"`
	Amount    uint64    `json:"amount" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (AssetHoldingModel) TableName() string {
	return "asset_holding"
}

// CustodyPaymentModel 托管账户收付款记录
type CustodyPaymentModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at"`

	Direction PaymentDirection `json:"direction" gorm:"not null;index"`
	Sender    string           `json:"sender" gorm:"not null"`
	Receiver  string           `json:"receiver" gorm:"not null"`
	Amount    uint64           `json:"amount" gorm:"not null"`
	Fee       uint64           `json:"fee" gorm:"default:0"`

	Status    PaymentStatus `json:"status" gorm:"not null;index"`
	TxHash    string        `json:"tx_hash"` // 链上结算交易哈希，未结算时为空
	Attempts  int           `json:"attempts" gorm:"default:0"`
	LastError string        `json:"last_error"`
	SettledAt *time.Time    `json:"settled_at"`
}

// PaymentDirection 资金方向
type PaymentDirection string

const (
	PaymentDirectionIn  PaymentDirection = "in"  // 收款
	PaymentDirectionOut PaymentDirection = "out" // 付款
)

// PaymentStatus 结算状态
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // 已记账，等待链上结算
	PaymentStatusSettled PaymentStatus = "settled"
)

// TableName 自定义表名
func (CustodyPaymentModel) TableName() string {
	return "custody_payment"
}
