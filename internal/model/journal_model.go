package model

import (
	"time"
)

// JournalEntryModel 账本流水，只追加不修改
type JournalEntryModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Kind    JournalKind `json:"kind" gorm:"not null;index"`
	Address string      `json:"address" gorm:"not null;index"`
	Amount  uint64      `json:"amount" gorm:"not null"`
	AssetId uint64      `json:"asset_id" gorm:"default:0"`
	Balance uint64      `json:"balance"` // 操作后的存款余额
}

// JournalKind 流水类型
type JournalKind string

const (
	JournalKindInitialize JournalKind = "initialize" // 项目初始化
	JournalKindDeposit    JournalKind = "deposit"    // 存入
	JournalKindWithdraw   JournalKind = "withdraw"   // 取出
	JournalKindClaim      JournalKind = "claim"      // 领取代币
)

// Valid 是否为已知的流水类型
func (k JournalKind) Valid() bool {
	switch k {
	case JournalKindInitialize, JournalKindDeposit, JournalKindWithdraw, JournalKindClaim:
		return true
	}
	return false
}

// TableName 自定义表名
func (JournalEntryModel) TableName() string {
	return "journal_entry"
}
