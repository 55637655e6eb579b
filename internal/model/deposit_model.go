package model

import (
	"time"
)

// DepositModel 存款人账本条目，余额恒为正，余额归零时删除
type DepositModel struct {
	Address   string    `json:"address" gorm:"primaryKey"`
	Amount    uint64    `json:"amount" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (DepositModel) TableName() string {
	return "deposit"
}
