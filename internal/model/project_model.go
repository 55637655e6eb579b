package model

import (
	"time"
)

// ProjectID 单例项目记录的主键
const ProjectID int64 = 1

// ProjectModel 储蓄项目（每个部署唯一一条记录）
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Name        string `json:"name"`
	Description string `json:"description" gorm:"type:text"`

	// 状态，只会从 Uninitialized 变为 Active 一次
	State ProjectState `json:"state" gorm:"not null;default:0"`

	// 资金信息
	GoalAmount     uint64 `json:"goal_amount" gorm:"not null;default:0"`
	TotalDeposited uint64 `json:"total_deposited" gorm:"not null;default:0"`

	// 创建者地址
	Creator string `json:"creator"`

	// 代币信息
	TokenEnabled     bool   `json:"token_enabled" gorm:"not null;default:false"`
	TokenId          uint64 `json:"token_id" gorm:"not null;default:0"`
	TokenName        string `json:"token_name"`
	TokenSymbol      string `json:"token_symbol"`
	TokenTotalSupply uint64 `json:"token_total_supply" gorm:"not null;default:0"`
}

// ProjectState 项目生命周期状态
type ProjectState int

const (
	ProjectStateUninitialized ProjectState = iota // 未初始化
	ProjectStateActive                            // 进行中
)

func (s ProjectState) String() string {
	switch s {
	case ProjectStateUninitialized:
		return "uninitialized"
	case ProjectStateActive:
		return "active"
	default:
		return "unknown"
	}
}

// IsActive 项目是否已初始化
func (p *ProjectModel) IsActive() bool {
	return p.State == ProjectStateActive
}

// HasToken 项目代币是否已创建
func (p *ProjectModel) HasToken() bool {
	return p.TokenId > 0
}

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
