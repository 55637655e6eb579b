package handler

import (
	"math/big"
	"time"

	"github.com/blues/piggybank/internal/logic"
	"github.com/blues/piggybank/internal/model"
	"github.com/shopspring/decimal"
)

// 账本金额与代币均为 6 位小数
const displayDecimals = 6

// formatUnits 将最小单位格式化为 6 位小数字符串
func formatUnits(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -displayDecimals).StringFixed(displayDecimals)
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

// 请求模型

// PaymentRequest 随调用提交的付款，付款人为调用者
type PaymentRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	Amount   uint64 `json:"amount"`
}

// InitializeRequest 初始化项目请求
type InitializeRequest struct {
	Name         string         `json:"name" binding:"required"`
	Description  string         `json:"description"`
	TokenName    string         `json:"token_name"`
	TokenSymbol  string         `json:"token_symbol"`
	TokenSupply  uint64         `json:"token_supply"`
	TokenEnabled bool           `json:"token_enabled"`
	Goal         uint64         `json:"goal"`
	Reserve      PaymentRequest `json:"reserve"`
}

// WithdrawRequest 取款请求
type WithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// ClaimRequest 领取代币请求
type ClaimRequest struct {
	Amount uint64 `json:"amount"`
}

// OptInRequest 代币 opt-in 请求
type OptInRequest struct {
	AssetId uint64         `json:"asset_id"`
	Reserve PaymentRequest `json:"reserve"`
}

// 响应模型

// ProjectResponse 项目响应模型
type ProjectResponse struct {
	Name                    string `json:"name"`
	Description             string `json:"description"`
	State                   string `json:"state"`
	Creator                 string `json:"creator"`
	CustodialAddress        string `json:"custodial_address"`
	GoalAmount              uint64 `json:"goal_amount"`
	GoalAmountDisplay       string `json:"goal_amount_display"`
	TotalDeposited          uint64 `json:"total_deposited"`
	TotalDepositedDisplay   string `json:"total_deposited_display"`
	TokenEnabled            bool   `json:"token_enabled"`
	TokenId                 uint64 `json:"token_id"`
	TokenName               string `json:"token_name"`
	TokenSymbol             string `json:"token_symbol"`
	TokenTotalSupply        uint64 `json:"token_total_supply"`
	TokenTotalSupplyDisplay string `json:"token_total_supply_display"`
}

func newProjectResponse(p *model.ProjectModel, custodial string) ProjectResponse {
	return ProjectResponse{
		Name:                    p.Name,
		Description:             p.Description,
		State:                   p.State.String(),
		Creator:                 p.Creator,
		CustodialAddress:        custodial,
		GoalAmount:              p.GoalAmount,
		GoalAmountDisplay:       formatUnits(p.GoalAmount),
		TotalDeposited:          p.TotalDeposited,
		TotalDepositedDisplay:   formatUnits(p.TotalDeposited),
		TokenEnabled:            p.TokenEnabled,
		TokenId:                 p.TokenId,
		TokenName:               p.TokenName,
		TokenSymbol:             p.TokenSymbol,
		TokenTotalSupply:        p.TokenTotalSupply,
		TokenTotalSupplyDisplay: formatUnits(p.TokenTotalSupply),
	}
}

// GoalResponse 目标进度
type GoalResponse struct {
	Reached        bool   `json:"reached"`
	GoalAmount     uint64 `json:"goal_amount"`
	TotalDeposited uint64 `json:"total_deposited"`
	Progress       string `json:"progress"` // 百分比
}

// BalanceResponse 存款余额
type BalanceResponse struct {
	Address        string `json:"address"`
	Exists         bool   `json:"exists"`
	Balance        uint64 `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	Entitlement    uint64 `json:"entitlement"` // 当前可领取的代币上限，创建者为总供应量
}

func newBalanceResponse(address string, balance uint64, exists bool, entitlement uint64) BalanceResponse {
	return BalanceResponse{
		Address:        address,
		Exists:         exists,
		Balance:        balance,
		BalanceDisplay: formatUnits(balance),
		Entitlement:    entitlement,
	}
}

// InitializeResponse 初始化结果
type InitializeResponse struct {
	TokenId uint64 `json:"token_id"`
}

// ClaimResponse 领取结果
type ClaimResponse struct {
	Claimed        uint64 `json:"claimed"`
	ClaimedDisplay string `json:"claimed_display"`
}

// OptInResponse opt-in 结果
type OptInResponse struct {
	OptedIn bool `json:"opted_in"`
}

// JournalEntryResponse 流水响应模型
type JournalEntryResponse struct {
	Id             string    `json:"id"`
	Kind           string    `json:"kind"`
	Address        string    `json:"address"`
	Amount         uint64    `json:"amount"`
	AmountDisplay  string    `json:"amount_display"`
	AssetId        uint64    `json:"asset_id,omitempty"`
	Balance        uint64    `json:"balance"`
	BalanceDisplay string    `json:"balance_display"`
	CreatedAt      time.Time `json:"created_at"`
}

func newJournalEntryResponse(e model.JournalEntryModel) JournalEntryResponse {
	return JournalEntryResponse{
		Id:             e.Id,
		Kind:           string(e.Kind),
		Address:        e.Address,
		Amount:         e.Amount,
		AmountDisplay:  formatUnits(e.Amount),
		AssetId:        e.AssetId,
		Balance:        e.Balance,
		BalanceDisplay: formatUnits(e.Balance),
		CreatedAt:      e.CreatedAt,
	}
}

// GetJournalResponse 流水列表响应
type GetJournalResponse struct {
	Entries    []JournalEntryResponse `json:"entries"`
	Pagination Pagination             `json:"pagination"`
}

// StatsResponse 统计响应
type StatsResponse struct {
	*logic.Stats
	TotalDepositedDisplay string `json:"total_deposited_display"`
	TotalWithdrawnDisplay string `json:"total_withdrawn_display"`
	TokensClaimedDisplay  string `json:"tokens_claimed_display"`
}
