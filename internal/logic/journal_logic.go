package logic

import (
	"context"
	"fmt"
	"math/big"

	"github.com/blues/piggybank/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// JournalLogic 账本流水与统计
type JournalLogic struct {
	db *gorm.DB
}

// NewJournalLogic 创建流水业务逻辑
func NewJournalLogic(db *gorm.DB) *JournalLogic {
	return &JournalLogic{db: db}
}

// Stats 项目统计
type Stats struct {
	DepositorCount  int64           `json:"depositor_count"`
	DepositCount    int64           `json:"deposit_count"`
	WithdrawalCount int64           `json:"withdrawal_count"`
	ClaimCount      int64           `json:"claim_count"`
	GoalAmount      uint64          `json:"goal_amount"`
	TotalDeposited  uint64          `json:"total_deposited"`
	TotalWithdrawn  uint64          `json:"total_withdrawn"`
	TokensClaimed   uint64          `json:"tokens_claimed"`
	GoalProgress    decimal.Decimal `json:"goal_progress"` // 百分比，目标为 0 时为 0
}

// appendJournal 在当前事务中追加流水。id 使用 UUIDv7，按 id 排序即为写入顺序。
func appendJournal(tx *gorm.DB, kind model.JournalKind, address common.Address, amount, assetID, balance uint64) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate journal id: %w", err)
	}

	entry := &model.JournalEntryModel{
		Id:      id.String(),
		Kind:    kind,
		Address: address.Hex(),
		Amount:  amount,
		AssetId: assetID,
		Balance: balance,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListJournal 分页查询流水，address 与 kind 为空时不过滤
func (j *JournalLogic) ListJournal(ctx context.Context, address string, kind model.JournalKind, page, pageSize int) ([]model.JournalEntryModel, int64, error) {
	var entries []model.JournalEntryModel
	var total int64

	query := j.db.WithContext(ctx).Model(&model.JournalEntryModel{})
	if address != "" {
		query = query.Where("address = ?", common.HexToAddress(address).Hex())
	}
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count journal entries: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list journal entries: %w", err)
	}

	return entries, total, nil
}

// GetStats 汇总项目统计信息
func (j *JournalLogic) GetStats(ctx context.Context) (*Stats, error) {
	db := j.db.WithContext(ctx)
	var stats Stats

	var project model.ProjectModel
	if err := db.First(&project, model.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	stats.GoalAmount = project.GoalAmount
	stats.TotalDeposited = project.TotalDeposited

	if err := db.Model(&model.DepositModel{}).Count(&stats.DepositorCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count depositors: %w", err)
	}

	counts := []struct {
		kind  model.JournalKind
		count *int64
	}{
		{model.JournalKindDeposit, &stats.DepositCount},
		{model.JournalKindWithdraw, &stats.WithdrawalCount},
		{model.JournalKindClaim, &stats.ClaimCount},
	}
	for _, c := range counts {
		if err := db.Model(&model.JournalEntryModel{}).Where("kind = ?", c.kind).Count(c.count).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s entries: %w", c.kind, err)
		}
	}

	if err := db.Model(&model.JournalEntryModel{}).
		Where("kind = ?", model.JournalKindWithdraw).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TotalWithdrawn).Error; err != nil {
		return nil, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	if err := db.Model(&model.JournalEntryModel{}).
		Where("kind = ?", model.JournalKindClaim).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TokensClaimed).Error; err != nil {
		return nil, fmt.Errorf("failed to sum claims: %w", err)
	}

	stats.GoalProgress = GoalProgress(stats.TotalDeposited, stats.GoalAmount)
	return &stats, nil
}

// GoalProgress 目标完成百分比，保留两位小数
func GoalProgress(total, goal uint64) decimal.Decimal {
	if goal == 0 {
		return decimal.Zero
	}
	t := decimal.NewFromBigInt(new(big.Int).SetUint64(total), 0)
	g := decimal.NewFromBigInt(new(big.Int).SetUint64(goal), 0)
	return t.Mul(decimal.NewFromInt(100)).Div(g).Round(2)
}
