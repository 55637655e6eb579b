package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/piggybank/internal/database"
	"github.com/blues/piggybank/internal/logger"
	"github.com/blues/piggybank/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Book 基于数据库的托管账户记账，实现 Collector、Payer 和 AssetIssuer。
// 在调用方事务中执行时（见 database.WithTx），所有变更随调用方一起提交或回滚。
type Book struct {
	db       *gorm.DB
	address  common.Address
	deferred bool
}

// Option Book 选项
type Option func(*Book)

// WithDeferredSettlement 付款记为 pending，由 SettlePending 在事务提交后广播
func WithDeferredSettlement() Option {
	return func(b *Book) {
		b.deferred = true
	}
}

// NewBook 创建托管账本
func NewBook(db *gorm.DB, address common.Address, opts ...Option) *Book {
	b := &Book{db: db, address: address}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Address 托管账户地址
func (b *Book) Address() common.Address {
	return b.address
}

// Collect 记录一笔转入托管账户的付款
func (b *Book) Collect(ctx context.Context, p Payment) error {
	if p.Receiver != b.address {
		return ErrNotCustodial
	}

	return database.Conn(ctx, b.db).Transaction(func(tx *gorm.DB) error {
		if err := b.credit(tx, p.Amount); err != nil {
			return err
		}

		record := &model.CustodyPaymentModel{
			Id:        uuid.NewString(),
			Direction: model.PaymentDirectionIn,
			Sender:    p.Sender.Hex(),
			Receiver:  p.Receiver.Hex(),
			Amount:    p.Amount,
			Status:    model.PaymentStatusSettled,
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to record inbound payment: %w", err)
		}
		return nil
	})
}

// Pay 从托管账户付款，amount+fee 超出可用余额时返回 ErrInsufficientFunds。
// 延迟结算模式下只记账，不触达外部网络。
func (b *Book) Pay(ctx context.Context, receiver common.Address, amount, fee uint64) error {
	return database.Conn(ctx, b.db).Transaction(func(tx *gorm.DB) error {
		total := amount + fee
		if total < amount {
			return ErrInsufficientFunds
		}

		res := tx.Model(&model.CustodyAccountModel{}).
			Where("address = ? AND liquidity >= ?", b.address.Hex(), total).
			Update("liquidity", gorm.Expr("liquidity - ?", total))
		if res.Error != nil {
			return fmt.Errorf("failed to debit custodial account: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		// UUIDv7，按 id 排序即为记账顺序
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate payment id: %w", err)
		}
		status := model.PaymentStatusSettled
		if b.deferred {
			status = model.PaymentStatusPending
		}
		record := &model.CustodyPaymentModel{
			Id:        id.String(),
			Direction: model.PaymentDirectionOut,
			Sender:    b.address.Hex(),
			Receiver:  receiver.Hex(),
			Amount:    amount,
			Fee:       fee,
			Status:    status,
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to record outbound payment: %w", err)
		}

		logger.Debug("Booked payment %s of %d to %s (fee %d, %s)", record.Id, amount, receiver.Hex(), fee, status)
		return nil
	})
}

// PendingPayments 按记账顺序列出已提交、待广播的付款
func (b *Book) PendingPayments(ctx context.Context, limit int) ([]model.CustodyPaymentModel, error) {
	var payments []model.CustodyPaymentModel
	err := b.db.WithContext(ctx).
		Where("direction = ? AND status = ?", model.PaymentDirectionOut, model.PaymentStatusPending).
		Order("id").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payments: %w", err)
	}
	return payments, nil
}

// SettlePending 广播已提交的待结算付款并记录交易哈希，返回成功数量。
// 广播失败时保留 pending 状态并停止本轮，后续付款不越过失败的一笔。
func (b *Book) SettlePending(ctx context.Context, settler Settler, limit int) (int, error) {
	payments, err := b.PendingPayments(ctx, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range payments {
		hash, err := settler.Settle(ctx, common.HexToAddress(p.Receiver), p.Amount, p.Fee)
		if err != nil {
			b.recordAttempt(ctx, p.Id, err)
			return settled, fmt.Errorf("failed to settle payment %s: %w", p.Id, err)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":     model.PaymentStatusSettled,
			"tx_hash":    hash,
			"settled_at": &now,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		}
		if err := b.db.WithContext(ctx).Model(&model.CustodyPaymentModel{}).Where("id = ?", p.Id).Updates(updates).Error; err != nil {
			logger.Error("Payment %s broadcast as %s but not marked settled: %v", p.Id, hash, err)
			return settled, fmt.Errorf("failed to mark payment %s settled: %w", p.Id, err)
		}

		logger.Info("Settled payment %s of %d to %s in tx %s", p.Id, p.Amount, p.Receiver, hash)
		settled++
	}
	return settled, nil
}

func (b *Book) recordAttempt(ctx context.Context, id string, cause error) {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause.Error(),
	}
	if err := b.db.WithContext(ctx).Model(&model.CustodyPaymentModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		logger.Error("Failed to record settlement attempt for payment %s: %v", id, err)
	}
}

// CreateAsset 创建代币，全部供应量由托管账户持有
func (b *Book) CreateAsset(ctx context.Context, params AssetParams) (uint64, error) {
	var assetID uint64
	err := database.Conn(ctx, b.db).Transaction(func(tx *gorm.DB) error {
		asset := &model.AssetModel{
			Creator:  b.address.Hex(),
			Total:    params.Total,
			Decimals: params.Decimals,
			UnitName: params.UnitName,
			Name:     params.Name,
			URL:      params.URL,
			Manager:  params.Manager.Hex(),
			Reserve:  params.Reserve.Hex(),
			Freeze:   params.Freeze.Hex(),
			Clawback: params.Clawback.Hex(),
		}
		if err := tx.Create(asset).Error; err != nil {
			return fmt.Errorf("failed to create asset: %w", err)
		}

		if err := b.creditAsset(tx, asset.Id, b.address, params.Total); err != nil {
			return err
		}

		assetID = asset.Id
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Created asset %d (%s/%s) with supply %d", assetID, params.Name, params.UnitName, params.Total)
	return assetID, nil
}

// TransferAsset 从托管账户转出代币
func (b *Book) TransferAsset(ctx context.Context, receiver common.Address, amount, assetID, fee uint64) error {
	return database.Conn(ctx, b.db).Transaction(func(tx *gorm.DB) error {
		var asset model.AssetModel
		if err := tx.First(&asset, assetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownAsset
			}
			return fmt.Errorf("failed to load asset %d: %w", assetID, err)
		}

		if amount == 0 || receiver == b.address {
			return nil
		}

		res := tx.Model(&model.AssetHoldingModel{}).
			Where("asset_id = ? AND address = ? AND amount >= ?", assetID, b.address.Hex(), amount).
			Update("amount", gorm.Expr("amount - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("failed to debit asset holding: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientAssetBalance
		}

		return b.creditAsset(tx, assetID, receiver, amount)
	})
}

// Liquidity 托管账户可用余额
func (b *Book) Liquidity(ctx context.Context) (uint64, error) {
	var account model.CustodyAccountModel
	err := database.Conn(ctx, b.db).Where("address = ?", b.address.Hex()).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load custodial account: %w", err)
	}
	return account.Liquidity, nil
}

// Holding 查询地址持有的代币数量
func (b *Book) Holding(ctx context.Context, assetID uint64, address common.Address) (uint64, error) {
	var holding model.AssetHoldingModel
	err := database.Conn(ctx, b.db).
		Where("asset_id = ? AND address = ?", assetID, address.Hex()).
		First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load holding: %w", err)
	}
	return holding.Amount, nil
}

func (b *Book) credit(tx *gorm.DB, amount uint64) error {
	var current model.CustodyAccountModel
	err := tx.Where("address = ?", b.address.Hex()).Take(&current).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load custodial account: %w", err)
	}
	if amount > MaxAmount || current.Liquidity > MaxAmount-amount {
		return ErrLiquidityOverflow
	}

	account := &model.CustodyAccountModel{
		Address:   b.address.Hex(),
		Liquidity: amount,
		UpdatedAt: time.Now(),
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"liquidity":  gorm.Expr("custody_account.liquidity + ?", amount),
			"updated_at": account.UpdatedAt,
		}),
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("failed to credit custodial account: %w", err)
	}
	return nil
}

func (b *Book) creditAsset(tx *gorm.DB, assetID uint64, address common.Address, amount uint64) error {
	holding := &model.AssetHoldingModel{
		AssetId:   assetID,
		Address:   address.Hex(),
		Amount:    amount,
		UpdatedAt: time.Now(),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset_id"}, {Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("asset_holding.amount + ?", amount),
			"updated_at": holding.UpdatedAt,
		}),
	}).Create(holding).Error
	if err != nil {
		return fmt.Errorf("failed to credit asset holding: %w", err)
	}
	return nil
}
