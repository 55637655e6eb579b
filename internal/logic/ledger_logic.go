package logic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blues/piggybank/internal/custody"
	"github.com/blues/piggybank/internal/database"
	"github.com/blues/piggybank/internal/logger"
	"github.com/blues/piggybank/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	AssetCreationReserve uint64 = 200_000 // 创建代币所需的最低储备付款
	OptInReserve         uint64 = 100_000 // 持有代币所需的最低储备付款
	UnitsPerToken        uint64 = 1_000   // 每存入 1000 单位可领取 1 个代币
	TokenDecimals        uint32 = 6
	TokenURL                    = "ipfs://"
)

// InitializeParams 项目初始化参数
type InitializeParams struct {
	Name         string
	Description  string
	TokenName    string
	TokenSymbol  string
	TokenSupply  uint64
	TokenEnabled bool
	Goal         uint64
	Reserve      custody.Payment
}

// ProjectInfo 项目概要
type ProjectInfo struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	TokenId          uint64 `json:"token_id"`
	GoalAmount       uint64 `json:"goal_amount"`
	TotalDeposited   uint64 `json:"total_deposited"`
	TokenTotalSupply uint64 `json:"token_total_supply"`
}

// LedgerLogic 储蓄账本状态机。
// 每个变更操作在单个数据库事务内完成，并持有项目行锁与进程内互斥锁；
// 任一前置条件或外部原语失败都会回滚整笔操作。
type LedgerLogic struct {
	mu   sync.Mutex
	db   *gorm.DB
	host custody.Host
}

// NewLedgerLogic 创建账本业务逻辑
func NewLedgerLogic(db *gorm.DB, host custody.Host) *LedgerLogic {
	return &LedgerLogic{db: db, host: host}
}

// CustodialAddress 托管账户地址
func (l *LedgerLogic) CustodialAddress() common.Address {
	return l.host.Address
}

// transact 在锁定的项目记录上执行 fn，ctx 中携带事务供托管原语复用
func (l *LedgerLogic) transact(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB, project *model.ProjectModel) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project model.ProjectModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&project, model.ProjectID).Error; err != nil {
			return fmt.Errorf("failed to load project: %w", err)
		}
		return fn(database.WithTx(ctx, tx), tx, &project)
	})
}

// Initialize 初始化项目，整个生命周期只能成功一次
func (l *LedgerLogic) Initialize(ctx context.Context, caller common.Address, params InitializeParams) (uint64, error) {
	var tokenID uint64
	err := l.transact(ctx, func(ctx context.Context, tx *gorm.DB, project *model.ProjectModel) error {
		if project.State != model.ProjectStateUninitialized {
			return ErrAlreadyInitialized
		}
		if params.Reserve.Receiver != l.host.Address {
			return ErrWrongReceiver
		}
		if params.TokenEnabled && params.Reserve.Amount < AssetCreationReserve {
			return ErrInsufficientReserve
		}
		if params.Goal > custody.MaxAmount || params.TokenSupply > custody.MaxAmount || params.Reserve.Amount > custody.MaxAmount {
			return ErrAmountOverflow
		}

		if err := l.host.Collect(ctx, params.Reserve); err != nil {
			return fmt.Errorf("failed to collect reserve payment: %w", err)
		}

		project.Name = params.Name
		project.Description = params.Description
		project.GoalAmount = params.Goal
		project.Creator = caller.Hex()
		project.State = model.ProjectStateActive
		project.TokenEnabled = params.TokenEnabled

		if params.TokenEnabled {
			project.TokenName = params.TokenName
			project.TokenSymbol = params.TokenSymbol
			project.TokenTotalSupply = params.TokenSupply

			id, err := l.host.Assets.CreateAsset(ctx, custody.AssetParams{
				Total:    params.TokenSupply,
				Decimals: TokenDecimals,
				UnitName: params.TokenSymbol,
				Name:     params.TokenName,
				URL:      TokenURL,
				Manager:  caller,
				Reserve:  caller,
				Freeze:   caller,
				Clawback: caller,
				Fee:      0,
			})
			if err != nil {
				return fmt.Errorf("failed to create token: %w", err)
			}
			project.TokenId = id
		} else {
			project.TokenName = ""
			project.TokenSymbol = ""
			project.TokenTotalSupply = 0
			project.TokenId = 0
		}

		if err := tx.Save(project).Error; err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}
		if err := appendJournal(tx, model.JournalKindInitialize, caller, params.Reserve.Amount, project.TokenId, 0); err != nil {
			return err
		}

		tokenID = project.TokenId
		return nil
	})
	if err != nil {
		logFailure("initialize", caller, err)
		return 0, err
	}

	logger.Info("Project %q initialized by %s (goal %d, token %d)", params.Name, caller.Hex(), params.Goal, tokenID)
	return tokenID, nil
}

// Deposit 存入，返回付款人的最新余额
func (l *LedgerLogic) Deposit(ctx context.Context, payment custody.Payment) (uint64, error) {
	var balance uint64
	err := l.transact(ctx, func(ctx context.Context, tx *gorm.DB, project *model.ProjectModel) error {
		if !project.IsActive() {
			return ErrProjectNotActive
		}
		if payment.Receiver != l.host.Address {
			return ErrWrongReceiver
		}
		if payment.Amount == 0 {
			return ErrZeroAmount
		}
		if payment.Amount > custody.MaxAmount {
			return ErrAmountOverflow
		}

		current, exists, err := findDeposit(tx, payment.Sender)
		if err != nil {
			return err
		}
		if current > custody.MaxAmount-payment.Amount || project.TotalDeposited > custody.MaxAmount-payment.Amount {
			return ErrAmountOverflow
		}

		if err := l.host.Collect(ctx, payment); err != nil {
			return fmt.Errorf("failed to collect deposit: %w", err)
		}

		balance = current + payment.Amount
		if exists {
			err = tx.Model(&model.DepositModel{}).
				Where("address = ?", payment.Sender.Hex()).
				Update("amount", balance).Error
		} else {
			err = tx.Create(&model.DepositModel{Address: payment.Sender.Hex(), Amount: balance}).Error
		}
		if err != nil {
			return fmt.Errorf("failed to update deposit: %w", err)
		}

		project.TotalDeposited += payment.Amount
		if err := tx.Save(project).Error; err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}

		return appendJournal(tx, model.JournalKindDeposit, payment.Sender, payment.Amount, 0, balance)
	})
	if err != nil {
		logFailure("deposit", payment.Sender, err)
		return 0, err
	}

	logger.Info("Deposit of %d from %s, balance %d", payment.Amount, payment.Sender.Hex(), balance)
	return balance, nil
}

// Withdraw 取出调用者自己的存款，返回剩余余额。
// 付款与账本更新在同一事务内记账，任一步失败整笔回滚；外部结算只在提交后进行。
func (l *LedgerLogic) Withdraw(ctx context.Context, caller common.Address, amount uint64) (uint64, error) {
	var remaining uint64
	err := l.transact(ctx, func(ctx context.Context, tx *gorm.DB, project *model.ProjectModel) error {
		if !project.IsActive() {
			return ErrProjectNotActive
		}

		current, exists, err := findDeposit(tx, caller)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNoDeposit
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		if amount > current {
			return ErrInsufficientBalance
		}

		if err := l.host.Pay(ctx, caller, amount, 0); err != nil {
			return fmt.Errorf("failed to pay withdrawal: %w", err)
		}

		remaining = current - amount
		project.TotalDeposited -= amount

		if remaining == 0 {
			err = tx.Where("address = ?", caller.Hex()).Delete(&model.DepositModel{}).Error
		} else {
			err = tx.Model(&model.DepositModel{}).
				Where("address = ?", caller.Hex()).
				Update("amount", remaining).Error
		}
		if err != nil {
			return fmt.Errorf("failed to update deposit: %w", err)
		}

		if err := tx.Save(project).Error; err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}

		return appendJournal(tx, model.JournalKindWithdraw, caller, amount, 0, remaining)
	})
	if err != nil {
		logFailure("withdraw", caller, err)
		return 0, err
	}

	logger.Info("Withdrawal of %d by %s, remaining %d", amount, caller.Hex(), remaining)
	return remaining, nil
}

// Claim 领取项目代币。
// 创建者上限为总供应量；其他调用者上限为 floor(存款余额/1000)。
// 领取不扣减存款，也不累计已领取数量。
func (l *LedgerLogic) Claim(ctx context.Context, caller common.Address, tokenAmount uint64) (uint64, error) {
	err := l.transact(ctx, func(ctx context.Context, tx *gorm.DB, project *model.ProjectModel) error {
		if !project.IsActive() {
			return ErrProjectNotActive
		}
		if !project.TokenEnabled {
			return ErrTokenDisabled
		}
		if !project.HasToken() {
			return ErrTokenNotCreated
		}

		current, exists, err := findDeposit(tx, caller)
		if err != nil {
			return err
		}
		isCreator := caller == common.HexToAddress(project.Creator)
		if !isCreator && !exists {
			return ErrNoDeposit
		}
		if tokenAmount > claimCeiling(project, isCreator, current) {
			return ErrClaimExceedsEntitlement
		}

		if err := l.host.Assets.TransferAsset(ctx, caller, tokenAmount, project.TokenId, 0); err != nil {
			return fmt.Errorf("failed to transfer tokens: %w", err)
		}

		return appendJournal(tx, model.JournalKindClaim, caller, tokenAmount, project.TokenId, current)
	})
	if err != nil {
		logFailure("claim", caller, err)
		return 0, err
	}

	logger.Info("Claim of %d tokens by %s", tokenAmount, caller.Hex())
	return tokenAmount, nil
}

// OptInToken 校验调用者接收项目代币的前置条件，本身不修改账本
func (l *LedgerLogic) OptInToken(ctx context.Context, caller common.Address, assetID uint64, reserve custody.Payment) (bool, error) {
	err := l.transact(ctx, func(ctx context.Context, tx *gorm.DB, project *model.ProjectModel) error {
		if reserve.Receiver != l.host.Address {
			return ErrWrongReceiver
		}
		if reserve.Amount < OptInReserve {
			return ErrInsufficientReserve
		}
		if reserve.Amount > custody.MaxAmount {
			return ErrAmountOverflow
		}
		if !project.TokenEnabled {
			return ErrTokenDisabled
		}
		if assetID != project.TokenId {
			return ErrInvalidToken
		}

		if err := l.host.Collect(ctx, reserve); err != nil {
			return fmt.Errorf("failed to collect reserve payment: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure("opt_in_token", caller, err)
		return false, err
	}

	logger.Info("Account %s opted in to token %d", caller.Hex(), assetID)
	return true, nil
}

// GetProject 读取项目记录，任何状态下可用
func (l *LedgerLogic) GetProject(ctx context.Context) (*model.ProjectModel, error) {
	var project model.ProjectModel
	err := l.db.WithContext(ctx).First(&project, model.ProjectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ProjectModel{Id: model.ProjectID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &project, nil
}

// GetProjectInfo 项目概要
func (l *LedgerLogic) GetProjectInfo(ctx context.Context) (ProjectInfo, error) {
	project, err := l.GetProject(ctx)
	if err != nil {
		return ProjectInfo{}, err
	}
	return ProjectInfo{
		Name:             project.Name,
		Description:      project.Description,
		TokenId:          project.TokenId,
		GoalAmount:       project.GoalAmount,
		TotalDeposited:   project.TotalDeposited,
		TokenTotalSupply: project.TokenTotalSupply,
	}, nil
}

// LookupDeposit 查询存款，exists 为 false 表示账本中没有该地址
func (l *LedgerLogic) LookupDeposit(ctx context.Context, address common.Address) (amount uint64, exists bool, err error) {
	return findDeposit(l.db.WithContext(ctx), address)
}

// GetDeposit 查询存款，没有记录时返回 0
func (l *LedgerLogic) GetDeposit(ctx context.Context, address common.Address) (uint64, error) {
	amount, _, err := l.LookupDeposit(ctx, address)
	return amount, err
}

// IsGoalReached 累计存款是否达到目标
func (l *LedgerLogic) IsGoalReached(ctx context.Context) (bool, error) {
	project, err := l.GetProject(ctx)
	if err != nil {
		return false, err
	}
	return project.TotalDeposited >= project.GoalAmount, nil
}

// ClaimCeiling 地址当前可领取的代币上限；项目未启用代币或代币未创建时为 0
func (l *LedgerLogic) ClaimCeiling(ctx context.Context, address common.Address) (uint64, error) {
	project, err := l.GetProject(ctx)
	if err != nil {
		return 0, err
	}
	if !project.IsActive() || !project.TokenEnabled || !project.HasToken() {
		return 0, nil
	}
	balance, _, err := l.LookupDeposit(ctx, address)
	if err != nil {
		return 0, err
	}
	return claimCeiling(project, address == common.HexToAddress(project.Creator), balance), nil
}

func claimCeiling(project *model.ProjectModel, isCreator bool, balance uint64) uint64 {
	if isCreator {
		return project.TokenTotalSupply
	}
	return Entitlement(balance)
}

// Entitlement 非创建者按存款余额可领取的代币上限
func Entitlement(balance uint64) uint64 {
	return balance / UnitsPerToken
}

func findDeposit(tx *gorm.DB, address common.Address) (uint64, bool, error) {
	var deposit model.DepositModel
	err := tx.Where("address = ?", address.Hex()).Take(&deposit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load deposit: %w", err)
	}
	return deposit.Amount, true, nil
}

func logFailure(op string, caller common.Address, err error) {
	if IsRejection(err) {
		logger.Warn("Rejected %s by %s: %v", op, caller.Hex(), err)
		return
	}
	logger.Error("Failed %s by %s: %v", op, caller.Hex(), err)
}
