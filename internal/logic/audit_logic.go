package logic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blues/piggybank/internal/model"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// AuditReport 账本核对结果
type AuditReport struct {
	CheckedAt      time.Time `json:"checked_at"`
	TotalDeposited uint64    `json:"total_deposited"`
	LedgerSum      uint64    `json:"ledger_sum"`
	Depositors     int       `json:"depositors"`
	Replayed       int       `json:"replayed"`
	Violations     []string  `json:"violations"`
}

// Healthy 是否没有发现任何不一致
func (r *AuditReport) Healthy() bool {
	return len(r.Violations) == 0
}

// AuditLogic 核对账本不变量：
// 累计存款等于账本余额之和、账本中没有零余额条目、每个地址的余额等于其流水回放结果。
type AuditLogic struct {
	db      *gorm.DB
	ledger  *LedgerLogic
	workers int
}

// NewAuditLogic 创建核对逻辑，workers 为并发回放的协程数
func NewAuditLogic(db *gorm.DB, ledger *LedgerLogic, workers int) *AuditLogic {
	if workers < 1 {
		workers = 1
	}
	return &AuditLogic{db: db, ledger: ledger, workers: workers}
}

// Audit 执行一次核对。核对期间暂停账本变更以获得一致视图。
func (a *AuditLogic) Audit(ctx context.Context) (*AuditReport, error) {
	a.ledger.mu.Lock()
	defer a.ledger.mu.Unlock()

	db := a.db.WithContext(ctx)
	report := &AuditReport{CheckedAt: time.Now(), Violations: []string{}}

	var project model.ProjectModel
	if err := db.First(&project, model.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	report.TotalDeposited = project.TotalDeposited

	var deposits []model.DepositModel
	if err := db.Find(&deposits).Error; err != nil {
		return nil, fmt.Errorf("failed to load deposits: %w", err)
	}
	report.Depositors = len(deposits)

	balances := make(map[string]uint64, len(deposits))
	for _, d := range deposits {
		report.LedgerSum += d.Amount
		balances[d.Address] = d.Amount
		if d.Amount == 0 {
			report.Violations = append(report.Violations, fmt.Sprintf("zero balance entry for %s", d.Address))
		}
	}
	if report.LedgerSum != report.TotalDeposited {
		report.Violations = append(report.Violations,
			fmt.Sprintf("total deposited %d does not match ledger sum %d", report.TotalDeposited, report.LedgerSum))
	}

	var addresses []string
	if err := db.Model(&model.JournalEntryModel{}).
		Where("kind IN ?", []model.JournalKind{model.JournalKindDeposit, model.JournalKindWithdraw}).
		Distinct("address").
		Pluck("address", &addresses).Error; err != nil {
		return nil, fmt.Errorf("failed to load journal addresses: %w", err)
	}
	seen := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		seen[addr] = true
	}
	for addr := range balances {
		if !seen[addr] {
			addresses = append(addresses, addr)
		}
	}

	violations, err := a.replayAll(ctx, addresses, balances)
	if err != nil {
		return nil, err
	}
	report.Replayed = len(addresses)
	report.Violations = append(report.Violations, violations...)

	return report, nil
}

// replayAll 在协程池中并发回放每个地址的流水
func (a *AuditLogic) replayAll(ctx context.Context, addresses []string, balances map[string]uint64) ([]string, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(a.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit pool: %w", err)
	}
	defer pool.Release()

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		violations []string
		firstErr   error
	)

	for _, addr := range addresses {
		addr := addr
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			found, err := a.replay(ctx, addr, balances[addr])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			violations = append(violations, found...)
		})
		if err != nil {
			wg.Done()
			return nil, fmt.Errorf("failed to submit replay for %s: %w", addr, err)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return violations, nil
}

// replay 按写入顺序回放单个地址的存取流水
func (a *AuditLogic) replay(ctx context.Context, address string, balance uint64) ([]string, error) {
	var entries []model.JournalEntryModel
	if err := a.db.WithContext(ctx).
		Where("address = ? AND kind IN ?", address, []model.JournalKind{model.JournalKindDeposit, model.JournalKindWithdraw}).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load journal for %s: %w", address, err)
	}

	var violations []string
	var running uint64
	for _, e := range entries {
		switch e.Kind {
		case model.JournalKindDeposit:
			running += e.Amount
		case model.JournalKindWithdraw:
			if e.Amount > running {
				violations = append(violations, fmt.Sprintf("%s withdrew %d with only %d deposited (entry %s)", address, e.Amount, running, e.Id))
				running = 0
				continue
			}
			running -= e.Amount
		}
		if e.Balance != running {
			violations = append(violations, fmt.Sprintf("%s entry %s records balance %d, replay gives %d", address, e.Id, e.Balance, running))
		}
	}

	if running != balance {
		violations = append(violations, fmt.Sprintf("%s ledger balance %d, replay gives %d", address, balance, running))
	}
	return violations, nil
}
