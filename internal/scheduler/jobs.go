package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/blues/piggybank/internal/logger"
	"github.com/blues/piggybank/internal/logic"
	"github.com/go-co-op/gocron/v2"
)

// AuditJob 定期核对账本
type AuditJob struct {
	audit    *logic.AuditLogic
	interval time.Duration
}

// NewAuditJob 创建账本核对任务
func NewAuditJob(audit *logic.AuditLogic, interval time.Duration) *AuditJob {
	return &AuditJob{
		audit:    audit,
		interval: interval,
	}
}

// GetName 获取任务名称
func (j *AuditJob) GetName() string {
	return "ledger_audit"
}

// GetSchedule 获取调度配置
func (j *AuditJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *AuditJob) Execute() {
	report, err := j.audit.Audit(context.Background())
	if err != nil {
		logger.Error("Ledger audit failed: %v", err)
		return
	}

	if report.Healthy() {
		logger.Debug("Ledger audit passed: %d depositors, total %d", report.Depositors, report.TotalDeposited)
		return
	}
	for _, v := range report.Violations {
		logger.Error("Ledger audit violation: %s", v)
	}
}

// GoalWatchJob 首次观察到达成目标时记录日志
type GoalWatchJob struct {
	ledger   *logic.LedgerLogic
	interval time.Duration

	mu      sync.Mutex
	reached bool
}

// NewGoalWatchJob 创建目标监控任务
func NewGoalWatchJob(ledger *logic.LedgerLogic, interval time.Duration) *GoalWatchJob {
	return &GoalWatchJob{
		ledger:   ledger,
		interval: interval,
	}
}

// GetName 获取任务名称
func (j *GoalWatchJob) GetName() string {
	return "goal_watch"
}

// GetSchedule 获取调度配置
func (j *GoalWatchJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *GoalWatchJob) Execute() {
	ctx := context.Background()
	project, err := j.ledger.GetProject(ctx)
	if err != nil {
		logger.Error("Goal watch failed: %v", err)
		return
	}
	if !project.IsActive() {
		return
	}

	reached := project.TotalDeposited >= project.GoalAmount

	j.mu.Lock()
	defer j.mu.Unlock()
	if reached && !j.reached {
		logger.Info("Savings goal %d reached for %q (total %d)", project.GoalAmount, project.Name, project.TotalDeposited)
	}
	if !reached && j.reached {
		logger.Info("Total %d dropped below goal %d for %q", project.TotalDeposited, project.GoalAmount, project.Name)
	}
	j.reached = reached
}

// Reached 最近一次执行时目标是否达成
func (j *GoalWatchJob) Reached() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reached
}
