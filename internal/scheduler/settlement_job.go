package scheduler

import (
	"context"
	"time"

	"github.com/blues/piggybank/internal/custody"
	"github.com/blues/piggybank/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// settlementBatch 每轮最多广播的付款数
const settlementBatch = 50

// PaymentSettlementJob 广播已提交的待结算付款
type PaymentSettlementJob struct {
	book     *custody.Book
	settler  custody.Settler
	interval time.Duration
}

// NewPaymentSettlementJob 创建付款结算任务
func NewPaymentSettlementJob(book *custody.Book, settler custody.Settler, interval time.Duration) *PaymentSettlementJob {
	return &PaymentSettlementJob{
		book:     book,
		settler:  settler,
		interval: interval,
	}
}

// GetName 获取任务名称
func (j *PaymentSettlementJob) GetName() string {
	return "payment_settlement"
}

// GetSchedule 获取调度配置
func (j *PaymentSettlementJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *PaymentSettlementJob) Execute() {
	settled, err := j.book.SettlePending(context.Background(), j.settler, settlementBatch)
	if err != nil {
		logger.Error("Payment settlement stopped after %d payments: %v", settled, err)
		return
	}
	if settled > 0 {
		logger.Info("Payment settlement completed. Settled %d payments", settled)
	}
}
