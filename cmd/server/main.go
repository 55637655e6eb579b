package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/piggybank/internal/chain"
	"github.com/blues/piggybank/internal/config"
	"github.com/blues/piggybank/internal/custody"
	"github.com/blues/piggybank/internal/database"
	"github.com/blues/piggybank/internal/logger"
	"github.com/blues/piggybank/internal/logic"
	"github.com/blues/piggybank/internal/router"
	"github.com/blues/piggybank/internal/scheduler"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化托管账户
	book, settler, err := newBook(ctx, db, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize custody: %v", err)
	}
	logger.Info("Custodial account %s (settlement: %s)", book.Address().Hex(), cfg.Custody.Settlement)

	ledger := logic.NewLedgerLogic(db, custody.NewHost(book))
	journal := logic.NewJournalLogic(db)
	audit := logic.NewAuditLogic(db, ledger, cfg.Task.AuditWorkers)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Services{
		Ledger:  ledger,
		Journal: journal,
		Audit:   audit,
	})

	// 启动定时任务
	interval := time.Duration(cfg.Task.Interval) * time.Second
	jobs := []scheduler.Job{
		scheduler.NewAuditJob(audit, interval),
		scheduler.NewGoalWatchJob(ledger, interval),
	}
	if settler != nil {
		jobs = append(jobs, scheduler.NewPaymentSettlementJob(book, settler, interval))
	}
	tasks, err := scheduler.NewManager(jobs...)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := tasks.Start(); err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}
	defer tasks.Stop()

	// 启动服务器
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}

// newBook 按结算方式创建托管账本，evm 结算时托管地址由私钥推导，
// 付款提交后由 payment_settlement 任务广播
func newBook(ctx context.Context, db *gorm.DB, cfg *config.Config) (*custody.Book, custody.Settler, error) {
	switch cfg.Custody.Settlement {
	case "", "none":
		if !common.IsHexAddress(cfg.Custody.Address) {
			return nil, nil, errors.New("custody.address must be a hex address")
		}
		return custody.NewBook(db, common.HexToAddress(cfg.Custody.Address)), nil, nil
	case "evm":
		client, err := chain.Dial(ctx, cfg.Chain)
		if err != nil {
			return nil, nil, err
		}
		settler, err := chain.NewSettler(client, cfg.Chain.PrivateKey, cfg.Chain.ChainId, cfg.Chain.WeiPerUnit)
		if err != nil {
			return nil, nil, err
		}
		return custody.NewBook(db, settler.Address(), custody.WithDeferredSettlement()), settler, nil
	default:
		return nil, nil, errors.New("unsupported custody.settlement: " + cfg.Custody.Settlement)
	}
}
