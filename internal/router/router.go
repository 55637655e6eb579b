package router

import (
	"time"

	"github.com/blues/piggybank/internal/handler"
	"github.com/blues/piggybank/internal/logger"
	"github.com/blues/piggybank/internal/logic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services 路由依赖的业务逻辑
type Services struct {
	Ledger  *logic.LedgerLogic
	Journal *logic.JournalLogic
	Audit   *logic.AuditLogic
}

func Setup(s Services) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(requestLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "piggybank",
		})
	})

	ledgerHandler := handler.NewLedgerHandler(s.Ledger)
	journalHandler := handler.NewJournalHandler(s.Journal, s.Audit)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 只读接口
		v1.GET("/project", ledgerHandler.GetProject)
		v1.GET("/project/goal", ledgerHandler.GetGoal)
		v1.GET("/deposits/:address", ledgerHandler.GetDeposit)
		v1.GET("/journal", journalHandler.GetJournal)
		v1.GET("/stats", journalHandler.GetStats)
		v1.GET("/audit", journalHandler.GetAudit)

		// 需要调用者身份的接口
		calls := v1.Group("", handler.CallerMiddleware())
		{
			calls.POST("/project", ledgerHandler.Initialize)
			calls.POST("/deposits", ledgerHandler.Deposit)
			calls.POST("/withdrawals", ledgerHandler.Withdraw)
			calls.POST("/claims", ledgerHandler.Claim)
			calls.POST("/token/opt-in", ledgerHandler.OptInToken)
		}
	}

	return r
}

// requestLogger 通过统一日志记录请求
func requestLogger() gin.HandlerFunc {
	log := logger.With(zap.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, "+handler.CallerHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
