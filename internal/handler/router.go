package handler

import (
	"walletbot/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.POST("/register", h.Register)
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
			account.GET("/deposits", h.ListDepositHistory)
			account.GET("/leaderboard", h.Leaderboard)
		}

		shop := api.Group("/shop")
		{
			shop.GET("/items", h.ListItems)
			shop.POST("/purchase", h.Purchase)
		}

		order := api.Group("/order")
		{
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
		}

		deposit := api.Group("/deposit")
		{
			deposit.GET("/plans", h.ListDepositPlans)
			deposit.POST("/submit", h.SubmitDeposit)
			deposit.GET("/list", h.ListDeposits)
		}

		// 管理端统一走令牌校验
		admin := api.Group("/admin", AdminAuthMiddleware(&cfg.AdminAPI))
		{
			admin.POST("/order/complete", h.CompleteOrder)
			admin.POST("/order/refund", h.RefundOrder)
			admin.GET("/order/pending", h.ListPendingOrders)

			admin.POST("/deposit/approve", h.ApproveDeposit)
			admin.POST("/deposit/reject", h.RejectDeposit)
			admin.GET("/deposit/pending", h.ListPendingDeposits)

			admin.POST("/blacklist/ban", h.Ban)
			admin.POST("/blacklist/unban", h.Unban)
			admin.GET("/blacklist/list", h.ListBlacklist)
			admin.GET("/blacklist/check", h.CheckBlacklist)

			admin.GET("/risk/events", h.ListRiskEvents)
			admin.POST("/risk/handle", h.HandleRiskEvent)
			admin.POST("/risk/auto-handle", h.AutoHandleRisks)
			admin.POST("/risk/detect", h.DetectSuspicious)

			admin.POST("/account/adjust", h.AdjustBalance)
			admin.POST("/account/correct", h.CorrectBalance)
			admin.GET("/account/reconcile", h.Reconcile)

			admin.GET("/report/daily", h.GetDailySummary)
			admin.GET("/report/user", h.GetUserStatistics)
			admin.GET("/report/staff", h.GetStaffStatistics)
			admin.GET("/report/orders", h.ListOrdersByDateRange)
			admin.GET("/report/pending-orders", h.ListPendingOrderDetails)
			admin.GET("/report/reconciliation", h.GetReconciliationReport)
			admin.GET("/report/suspicious-users", h.ListSuspiciousUsers)
			admin.GET("/report/suspicious-staff", h.ListSuspiciousStaff)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
