package handler

import (
	"errors"
	"strconv"

	"walletbot/internal/config"
	"walletbot/internal/repository"
	"walletbot/internal/service"
	"walletbot/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg              *config.Config
	walletService    *service.WalletService
	orderService     *service.OrderService
	depositService   *service.DepositService
	blacklistService *service.BlacklistService
	riskService      *service.RiskService
	reportService    *service.ReportService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	walletSvc := service.NewWalletService(db, rdb)
	riskSvc := service.NewRiskService(db, cfg)
	blacklistSvc := service.NewBlacklistService(db, cfg)

	return &Handler{
		cfg:              cfg,
		walletService:    walletSvc,
		orderService:     service.NewOrderService(db, cfg, walletSvc, riskSvc, blacklistSvc),
		depositService:   service.NewDepositService(db, cfg, walletSvc, riskSvc, blacklistSvc),
		blacklistService: blacklistSvc,
		riskService:      riskSvc,
		reportService:    service.NewReportService(db, walletSvc),
	}
}

// handleServiceError 业务错误到响应码的统一映射
// 风控拦截、状态冲突等都是预期内结果，带具体原因返回
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		response.BusinessError(c, response.CodeOrderStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrDepositRequestNotFound):
		response.BusinessError(c, response.CodeDepositNotFound, err.Error())
	case errors.Is(err, repository.ErrDepositRequestHandled):
		response.BusinessError(c, response.CodeDepositHandled, err.Error())
	case errors.Is(err, repository.ErrRiskEventNotFound):
		response.BusinessError(c, response.CodeRiskEventNotFound, err.Error())
	case errors.Is(err, repository.ErrRiskEventHandled):
		response.BusinessError(c, response.CodeRiskEventHandled, err.Error())
	case errors.Is(err, repository.ErrNotBlacklisted):
		response.BusinessError(c, response.CodeNotBlacklisted, err.Error())
	case errors.Is(err, service.ErrItemNotFound):
		response.BusinessError(c, response.CodeItemNotFound, err.Error())
	case errors.Is(err, service.ErrUserBanned):
		response.BusinessError(c, response.CodeUserBanned, err.Error())
	case errors.Is(err, service.ErrRefundBlocked):
		response.BusinessError(c, response.CodeRefundBlocked, err.Error())
	case errors.Is(err, service.ErrDepositLimitExceeded):
		response.BusinessError(c, response.CodeDepositLimitExceeded, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func parseUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

// ============================================================
// 账户相关接口
// ============================================================

// RegisterRequest 注册请求
type RegisterRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Username string `json:"username"`
}

// Register 注册钱包账户（重复注册幂等，created 区分"注册成功"和"已注册"）
// POST /api/v1/account/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, created, err := h.walletService.Register(c.Request.Context(), req.UserID, req.Username)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	message := "注册成功"
	if !created {
		message = "已注册"
	}
	response.Success(c, gin.H{
		"user_id":  account.UserID,
		"username": account.Username,
		"balance":  account.Balance,
		"created":  created,
		"message":  message,
	})
}

// GetBalance 查询用户余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	account, err := h.walletService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":  account.UserID,
		"username": account.Username,
		"balance":  account.Balance,
	})
}

// ListTransactions 查询流水
// GET /api/v1/account/transactions?user_id=xxx&limit=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	txns, err := h.walletService.ListTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"list": txns})
}

// ListDepositHistory 查询已入账储值记录
// GET /api/v1/account/deposits?user_id=xxx&limit=10
func (h *Handler) ListDepositHistory(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	deposits, err := h.walletService.ListDeposits(c.Request.Context(), userID, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"list": deposits})
}

// Leaderboard 积分排行榜
// GET /api/v1/account/leaderboard?limit=10
func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	entries, err := h.walletService.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"list": entries})
}

// ============================================================
// 商城相关接口
// ============================================================

// ListItems 商品目录
// GET /api/v1/shop/items
func (h *Handler) ListItems(c *gin.Context) {
	response.Success(c, gin.H{"items": h.cfg.Shop.Items})
}

// Purchase 购买商品
// POST /api/v1/shop/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.orderService.Purchase(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 订单相关接口
// ============================================================

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?user_id=xxx&limit=20
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	orders, err := h.orderService.ListOrdersByUser(c.Request.Context(), userID, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"list": orders})
}

// ============================================================
// 储值相关接口
// ============================================================

// ListDepositPlans 储值方案与转账信息
// GET /api/v1/deposit/plans
func (h *Handler) ListDepositPlans(c *gin.Context) {
	response.Success(c, gin.H{
		"plans":     h.cfg.Deposit.Plans,
		"bank_info": h.cfg.Deposit.BankInfo,
	})
}

// SubmitDeposit 提交储值申请
// POST /api/v1/deposit/submit
func (h *Handler) SubmitDeposit(c *gin.Context) {
	var req service.SubmitDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if !req.Amount.GreaterThan(decimal.Zero) {
		response.ParamError(c, "储值金额必须为正数")
		return
	}

	result, err := h.depositService.Submit(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ListDeposits 查询用户储值申请记录
// GET /api/v1/deposit/list?user_id=xxx&limit=20
func (h *Handler) ListDeposits(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	requests, err := h.depositService.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"list": requests})
}
