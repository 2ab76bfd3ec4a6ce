package handler

import (
	"strconv"

	"walletbot/internal/model"
	"walletbot/internal/service"
	"walletbot/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================
// 管理端接口（需管理令牌）
// ============================================================

// CompleteOrderRequest 完成订单请求
type CompleteOrderRequest struct {
	OrderNo   string `json:"order_no" binding:"required"`
	StaffID   int64  `json:"staff_id" binding:"required"`
	StaffName string `json:"staff_name"`
}

// CompleteOrder 完成订单并结算分润
// POST /api/v1/admin/order/complete
func (h *Handler) CompleteOrder(c *gin.Context) {
	var req CompleteOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.orderService.CompleteOrder(c.Request.Context(), req.OrderNo, req.StaffID, req.StaffName)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// RefundOrderRequest 订单退款请求
type RefundOrderRequest struct {
	OrderNo    string `json:"order_no" binding:"required"`
	OperatorID int64  `json:"operator_id" binding:"required"`
}

// RefundOrder 订单退款（仅 pending 订单）
// POST /api/v1/admin/order/refund
func (h *Handler) RefundOrder(c *gin.Context) {
	var req RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.orderService.RefundOrder(c.Request.Context(), req.OrderNo, req.OperatorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no":      req.OrderNo,
		"refunded":      txn.Amount,
		"balance_after": txn.BalanceAfter,
	})
}

// ListPendingOrders 待处理订单
// GET /api/v1/admin/order/pending
func (h *Handler) ListPendingOrders(c *gin.Context) {
	orders, err := h.orderService.ListPendingOrders(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": orders})
}

// ApproveDepositRequest 储值审批请求
type ApproveDepositRequest struct {
	RequestID int64 `json:"request_id" binding:"required"`
	AdminID   int64 `json:"admin_id" binding:"required"`
}

// ApproveDeposit 储值审批通过
// POST /api/v1/admin/deposit/approve
func (h *Handler) ApproveDeposit(c *gin.Context) {
	var req ApproveDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.depositService.Approve(c.Request.Context(), req.RequestID, req.AdminID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// RejectDepositRequest 储值驳回请求
type RejectDepositRequest struct {
	RequestID int64  `json:"request_id" binding:"required"`
	AdminID   int64  `json:"admin_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// RejectDeposit 储值申请驳回
// POST /api/v1/admin/deposit/reject
func (h *Handler) RejectDeposit(c *gin.Context) {
	var req RejectDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.depositService.Reject(c.Request.Context(), req.RequestID, req.AdminID, req.Reason); err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已驳回"})
}

// ListPendingDeposits 待审批储值申请
// GET /api/v1/admin/deposit/pending
func (h *Handler) ListPendingDeposits(c *gin.Context) {
	requests, err := h.depositService.ListPending(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": requests})
}

// ============================================================
// 黑名单管理
// ============================================================

// BanRequest 封禁请求
type BanRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Username string `json:"username"`
	Reason   string `json:"reason" binding:"required"`
	AdminID  int64  `json:"admin_id" binding:"required"`
	Days     int    `json:"days"` // 0 = 永久
	Notes    string `json:"notes"`
}

// Ban 封禁用户
// POST /api/v1/admin/blacklist/ban
func (h *Handler) Ban(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.blacklistService.Ban(c.Request.Context(), &service.BanRequest{
		UserID:   req.UserID,
		Username: req.Username,
		Reason:   req.Reason,
		BannedBy: req.AdminID,
		Days:     req.Days,
		Notes:    req.Notes,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, entry)
}

// Unban 解除封禁
// POST /api/v1/admin/blacklist/unban
func (h *Handler) Unban(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.blacklistService.Unban(c.Request.Context(), req.UserID); err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已解除封禁"})
}

// ListBlacklist 黑名单列表
// GET /api/v1/admin/blacklist/list
func (h *Handler) ListBlacklist(c *gin.Context) {
	entries, err := h.blacklistService.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": entries})
}

// CheckBlacklist 查询封禁状态
// GET /api/v1/admin/blacklist/check?user_id=xxx
func (h *Handler) CheckBlacklist(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	banned, entry, err := h.blacklistService.IsBlacklisted(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"banned": banned,
		"entry":  entry,
	})
}

// ============================================================
// 风控管理
// ============================================================

// ListRiskEvents 未处理风控事件
// GET /api/v1/admin/risk/events
func (h *Handler) ListRiskEvents(c *gin.Context) {
	events, err := h.riskService.ListUnhandledEvents(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": events})
}

// HandleRiskEvent 人工处理风控事件
// POST /api/v1/admin/risk/handle
func (h *Handler) HandleRiskEvent(c *gin.Context) {
	var req struct {
		EventID int64 `json:"event_id" binding:"required"`
		AdminID int64 `json:"admin_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.riskService.MarkEventHandled(c.Request.Context(), req.EventID, req.AdminID); err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已处理"})
}

// AutoHandleRisks 手动触发自动风控处置
// POST /api/v1/admin/risk/auto-handle
func (h *Handler) AutoHandleRisks(c *gin.Context) {
	result, err := h.riskService.AutoHandleRisks(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// DetectSuspicious 对指定用户做一轮风控体检
// POST /api/v1/admin/risk/detect
func (h *Handler) DetectSuspicious(c *gin.Context) {
	var req struct {
		UserID   int64  `json:"user_id" binding:"required"`
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	warnings, err := h.riskService.DetectSuspiciousActivity(c.Request.Context(), req.UserID, req.Username)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"warnings": warnings})
}

// ============================================================
// 余额更正与对账
// ============================================================

// AdjustBalanceRequest 管理员加减点数请求，正数加点负数扣点
type AdjustBalanceRequest struct {
	UserID  int64           `json:"user_id" binding:"required"`
	Delta   decimal.Decimal `json:"delta" binding:"required"`
	Reason  string          `json:"reason" binding:"required"`
	AdminID int64           `json:"admin_id" binding:"required"`
}

// AdjustBalance 管理员调整余额
// POST /api/v1/admin/account/adjust
func (h *Handler) AdjustBalance(c *gin.Context) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.walletService.ApplyDelta(c.Request.Context(), &service.DeltaRequest{
		UserID:      req.UserID,
		Delta:       req.Delta,
		Type:        model.TransactionTypeAdjust,
		Description: req.Reason + " (操作人=" + strconv.FormatInt(req.AdminID, 10) + ")",
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":       req.UserID,
		"delta":         txn.Amount,
		"balance_after": txn.BalanceAfter,
	})
}

// CorrectBalanceRequest 人工更正余额请求
type CorrectBalanceRequest struct {
	UserID  int64           `json:"user_id" binding:"required"`
	Target  decimal.Decimal `json:"target"`
	Reason  string          `json:"reason" binding:"required"`
	AdminID int64           `json:"admin_id" binding:"required"`
}

// CorrectBalance 人工更正余额到目标值
// POST /api/v1/admin/account/correct
func (h *Handler) CorrectBalance(c *gin.Context) {
	var req CorrectBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.walletService.CorrectBalance(c.Request.Context(), req.UserID, req.Target,
		req.Reason+" (操作人="+strconv.FormatInt(req.AdminID, 10)+")")
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":       req.UserID,
		"delta":         txn.Amount,
		"balance_after": txn.BalanceAfter,
	})
}

// Reconcile 单账户对账
// GET /api/v1/admin/account/reconcile?user_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	result, err := h.walletService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 报表
// ============================================================

// GetDailySummary 单日汇总
// GET /api/v1/admin/report/daily?date=2026-01-15
func (h *Handler) GetDailySummary(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.ParamError(c, "date 参数不能为空")
		return
	}

	summary, err := h.reportService.GetDailySummary(c.Request.Context(), date)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, summary)
}

// GetUserStatistics 用户画像
// GET /api/v1/admin/report/user?user_id=xxx
func (h *Handler) GetUserStatistics(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	stats, err := h.reportService.GetUserStatistics(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, stats)
}

// GetStaffStatistics 工作人员绩效
// GET /api/v1/admin/report/staff?staff_id=xxx
func (h *Handler) GetStaffStatistics(c *gin.Context) {
	staffID, err := strconv.ParseInt(c.Query("staff_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "staff_id 参数错误")
		return
	}

	stats, err := h.reportService.GetStaffStatistics(c.Request.Context(), staffID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, stats)
}

// ListOrdersByDateRange 按日期区间导出订单
// GET /api/v1/admin/report/orders?start=2026-01-01&end=2026-01-31
func (h *Handler) ListOrdersByDateRange(c *gin.Context) {
	start := c.Query("start")
	end := c.Query("end")
	if start == "" || end == "" {
		response.ParamError(c, "start/end 参数不能为空")
		return
	}

	orders, err := h.reportService.ListOrdersByDateRange(c.Request.Context(), start, end)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": orders})
}

// ListPendingOrderDetails 待处理订单明细（含等待时长）
// GET /api/v1/admin/report/pending-orders
func (h *Handler) ListPendingOrderDetails(c *gin.Context) {
	details, err := h.reportService.ListPendingOrderDetails(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": details})
}

// GetReconciliationReport 全量对账差异清单
// GET /api/v1/admin/report/reconciliation
func (h *Handler) GetReconciliationReport(c *gin.Context) {
	mismatches, err := h.reportService.GetReconciliationReport(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}

// ListSuspiciousUsers 可疑用户清单
// GET /api/v1/admin/report/suspicious-users
func (h *Handler) ListSuspiciousUsers(c *gin.Context) {
	users, err := h.reportService.DetectSuspiciousUsers(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": users})
}

// ListSuspiciousStaff 可疑工作人员清单
// GET /api/v1/admin/report/suspicious-staff
func (h *Handler) ListSuspiciousStaff(c *gin.Context) {
	staff, err := h.reportService.DetectSuspiciousStaff(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"list": staff})
}
