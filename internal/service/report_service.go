package service

import (
	"context"
	"fmt"
	"time"

	"walletbot/internal/model"
	"walletbot/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportService 报表与对账
// 全部只读派生视图，直接聚合查询不经过业务服务
type ReportService struct {
	db        *gorm.DB
	walletSvc *WalletService
}

func NewReportService(db *gorm.DB, walletSvc *WalletService) *ReportService {
	return &ReportService{db: db, walletSvc: walletSvc}
}

// DailySummary 单日经营汇总
type DailySummary struct {
	Date            string          `json:"date"`
	OrderCount      int64           `json:"order_count"`
	CompletedOrders int64           `json:"completed_orders"`
	PendingOrders   int64           `json:"pending_orders"`
	RefundedOrders  int64           `json:"refunded_orders"`
	OrderTotal      decimal.Decimal `json:"order_total"`
	StaffEarnings   decimal.Decimal `json:"staff_earnings"`
	PlatformFees    decimal.Decimal `json:"platform_fees"`
	DepositTotal    decimal.Decimal `json:"deposit_total"`
	NewAccounts     int64           `json:"new_accounts"`
}

func (s *ReportService) GetDailySummary(ctx context.Context, date string) (*DailySummary, error) {
	start, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("日期格式错误，应为 YYYY-MM-DD: %w", err)
	}
	end := start.AddDate(0, 0, 1)

	summary := &DailySummary{
		Date:          date,
		OrderTotal:    decimal.Zero,
		StaffEarnings: decimal.Zero,
		PlatformFees:  decimal.Zero,
		DepositTotal:  decimal.Zero,
	}

	orderQuery := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("created_at >= ? AND created_at < ?", start, end)
	if err := orderQuery.Count(&summary.OrderCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("created_at >= ? AND created_at < ? AND status = ?", start, end, model.OrderStatusCompleted).
		Count(&summary.CompletedOrders).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("created_at >= ? AND created_at < ? AND status = ?", start, end, model.OrderStatusPending).
		Count(&summary.PendingOrders).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("created_at >= ? AND created_at < ? AND status = ?", start, end, model.OrderStatusRefunded).
		Count(&summary.RefundedOrders).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&summary.OrderTotal).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Select("COALESCE(SUM(staff_earning), 0)").
		Scan(&summary.StaffEarnings).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Select("COALESCE(SUM(platform_fee), 0)").
		Scan(&summary.PlatformFees).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Deposit{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&summary.DepositTotal).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Account{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&summary.NewAccounts).Error; err != nil {
		return nil, err
	}

	return summary, nil
}

// UserStatistics 单用户画像
type UserStatistics struct {
	UserID       int64           `json:"user_id"`
	Username     string          `json:"username"`
	Balance      decimal.Decimal `json:"balance"`
	RegisteredAt time.Time       `json:"registered_at"`
	OrderCount   int64           `json:"order_count"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	DepositTotal decimal.Decimal `json:"deposit_total"`
	RefundCount  int64           `json:"refund_count"`
}

func (s *ReportService) GetUserStatistics(ctx context.Context, userID int64) (*UserStatistics, error) {
	var account model.Account
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, repository.ErrAccountNotFound
		}
		return nil, err
	}

	stats := &UserStatistics{
		UserID:       account.UserID,
		Username:     account.Username,
		Balance:      account.Balance,
		RegisteredAt: account.CreatedAt,
		TotalSpent:   decimal.Zero,
		DepositTotal: decimal.Zero,
	}

	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&stats.OrderCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ? AND status <> ?", userID, model.OrderStatusRefunded).
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&stats.TotalSpent).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Deposit{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.DepositTotal).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.AccountTransaction{}).
		Where("user_id = ? AND type = ?", userID, model.TransactionTypeRefund).
		Count(&stats.RefundCount).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// StaffStatistics 工作人员绩效
type StaffStatistics struct {
	StaffID         int64           `json:"staff_id"`
	StaffName       string          `json:"staff_name"`
	CompletedOrders int64           `json:"completed_orders"`
	TotalEarning    decimal.Decimal `json:"total_earning"`
	OrderTotal      decimal.Decimal `json:"order_total"`
}

func (s *ReportService) GetStaffStatistics(ctx context.Context, staffID int64) (*StaffStatistics, error) {
	stats := &StaffStatistics{
		StaffID:      staffID,
		TotalEarning: decimal.Zero,
		OrderTotal:   decimal.Zero,
	}

	if err := s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("staff_id = ?", staffID).
		Count(&stats.CompletedOrders).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("staff_id = ?", staffID).
		Select("COALESCE(SUM(staff_earning), 0)").
		Scan(&stats.TotalEarning).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("staff_id = ?", staffID).
		Select("COALESCE(SUM(order_amount), 0)").
		Scan(&stats.OrderTotal).Error; err != nil {
		return nil, err
	}

	var latest model.Commission
	if err := s.db.WithContext(ctx).
		Where("staff_id = ?", staffID).
		Order("created_at DESC").
		First(&latest).Error; err == nil {
		stats.StaffName = latest.StaffName
	}

	return stats, nil
}

// OrderDetail 订单明细（含分润信息）
type OrderDetail struct {
	Order      model.Order       `json:"order"`
	Commission *model.Commission `json:"commission,omitempty"`
}

func (s *ReportService) GetOrderDetail(ctx context.Context, orderNo string) (*OrderDetail, error) {
	var order model.Order
	if err := s.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, repository.ErrOrderNotFound
		}
		return nil, err
	}

	detail := &OrderDetail{Order: order}
	var commission model.Commission
	if err := s.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&commission).Error; err == nil {
		detail.Commission = &commission
	}
	return detail, nil
}

// ListOrdersByDateRange 按日期区间导出订单
func (s *ReportService) ListOrdersByDateRange(ctx context.Context, startDate, endDate string) ([]model.Order, error) {
	start, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("开始日期格式错误: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", endDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("结束日期格式错误: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("结束日期不能早于开始日期")
	}

	var orders []model.Order
	err = s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end.AddDate(0, 0, 1)).
		Order("created_at").
		Find(&orders).Error
	return orders, err
}

// GetReconciliationReport 全量对账（余额 vs 流水合计），返回差异清单
// PendingOrderDetail 待处理订单明细，等待时长用于催单
type PendingOrderDetail struct {
	Order        model.Order `json:"order"`
	WaitingHours float64     `json:"waiting_hours"`
}

func (s *ReportService) ListPendingOrderDetails(ctx context.Context) ([]PendingOrderDetail, error) {
	var orders []model.Order
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusPending).
		Order("created_at").
		Find(&orders).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	details := make([]PendingOrderDetail, 0, len(orders))
	for _, order := range orders {
		details = append(details, PendingOrderDetail{
			Order:        order,
			WaitingHours: now.Sub(order.CreatedAt).Hours(),
		})
	}
	return details, nil
}

func (s *ReportService) GetReconciliationReport(ctx context.Context) ([]ReconcileResult, error) {
	return s.walletSvc.ReconcileAll(ctx)
}

// SuspiciousAccount 可疑账户摘要
type SuspiciousAccount struct {
	UserID      int64           `json:"user_id"`
	Username    string          `json:"username"`
	Balance     decimal.Decimal `json:"balance"`
	Reason      string          `json:"reason"`
	EventCount  int64           `json:"event_count"`
	RefundCount int64           `json:"refund_count"`
}

// DetectSuspiciousUsers 可疑用户清单：余额异常 + 未处理事件聚集
func (s *ReportService) DetectSuspiciousUsers(ctx context.Context) ([]SuspiciousAccount, error) {
	var suspicious []SuspiciousAccount
	seen := make(map[int64]bool)

	var negatives []model.Account
	if err := s.db.WithContext(ctx).
		Where("balance < ?", decimal.Zero).
		Find(&negatives).Error; err != nil {
		return nil, err
	}
	for _, account := range negatives {
		seen[account.UserID] = true
		suspicious = append(suspicious, SuspiciousAccount{
			UserID:   account.UserID,
			Username: account.Username,
			Balance:  account.Balance,
			Reason:   "余额为负",
		})
	}

	var highs []model.Account
	if err := s.db.WithContext(ctx).
		Where("balance > ?", decimal.NewFromInt(50000)).
		Find(&highs).Error; err != nil {
		return nil, err
	}
	for _, account := range highs {
		if seen[account.UserID] {
			continue
		}
		seen[account.UserID] = true
		suspicious = append(suspicious, SuspiciousAccount{
			UserID:   account.UserID,
			Username: account.Username,
			Balance:  account.Balance,
			Reason:   "余额异常高",
		})
	}

	// 未处理事件 >=3 条的账户
	type eventAgg struct {
		UserID   int64
		Username string
		Cnt      int64
	}
	var aggs []eventAgg
	if err := s.db.WithContext(ctx).Model(&model.RiskEvent{}).
		Select("user_id, username, COUNT(*) as cnt").
		Where("handled = ?", false).
		Group("user_id, username").
		Having("COUNT(*) >= ?", 3).
		Scan(&aggs).Error; err != nil {
		return nil, err
	}
	for _, agg := range aggs {
		if seen[agg.UserID] {
			continue
		}
		suspicious = append(suspicious, SuspiciousAccount{
			UserID:     agg.UserID,
			Username:   agg.Username,
			Reason:     "未处理风控事件聚集",
			EventCount: agg.Cnt,
		})
	}

	return suspicious, nil
}

// SuspiciousStaff 可疑工作人员：名下订单的买家频繁触发风控
type SuspiciousStaff struct {
	StaffID        int64 `json:"staff_id"`
	CompletedCount int64 `json:"completed_count"`
	RiskyBuyers    int64 `json:"risky_buyers"`
}

func (s *ReportService) DetectSuspiciousStaff(ctx context.Context) ([]SuspiciousStaff, error) {
	var results []SuspiciousStaff
	err := s.db.WithContext(ctx).Raw(`
		SELECT o.staff_id AS staff_id,
		       COUNT(DISTINCT o.order_no) AS completed_count,
		       COUNT(DISTINCT r.user_id) AS risky_buyers
		FROM shop_order o
		JOIN risk_event r ON r.user_id = o.user_id
		WHERE o.status = ? AND o.staff_id <> 0
		GROUP BY o.staff_id
		HAVING COUNT(DISTINCT r.user_id) >= ?
	`, model.OrderStatusCompleted, 2).Scan(&results).Error
	return results, err
}
