package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusRefunded  = "refunded"
)

// ValidStatusTransitions 订单状态机
// pending 之后只能进入 completed 或 refunded，两者均为终态
var ValidStatusTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusCompleted, OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Order 商城订单表
// 分润比例在下单时快照，后续调价不影响已有订单
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	Username       string          `gorm:"type:varchar(64);not null" json:"username"`
	ItemName       string          `gorm:"type:varchar(128);not null" json:"item_name"`
	ItemPrice      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"item_price"`
	Quantity       int             `gorm:"not null;default:1" json:"quantity"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_price"`
	Status         string          `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	Note           string          `gorm:"type:varchar(512)" json:"note"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
	StaffID        int64           `gorm:"index" json:"staff_id"`                                // 接单工作人员
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_rate"`    // 下单时快照
	StaffEarning   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"staff_earning"`     // 总价 × 分润比例
	PlatformFee    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"platform_fee"`      // 总价 − 工作人员收入
	CommissionPaid bool            `gorm:"not null;default:false" json:"commission_paid"`        // 防止重复发放分润
}

func (Order) TableName() string {
	return "shop_order"
}

// Commission 分润纪录表
// 订单完成时写入，每笔订单至多一条
type Commission struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	StaffID        int64           `gorm:"index;not null" json:"staff_id"`
	StaffName      string          `gorm:"type:varchar(64)" json:"staff_name"`
	OrderAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"order_amount"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_rate"`
	StaffEarning   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"staff_earning"`
	PlatformFee    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"platform_fee"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Commission) TableName() string {
	return "commission"
}
