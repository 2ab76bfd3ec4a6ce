package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DepositStatusCompleted = "completed"

	DepositRequestStatusPending  = "pending"
	DepositRequestStatusApproved = "approved"
	DepositRequestStatusRejected = "rejected"
)

// Deposit 储值纪录表
// 只记录已确认入账的储值，作为储值类流水的附属纪录产生
type Deposit struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method    string          `gorm:"type:varchar(64)" json:"method"` // 结算方式标签，如 银行转账
	Status    string          `gorm:"type:varchar(20);not null;default:completed" json:"status"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Deposit) TableName() string {
	return "deposit"
}

// DepositRequest 储值申请表
// 用户提交转账凭证后进入 pending，由管理员审核。
// pending → approved / rejected 均为终态，不允许再次处理
type DepositRequest struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	Username      string          `gorm:"type:varchar(64);not null" json:"username"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`       // 用户声称的转账金额
	BonusPoints   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bonus_points"` // 按方案计算的实际入账点数
	ScreenshotURL string          `gorm:"type:varchar(512)" json:"screenshot_url"`         // 付款凭证
	Status        string          `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at"`
	ProcessedBy   int64           `json:"processed_by"`
	RejectReason  string          `gorm:"type:varchar(256)" json:"reject_reason"` // 仅拒绝时填写
}

func (DepositRequest) TableName() string {
	return "deposit_request"
}
