package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemAdminID 系统自动操作的保留管理员ID
// 永远不会分配给真实用户，审计时可区分人工与自动操作
const SystemAdminID int64 = 0

// ============================================================================
// 风险事件
// ============================================================================

const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

const (
	RiskEventRapidOrders            = "RAPID_ORDERS"              // 1小时内大量下单
	RiskEventManyPending            = "MANY_PENDING"              // 大量未完成订单
	RiskEventNegativeBalance        = "NEGATIVE_BALANCE"          // 余额为负
	RiskEventHighBalance            = "HIGH_BALANCE"              // 余额异常高
	RiskEventFrequentRefunds        = "FREQUENT_REFUNDS"          // 30天内频繁退款
	RiskEventNewAccountLargeDeposit = "NEW_ACCOUNT_LARGE_DEPOSIT" // 新账户累计大额储值
	RiskEventMaliciousRefund        = "MALICIOUS_REFUND"          // 恶意退款
	RiskEventHighRefundRate         = "HIGH_REFUND_RATE"          // 退款率过高
	RiskEventSuspectedStolenCard    = "SUSPECTED_STOLEN_CARD"     // 疑似盗刷
	RiskEventRapidDeposits          = "RAPID_DEPOSITS"            // 短时间多次储值申请
	RiskEventBlacklisted            = "BLACKLISTED"               // 加入黑名单
)

// RiskEvent 风险事件表
// 由风控检测写入，handled 标记处理状态
type RiskEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"index;not null" json:"user_id"`
	Username    string     `gorm:"type:varchar(64);not null" json:"username"`
	EventType   string     `gorm:"type:varchar(40);index;not null" json:"event_type"`
	Severity    string     `gorm:"type:varchar(10);index;not null" json:"severity"`
	Description string     `gorm:"type:varchar(512)" json:"description"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	Handled     bool       `gorm:"not null;default:false;index" json:"handled"`
	HandledBy   int64      `json:"handled_by"`
	HandledAt   *time.Time `json:"handled_at"`
}

func (RiskEvent) TableName() string {
	return "risk_event"
}

// ============================================================================
// 黑名单
// ============================================================================

// BlacklistEntry 黑名单表
// 每个用户至多一条生效纪录，重复封禁时覆盖（以最后一次为准）。
// 临时封禁到期后在查询路径上惰性删除，不做后台扫描
type BlacklistEntry struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Username    string     `gorm:"type:varchar(64);not null" json:"username"`
	Reason      string     `gorm:"type:varchar(256);not null" json:"reason"`
	BannedBy    int64      `json:"banned_by"` // 0 = 系统自动封禁
	BannedAt    time.Time  `gorm:"autoCreateTime" json:"banned_at"`
	// 默认值必须是 false：gorm 插入时会省略带 default 标签的零值字段，
	// 限时封禁的 IsPermanent=false 若靠列默认 true 会被写成永久
	BannedUntil *time.Time `json:"banned_until"` // 空 = 永久
	IsPermanent bool       `gorm:"not null;default:false" json:"is_permanent"`
	Notes       string     `gorm:"type:varchar(512)" json:"notes"`
}

func (BlacklistEntry) TableName() string {
	return "blacklist"
}

// ============================================================================
// 储值限制计数
// ============================================================================

// DepositLimit 每日储值限制计数表
// 每个 (用户, 日期) 一行，每次储值申请时累加。
// 限制的是申请频率，与申请最终是否通过无关
type DepositLimit struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64           `gorm:"not null;uniqueIndex:idx_user_date" json:"user_id"`
	DepositDate  string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_user_date" json:"deposit_date"` // YYYY-MM-DD
	DepositCount int             `gorm:"not null;default:0" json:"deposit_count"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`
}

func (DepositLimit) TableName() string {
	return "deposit_limit"
}

// SuspiciousLog 可疑操作日志表
type SuspiciousLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	Username   string    `gorm:"type:varchar(64);not null" json:"username"`
	ActionType string    `gorm:"type:varchar(40);not null" json:"action_type"`
	Details    string    `gorm:"type:varchar(512)" json:"details"`
	IPAddress  string    `gorm:"type:varchar(64)" json:"ip_address"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SuspiciousLog) TableName() string {
	return "suspicious_log"
}
