package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit    = "DEPOSIT"    // 储值入账
	TransactionTypePurchase   = "PURCHASE"   // 消费（扣款）
	TransactionTypeRefund     = "REFUND"     // 退款
	TransactionTypeAdjust     = "ADJUST"     // 管理员调整
	TransactionTypeCorrection = "CORRECTION" // 对账修正
)

// ============================================================================
// 账户流水实体
// ============================================================================

// AccountTransaction 账户流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. 账户余额必须恒等于该账户全部流水金额之和 —— 违反即为程序缺陷
type AccountTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64           `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`                   // 金额（正数入账，负数出账）
	Type          string          `gorm:"type:varchar(20);index;not null" json:"type"`                 // 交易类型
	Description   string          `gorm:"type:varchar(256)" json:"description"`                        // 说明
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`           // 交易前余额
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`            // 交易后余额
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AccountTransaction) TableName() string {
	return "account_transaction"
}
