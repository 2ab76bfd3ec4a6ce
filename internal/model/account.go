package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 用户钱包账户表
// 记录用户的点数余额，是整个钱包系统的核心数据
type Account struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`                  // 平台用户ID，业务方传入
	Username  string          `gorm:"type:varchar(64);not null" json:"username"`            // 用户名快照，仅用于展示，不作为键
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // 当前余额（点数）
	Version   int             `gorm:"not null;default:0" json:"version"`                    // 每次余额变动递增
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`                     // 注册时间，用于新账户判定
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// NewAccountDays 注册未满该天数的账户按新账户处理，适用更严格的风控限制
const NewAccountDays = 7

// IsNew 判断账户是否为新账户（注册未满7天）
func (a *Account) IsNew(now time.Time) bool {
	return now.Sub(a.CreatedAt) < NewAccountDays*24*time.Hour
}
