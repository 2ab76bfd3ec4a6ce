package repository

import (
	"context"
	"errors"
	"time"

	"walletbot/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRiskEventNotFound = errors.New("风控事件不存在")
	ErrRiskEventHandled  = errors.New("风控事件已处理")
	ErrNotBlacklisted    = errors.New("用户不在黑名单中")
)

// ===================== 风控事件 =====================

type RiskEventRepository struct {
	db *gorm.DB
}

func NewRiskEventRepository(db *gorm.DB) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

func (r *RiskEventRepository) Create(ctx context.Context, tx *gorm.DB, event *model.RiskEvent) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(event).Error
}

func (r *RiskEventRepository) GetByID(ctx context.Context, id int64) (*model.RiskEvent, error) {
	return r.GetByIDTx(ctx, nil, id)
}

// GetByIDTx 事务内读取；守卫更新失败后的区分回读必须走同一事务，
// 否则会撞上事务自身的写锁
func (r *RiskEventRepository) GetByIDTx(ctx context.Context, tx *gorm.DB, id int64) (*model.RiskEvent, error) {
	if tx == nil {
		tx = r.db
	}
	var event model.RiskEvent
	err := tx.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRiskEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *RiskEventRepository) ListUnhandled(ctx context.Context) ([]model.RiskEvent, error) {
	var events []model.RiskEvent
	err := r.db.WithContext(ctx).
		Where("handled = ?", false).
		Order("created_at").
		Find(&events).Error
	return events, err
}

// ListUnhandledCriticalSince 自动风控扫描入口：
// 回溯窗口内仍无人处理的 critical 事件
func (r *RiskEventRepository) ListUnhandledCriticalSince(ctx context.Context, since time.Time) ([]model.RiskEvent, error) {
	var events []model.RiskEvent
	err := r.db.WithContext(ctx).
		Where("handled = ? AND severity = ? AND created_at >= ?", false, model.SeverityCritical, since).
		Order("created_at").
		Find(&events).Error
	return events, err
}

// MarkHandled 守卫更新，已处理的事件不可重复处理
func (r *RiskEventRepository) MarkHandled(ctx context.Context, tx *gorm.DB, id int64, handledBy int64) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.RiskEvent{}).
		Where("id = ? AND handled = ?", id, false).
		Updates(map[string]interface{}{
			"handled":    true,
			"handled_by": handledBy,
			"handled_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByIDTx(ctx, tx, id); err != nil {
			return err
		}
		return ErrRiskEventHandled
	}

	return nil
}

func (r *RiskEventRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.RiskEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var events []model.RiskEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// CountByUserAndTypeSince 按事件类型统计窗口内次数（恶意退款累犯判定）
func (r *RiskEventRepository) CountByUserAndTypeSince(ctx context.Context, userID int64, eventType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RiskEvent{}).
		Where("user_id = ? AND event_type = ? AND created_at >= ?", userID, eventType, since).
		Count(&count).Error
	return count, err
}

// ===================== 黑名单 =====================

type BlacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Upsert 封禁写入，同一用户重复封禁以最新一次为准
func (r *BlacklistRepository) Upsert(ctx context.Context, tx *gorm.DB, entry *model.BlacklistEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "reason", "banned_by", "banned_at",
				"banned_until", "is_permanent", "notes",
			}),
		}).
		Create(entry).Error
}

// GetActive 查询生效中的封禁；到期的限时封禁在读取时惰性删除，
// 删除后视作不在黑名单
func (r *BlacklistRepository) GetActive(ctx context.Context, userID int64, now time.Time) (*model.BlacklistEntry, error) {
	var entry model.BlacklistEntry
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotBlacklisted
		}
		return nil, err
	}

	if !entry.IsPermanent && entry.BannedUntil != nil && !entry.BannedUntil.After(now) {
		if err := r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Delete(&model.BlacklistEntry{}).Error; err != nil {
			return nil, err
		}
		return nil, ErrNotBlacklisted
	}

	return &entry, nil
}

func (r *BlacklistRepository) Remove(ctx context.Context, userID int64) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.BlacklistEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotBlacklisted
	}
	return nil
}

func (r *BlacklistRepository) ListAll(ctx context.Context) ([]model.BlacklistEntry, error) {
	var entries []model.BlacklistEntry
	err := r.db.WithContext(ctx).Order("banned_at DESC").Find(&entries).Error
	return entries, err
}

// ===================== 储值频控 =====================

type DepositLimitRepository struct {
	db *gorm.DB
}

func NewDepositLimitRepository(db *gorm.DB) *DepositLimitRepository {
	return &DepositLimitRepository{db: db}
}

// GetByUserDate 查询当日频控计数，无记录返回 nil 而非错误
func (r *DepositLimitRepository) GetByUserDate(ctx context.Context, userID int64, date string) (*model.DepositLimit, error) {
	var limit model.DepositLimit
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deposit_date = ?", userID, date).
		First(&limit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &limit, nil
}

// RecordAttempt 累加当日申请次数与金额，首次申请插入新行
// (user_id, deposit_date) 唯一索引保证并发下每次调用恰好累加一次
func (r *DepositLimitRepository) RecordAttempt(ctx context.Context, tx *gorm.DB, userID int64, date string, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "deposit_date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"deposit_count": gorm.Expr("deposit_count + 1"),
				"total_amount":  gorm.Expr("total_amount + ?", amount),
			}),
		}).
		Create(&model.DepositLimit{
			UserID:       userID,
			DepositDate:  date,
			DepositCount: 1,
			TotalAmount:  amount,
		}).Error
}

// ===================== 可疑行为日志 =====================

type SuspiciousLogRepository struct {
	db *gorm.DB
}

func NewSuspiciousLogRepository(db *gorm.DB) *SuspiciousLogRepository {
	return &SuspiciousLogRepository{db: db}
}

func (r *SuspiciousLogRepository) Create(ctx context.Context, logEntry *model.SuspiciousLog) error {
	return r.db.WithContext(ctx).Create(logEntry).Error
}

func (r *SuspiciousLogRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.SuspiciousLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []model.SuspiciousLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
