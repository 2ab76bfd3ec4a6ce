package repository

import (
	"context"
	"errors"
	"time"

	"walletbot/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不允许此操作")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	return r.GetByOrderNoTx(ctx, nil, orderNo)
}

// GetByOrderNoTx 事务内读取；守卫更新失败后的区分回读必须走同一事务，
// 否则会撞上事务自身的写锁
func (r *OrderRepository) GetByOrderNoTx(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 状态机守卫更新：只在当前状态允许流转时生效
// RowsAffected=0 说明订单不存在或已被并发流转，交给调用方区分
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{"status": toStatus}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByOrderNoTx(ctx, tx, orderNo); err != nil {
			return err
		}
		return ErrOrderStatusInvalid
	}

	return nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByStaff(ctx context.Context, staffID int64, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("staff_id = ?", staffID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at").
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByDateRange(ctx context.Context, start, end time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) CountByUserSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *OrderRepository) CountByUserAndStatus(ctx context.Context, userID int64, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count, err
}

func (r *OrderRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ===================== 分润 =====================

type CommissionRepository struct {
	db *gorm.DB
}

func NewCommissionRepository(db *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// Create 写入分润记录，order_no 唯一索引保证一单至多一条
// 重复完成时 DoNothing，由订单状态守卫兜底
func (r *CommissionRepository) Create(ctx context.Context, tx *gorm.DB, commission *model.Commission) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_no"}},
			DoNothing: true,
		}).
		Create(commission).Error
}

func (r *CommissionRepository) ListByStaff(ctx context.Context, staffID int64, limit int) ([]model.Commission, error) {
	if limit <= 0 {
		limit = 20
	}
	var commissions []model.Commission
	err := r.db.WithContext(ctx).
		Where("staff_id = ?", staffID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&commissions).Error
	return commissions, err
}

func (r *CommissionRepository) ListByDateRange(ctx context.Context, start, end time.Time) ([]model.Commission, error) {
	var commissions []model.Commission
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Find(&commissions).Error
	return commissions, err
}
