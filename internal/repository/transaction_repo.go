package repository

import (
	"context"
	"time"

	"walletbot/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, txn *model.AccountTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.AccountTransaction, error) {
	if limit <= 0 {
		limit = 10
	}
	var txns []model.AccountTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// SumByUser 账户流水净额合计，对账用：余额应等于全部流水之和
func (r *TransactionRepository) SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *TransactionRepository) CountByUserAndType(ctx context.Context, userID int64, txnType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, txnType, since).
		Count(&count).Error
	return count, err
}

// SumDepositsByUser 账户历史储值总额（入账点数口径），新账户大额判定用
func (r *TransactionRepository) SumDepositsByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&model.AccountTransaction{}).
		Where("user_id = ? AND type = ?", userID, model.TransactionTypeDeposit).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
