package repository

import (
	"context"
	"errors"
	"time"

	"walletbot/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrDepositRequestNotFound = errors.New("储值申请不存在")
	ErrDepositRequestHandled  = errors.New("储值申请已处理")
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// CreateDeposit 写入已入账储值记录（审批通过时与流水同事务写入）
func (r *DepositRepository) CreateDeposit(ctx context.Context, tx *gorm.DB, deposit *model.Deposit) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(deposit).Error
}

func (r *DepositRepository) SumDepositsByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&model.Deposit{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// ===================== 储值申请 =====================

func (r *DepositRepository) ListDepositsByUser(ctx context.Context, userID int64, limit int) ([]model.Deposit, error) {
	if limit <= 0 {
		limit = 10
	}
	var deposits []model.Deposit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&deposits).Error
	return deposits, err
}

func (r *DepositRepository) CreateRequest(ctx context.Context, request *model.DepositRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *DepositRepository) GetRequestByID(ctx context.Context, id int64) (*model.DepositRequest, error) {
	return r.GetRequestByIDTx(ctx, nil, id)
}

// GetRequestByIDTx 事务内读取；守卫更新失败后的区分回读必须走同一事务，
// 否则会撞上事务自身的写锁
func (r *DepositRepository) GetRequestByIDTx(ctx context.Context, tx *gorm.DB, id int64) (*model.DepositRequest, error) {
	if tx == nil {
		tx = r.db
	}
	var request model.DepositRequest
	err := tx.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepositRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

// UpdateRequestStatus 终态守卫：只允许 pending → approved/rejected，
// RowsAffected=0 即已被并发处理，审批/驳回均不可重复生效
func (r *DepositRepository) UpdateRequestStatus(ctx context.Context, tx *gorm.DB, id int64, toStatus string, processedBy int64, rejectReason string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.DepositRequest{}).
		Where("id = ? AND status = ?", id, model.DepositRequestStatusPending).
		Updates(map[string]interface{}{
			"status":        toStatus,
			"processed_at":  &now,
			"processed_by":  processedBy,
			"reject_reason": rejectReason,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetRequestByIDTx(ctx, tx, id); err != nil {
			return err
		}
		return ErrDepositRequestHandled
	}

	return nil
}

func (r *DepositRepository) ListPendingRequests(ctx context.Context) ([]model.DepositRequest, error) {
	var requests []model.DepositRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", model.DepositRequestStatusPending).
		Order("created_at").
		Find(&requests).Error
	return requests, err
}

func (r *DepositRepository) ListRequestsByUser(ctx context.Context, userID int64, limit int) ([]model.DepositRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	var requests []model.DepositRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (r *DepositRepository) CountRequestsByUserSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.DepositRequest{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}
