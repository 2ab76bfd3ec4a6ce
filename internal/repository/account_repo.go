package repository

import (
	"context"
	"errors"

	"walletbot/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByUserIDTx 事务内读取账户，tx 为 nil 时退化为普通读取
func (r *AccountRepository) GetByUserIDTx(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 获取账户，不存在则以零余额创建（幂等注册）
// 并发重复创建由 user_id 唯一索引 + DoNothing 吸收
// GetOrCreate 取回或建立账户，返回值 created 区分本次是否新建
// （重复注册是合法操作，但调用方要能据此提示"已注册"）
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64, username string) (*model.Account, bool, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		if username != "" && account.Username != username {
			// 昵称变更时顺带刷新，失败不影响主流程
			r.db.WithContext(ctx).Model(&model.Account{}).
				Where("user_id = ?", userID).
				Update("username", username)
			account.Username = username
		}
		return account, false, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	newAccount := &model.Account{
		UserID:   userID,
		Username: username,
		Balance:  decimal.Zero,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount)
	if result.Error != nil {
		return nil, false, result.Error
	}

	// 并发注册时 DoNothing 不落行，此时按既有账户返回
	created := result.RowsAffected > 0

	account, err = r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return account, created, nil
}

// AddBalance 原子增减余额，delta 可为负
// allowNegative=false 时通过 WHERE balance >= ? 防止透支
func (r *AccountRepository) AddBalance(ctx context.Context, tx *gorm.DB, userID int64, delta decimal.Decimal, allowNegative bool) error {
	if tx == nil {
		tx = r.db
	}

	query := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID)

	if delta.IsNegative() && !allowNegative {
		query = query.Where("balance >= ?", delta.Neg())
	}

	result := query.Updates(map[string]interface{}{
		"balance": gorm.Expr("balance + ?", delta),
		"version": gorm.Expr("version + 1"),
	})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.GetByUserIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if delta.IsNegative() && account.Balance.LessThan(delta.Neg()) {
			return ErrBalanceNotEnough
		}
		return ErrAccountNotFound
	}

	return nil
}

// ListNegativeBalance 查询所有余额为负的账户（对账与风控共用）
func (r *AccountRepository) ListNegativeBalance(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.WithContext(ctx).
		Where("balance < ?", decimal.Zero).
		Find(&accounts).Error
	return accounts, err
}

// ListHighBalance 查询余额超过阈值的账户
func (r *AccountRepository) ListHighBalance(ctx context.Context, threshold decimal.Decimal) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.WithContext(ctx).
		Where("balance > ?", threshold).
		Find(&accounts).Error
	return accounts, err
}

// ListTopBalances 余额排行，用于积分排行榜
func (r *AccountRepository) ListTopBalances(ctx context.Context, limit int) ([]model.Account, error) {
	if limit <= 0 {
		limit = 10
	}
	var accounts []model.Account
	err := r.db.WithContext(ctx).
		Order("balance DESC, user_id").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) ListAll(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.WithContext(ctx).Order("user_id").Find(&accounts).Error
	return accounts, err
}
