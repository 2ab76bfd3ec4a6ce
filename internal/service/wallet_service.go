package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"walletbot/internal/infrastructure/lock"
	"walletbot/internal/model"
	"walletbot/internal/repository"
	"walletbot/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 钱包服务
// ============================================================================
//
// 【核心不变量】余额 == 该用户全部流水金额之和
//
// 任何改余额的路径都必须走 applyDelta：
// 余额更新 + 流水落账在同一事务内，要么都成功要么都回滚，
// 绝不允许出现"余额变了但没有流水"或反过来的中间态
//
// ============================================================================

type WalletService struct {
	db              *gorm.DB
	redisClient     *redis.Client // 允许为 nil（单机/测试环境退化为无锁）
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	depositRepo     *repository.DepositRepository
}

func NewWalletService(db *gorm.DB, redisClient *redis.Client) *WalletService {
	return &WalletService{
		db:              db,
		redisClient:     redisClient,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		depositRepo:     repository.NewDepositRepository(db),
	}
}

// Register 注册账户；重复注册幂等返回既有账户，created 供调用方区分提示
func (s *WalletService) Register(ctx context.Context, userID int64, username string) (*model.Account, bool, error) {
	account, created, err := s.accountRepo.GetOrCreate(ctx, userID, username)
	if err != nil {
		return nil, false, fmt.Errorf("注册账户失败: %w", err)
	}
	if created {
		log.Printf("新注册账户: userID=%d, username=%s", userID, username)
	}
	return account, created, nil
}

func (s *WalletService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetByUserID(ctx, userID)
}

func (s *WalletService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// DeltaRequest 余额变动请求
type DeltaRequest struct {
	UserID        int64
	Delta         decimal.Decimal // 正数入账，负数扣款
	Type          string          // 流水类型
	Description   string
	AllowNegative bool   // 人工更正允许扣成负数
	RecordDeposit bool   // 储值类变动额外落一条储值记录
	DepositMethod string // RecordDeposit=true 时的结算方式
}

// ApplyDelta 对外入口：加锁 + 独立事务执行一次余额变动
func (s *WalletService) ApplyDelta(ctx context.Context, req *DeltaRequest) (*model.AccountTransaction, error) {
	if s.redisClient != nil {
		walletLock := lock.NewWalletLock(s.redisClient, req.UserID, idgen.GenerateTransactionNo())
		if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer walletLock.Unlock(ctx)
	}

	var txn *model.AccountTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.ApplyDeltaTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("余额变动: userID=%d, delta=%s, type=%s", req.UserID, req.Delta.String(), req.Type)
	return txn, nil
}

// ApplyDeltaTx 在调用方事务内执行余额变动（订单、储值审批等复合操作复用）
//
// 扣款默认带 balance >= ? 守卫防透支；流水的 before/after
// 以守卫更新成功后的账户快照回推，保证与实际落库一致
func (s *WalletService) ApplyDeltaTx(ctx context.Context, tx *gorm.DB, req *DeltaRequest) (*model.AccountTransaction, error) {
	if req.Delta.IsZero() {
		return nil, fmt.Errorf("变动金额不能为零")
	}

	if err := s.accountRepo.AddBalance(ctx, tx, req.UserID, req.Delta, req.AllowNegative); err != nil {
		return nil, err
	}

	// 更新后回读，before 从落库值回推，避免并发变动让流水与余额脱节
	account, err := s.accountRepo.GetByUserIDTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	txn := &model.AccountTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        req.UserID,
		Amount:        req.Delta,
		Type:          req.Type,
		Description:   req.Description,
		BalanceBefore: account.Balance.Sub(req.Delta),
		BalanceAfter:  account.Balance,
	}
	if err := s.transactionRepo.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	if req.RecordDeposit {
		deposit := &model.Deposit{
			UserID: req.UserID,
			Amount: req.Delta,
			Method: req.DepositMethod,
			Status: model.DepositStatusCompleted,
		}
		if err := s.depositRepo.CreateDeposit(ctx, tx, deposit); err != nil {
			return nil, fmt.Errorf("记录储值失败: %w", err)
		}
	}

	return txn, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, userID int64, limit int) ([]model.AccountTransaction, error) {
	if _, err := s.accountRepo.GetByUserID(ctx, userID); err != nil {
		return nil, err
	}
	return s.transactionRepo.ListByUser(ctx, userID, limit)
}

// ListDeposits 查询已入账储值记录（与储值申请是两回事，只含审批通过的）
func (s *WalletService) ListDeposits(ctx context.Context, userID int64, limit int) ([]model.Deposit, error) {
	if _, err := s.accountRepo.GetByUserID(ctx, userID); err != nil {
		return nil, err
	}
	return s.depositRepo.ListDepositsByUser(ctx, userID, limit)
}

// LeaderboardEntry 积分排行榜条目
type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

// Leaderboard 按余额取前 N 名
func (s *WalletService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	accounts, err := s.accountRepo.ListTopBalances(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(accounts))
	for i, account := range accounts {
		entries = append(entries, LeaderboardEntry{
			Rank:     i + 1,
			UserID:   account.UserID,
			Username: account.Username,
			Balance:  account.Balance,
		})
	}
	return entries, nil
}

// ReconcileResult 单账户对账结果
type ReconcileResult struct {
	UserID          int64           `json:"user_id"`
	Username        string          `json:"username"`
	Balance         decimal.Decimal `json:"balance"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	Difference      decimal.Decimal `json:"difference"`
	Consistent      bool            `json:"consistent"`
}

// Reconcile 核对单个账户：余额 vs 流水合计
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	expected, err := s.transactionRepo.SumByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("统计流水失败: %w", err)
	}

	diff := account.Balance.Sub(expected)
	return &ReconcileResult{
		UserID:          account.UserID,
		Username:        account.Username,
		Balance:         account.Balance,
		ExpectedBalance: expected,
		Difference:      diff,
		Consistent:      diff.IsZero(),
	}, nil
}

// ReconcileAll 全量对账，只返回有差异的账户
func (s *WalletService) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	accounts, err := s.accountRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var mismatches []ReconcileResult
	for _, account := range accounts {
		result, err := s.Reconcile(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		if !result.Consistent {
			mismatches = append(mismatches, *result)
		}
	}
	return mismatches, nil
}

// CorrectBalance 人工更正：把余额调整到目标值，差额以更正流水落账
func (s *WalletService) CorrectBalance(ctx context.Context, userID int64, target decimal.Decimal, reason string) (*model.AccountTransaction, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	delta := target.Sub(account.Balance)
	if delta.IsZero() {
		return nil, fmt.Errorf("余额无需更正")
	}

	return s.ApplyDelta(ctx, &DeltaRequest{
		UserID:        userID,
		Delta:         delta,
		Type:          model.TransactionTypeCorrection,
		Description:   fmt.Sprintf("人工更正: %s", reason),
		AllowNegative: true,
	})
}
