package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"walletbot/internal/config"
	"walletbot/internal/model"
	"walletbot/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrDepositLimitExceeded = errors.New("储值频控拦截")

// DepositService 储值申请工作流
//
// 状态机：pending -> approved | rejected，均为终态不可逆
// 提交不动钱包；审批通过才走储值类 applyDelta 入账
type DepositService struct {
	db           *gorm.DB
	cfg          *config.Config
	walletSvc    *WalletService
	riskSvc      *RiskService
	blacklistSvc *BlacklistService
	depositRepo  *repository.DepositRepository
	outboxRepo   *repository.OutboxRepository
}

func NewDepositService(db *gorm.DB, cfg *config.Config, walletSvc *WalletService, riskSvc *RiskService, blacklistSvc *BlacklistService) *DepositService {
	return &DepositService{
		db:           db,
		cfg:          cfg,
		walletSvc:    walletSvc,
		riskSvc:      riskSvc,
		blacklistSvc: blacklistSvc,
		depositRepo:  repository.NewDepositRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

type SubmitDepositRequest struct {
	UserID        int64           `json:"user_id" binding:"required"`
	Username      string          `json:"username"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	ScreenshotURL string          `json:"screenshot_url"`
}

type SubmitDepositResponse struct {
	RequestID   int64           `json:"request_id"`
	Amount      decimal.Decimal `json:"amount"`
	BonusPoints decimal.Decimal `json:"bonus_points"`
	Status      string          `json:"status"`
	RiskFlagged bool            `json:"risk_flagged,omitempty"`
}

// Submit 提交储值申请
// 门禁顺序：黑名单 -> 频控 -> 盗刷检查（只记录）-> 落单与计数同事务
func (s *DepositService) Submit(ctx context.Context, req *SubmitDepositRequest) (*SubmitDepositResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("储值金额必须为正数")
	}

	banned, entry, err := s.blacklistSvc.IsBlacklisted(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, fmt.Errorf("%w: %s", ErrUserBanned, entry.Reason)
	}

	account, _, err := s.walletSvc.Register(ctx, req.UserID, req.Username)
	if err != nil {
		return nil, err
	}

	limitResult, err := s.riskSvc.CheckDepositLimit(ctx, account)
	if err != nil {
		return nil, err
	}
	if !limitResult.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrDepositLimitExceeded, limitResult.Reason)
	}

	// 盗刷嫌疑只记录事件，不拦截本次提交（自动处置会在窗口内跟进）
	flagged, _, err := s.riskSvc.CheckStolenCard(ctx, account, req.Amount)
	if err != nil {
		return nil, err
	}

	bonusPoints := s.cfg.Deposit.BonusPoints(req.Amount)
	request := &model.DepositRequest{
		UserID:        req.UserID,
		Username:      req.Username,
		Amount:        req.Amount,
		BonusPoints:   bonusPoints,
		ScreenshotURL: req.ScreenshotURL,
		Status:        model.DepositRequestStatusPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(request).Error; err != nil {
			return fmt.Errorf("创建储值申请失败: %w", err)
		}

		// 频控计数只认提交动作本身，与后续审批结果无关；
		// 与申请单同事务落库，保证计数与申请不脱节
		if err := s.riskSvc.RecordDepositAttempt(ctx, tx, req.UserID, req.Amount); err != nil {
			return fmt.Errorf("储值频控计数失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"request_id":   request.ID,
			"user_id":      req.UserID,
			"username":     req.Username,
			"amount":       req.Amount,
			"bonus_points": bonusPoints,
			"status":       model.DepositRequestStatusPending,
			"created_at":   time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("deposit-req-%d", request.ID),
			Topic:      s.cfg.Kafka.Topic.DepositNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("储值申请: requestID=%d, userID=%d, amount=%s", request.ID, req.UserID, req.Amount.String())

	return &SubmitDepositResponse{
		RequestID:   request.ID,
		Amount:      req.Amount,
		BonusPoints: bonusPoints,
		Status:      request.Status,
		RiskFlagged: flagged,
	}, nil
}

type ApproveDepositResponse struct {
	RequestID    int64           `json:"request_id"`
	UserID       int64           `json:"user_id"`
	Credited     decimal.Decimal `json:"credited"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// Approve 审批通过：状态流转 + 入账 + 储值记录 + 通知，一个事务
// 任何一步失败整体回滚，不存在"标了 approved 却没到账"的中间态
func (s *DepositService) Approve(ctx context.Context, requestID, adminID int64) (*ApproveDepositResponse, error) {
	request, err := s.depositRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var txn *model.AccountTransaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.depositRepo.UpdateRequestStatus(ctx, tx, requestID,
			model.DepositRequestStatusApproved, adminID, ""); err != nil {
			return err
		}

		var err error
		txn, err = s.walletSvc.ApplyDeltaTx(ctx, tx, &DeltaRequest{
			UserID:        request.UserID,
			Delta:         request.BonusPoints,
			Type:          model.TransactionTypeDeposit,
			Description:   fmt.Sprintf("储值审批通过: 申请#%d 转账 %s", requestID, request.Amount.String()),
			RecordDeposit: true,
			DepositMethod: s.cfg.Deposit.Method,
		})
		if err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"request_id": requestID,
			"user_id":    request.UserID,
			"credited":   request.BonusPoints,
			"status":     model.DepositRequestStatusApproved,
			"admin_id":   adminID,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("deposit-req-%d", requestID),
			Topic:      s.cfg.Kafka.Topic.DepositNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("储值审批通过: requestID=%d, userID=%d, credited=%s",
		requestID, request.UserID, request.BonusPoints.String())

	return &ApproveDepositResponse{
		RequestID:    requestID,
		UserID:       request.UserID,
		Credited:     request.BonusPoints,
		BalanceAfter: txn.BalanceAfter,
	}, nil
}

// Reject 驳回：只流转状态记录原因，不碰钱包
func (s *DepositService) Reject(ctx context.Context, requestID, adminID int64, reason string) error {
	request, err := s.depositRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.depositRepo.UpdateRequestStatus(ctx, tx, requestID,
			model.DepositRequestStatusRejected, adminID, reason); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"request_id": requestID,
			"user_id":    request.UserID,
			"status":     model.DepositRequestStatusRejected,
			"reason":     reason,
			"admin_id":   adminID,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("deposit-req-%d", requestID),
			Topic:      s.cfg.Kafka.Topic.DepositNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return err
	}

	log.Printf("储值申请驳回: requestID=%d, reason=%s", requestID, reason)
	return nil
}

func (s *DepositService) ListPending(ctx context.Context) ([]model.DepositRequest, error) {
	return s.depositRepo.ListPendingRequests(ctx)
}

func (s *DepositService) ListByUser(ctx context.Context, userID int64, limit int) ([]model.DepositRequest, error) {
	return s.depositRepo.ListRequestsByUser(ctx, userID, limit)
}

func (s *DepositService) GetRequest(ctx context.Context, requestID int64) (*model.DepositRequest, error) {
	return s.depositRepo.GetRequestByID(ctx, requestID)
}
