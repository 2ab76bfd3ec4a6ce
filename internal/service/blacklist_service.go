package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"walletbot/internal/config"
	"walletbot/internal/model"
	"walletbot/internal/repository"

	"gorm.io/gorm"
)

// BlacklistService 黑名单门禁
// 所有动账操作（购买、储值、退款）前都先过这里
type BlacklistService struct {
	db            *gorm.DB
	cfg           *config.Config
	blacklistRepo *repository.BlacklistRepository
	riskEventRepo *repository.RiskEventRepository
	outboxRepo    *repository.OutboxRepository
}

func NewBlacklistService(db *gorm.DB, cfg *config.Config) *BlacklistService {
	return &BlacklistService{
		db:            db,
		cfg:           cfg,
		blacklistRepo: repository.NewBlacklistRepository(db),
		riskEventRepo: repository.NewRiskEventRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
	}
}

// IsBlacklisted 查询封禁状态，到期封禁在读取时惰性清除
func (s *BlacklistService) IsBlacklisted(ctx context.Context, userID int64) (bool, *model.BlacklistEntry, error) {
	entry, err := s.blacklistRepo.GetActive(ctx, userID, time.Now())
	if err != nil {
		if err == repository.ErrNotBlacklisted {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, entry, nil
}

// BanRequest 封禁请求，Days=0 表示永久封禁
type BanRequest struct {
	UserID   int64
	Username string
	Reason   string
	BannedBy int64
	Days     int
	Notes    string
}

// Ban 封禁用户：黑名单落库 + 风控事件 + 通知消息，一个事务
// 同一用户重复封禁以最新一次为准（覆盖而非叠加）
func (s *BlacklistService) Ban(ctx context.Context, req *BanRequest) (*model.BlacklistEntry, error) {
	now := time.Now()
	entry := &model.BlacklistEntry{
		UserID:      req.UserID,
		Username:    req.Username,
		Reason:      req.Reason,
		BannedBy:    req.BannedBy,
		BannedAt:    now,
		IsPermanent: req.Days <= 0,
		Notes:       req.Notes,
	}
	if req.Days > 0 {
		until := now.Add(time.Duration(req.Days) * 24 * time.Hour)
		entry.BannedUntil = &until
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.blacklistRepo.Upsert(ctx, tx, entry); err != nil {
			return fmt.Errorf("写入黑名单失败: %w", err)
		}

		event := &model.RiskEvent{
			UserID:      req.UserID,
			Username:    req.Username,
			EventType:   model.RiskEventBlacklisted,
			Severity:    model.SeverityCritical,
			Description: fmt.Sprintf("用户被封禁: %s (操作人=%d)", req.Reason, req.BannedBy),
			Handled:     true, // 封禁本身就是处理动作，不再进自动扫描
			HandledBy:   req.BannedBy,
			HandledAt:   &now,
		}
		if err := s.riskEventRepo.Create(ctx, tx, event); err != nil {
			return fmt.Errorf("记录风控事件失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id":   req.UserID,
			"username":  req.Username,
			"action":    "ban",
			"reason":    req.Reason,
			"banned_by": req.BannedBy,
			"permanent": entry.IsPermanent,
			"banned_at": now.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("blacklist-%d", req.UserID),
			Topic:      s.cfg.Kafka.Topic.RiskNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("封禁用户: userID=%d, reason=%s, permanent=%v", req.UserID, req.Reason, entry.IsPermanent)
	return entry, nil
}

// Unban 解除封禁；本就不在黑名单时返回 ErrNotBlacklisted 供调用方区分
func (s *BlacklistService) Unban(ctx context.Context, userID int64) error {
	if err := s.blacklistRepo.Remove(ctx, userID); err != nil {
		return err
	}
	log.Printf("解除封禁: userID=%d", userID)
	return nil
}

func (s *BlacklistService) List(ctx context.Context) ([]model.BlacklistEntry, error) {
	return s.blacklistRepo.ListAll(ctx)
}
