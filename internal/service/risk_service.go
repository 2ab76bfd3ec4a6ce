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

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 风控引擎
// ============================================================================
//
// 【两类检查的分工】
//
// 1. 巡检类（detectSuspiciousActivity）：对单个账户做一轮全量体检，
//    命中的每条规则各落一条风险事件，返回告警文案供管理员查看
// 2. 卡点类（checkMaliciousRefund / checkStolenCard / checkDepositLimit）：
//    嵌在退款、储值提交的路径上，拦截正在发生的动作
//
// 自动处置（autoHandleRisks）只认 critical 事件，按事件类型查表决定
// 是否自动封禁，处置人统一记为系统哨兵账号，与人工操作可区分
//
// ============================================================================

// 风控阈值
const (
	rapidOrderCount       = 5  // 1小时内下单次数上限
	pendingOrderCount     = 3  // 未完成订单数上限
	frequentRefundCount   = 3  // 30天内退款次数上限
	refundLookbackDays    = 30 // 退款统计回溯天数
	autoHandleLookbackHrs = 24 // 自动处置回溯窗口（小时）

	newAccountDailyDeposits = 1 // 新账户每日储值申请上限
	dailyDepositCount       = 3 // 普通账户每日储值申请次数上限
)

var (
	highBalanceThreshold     = decimal.NewFromInt(50000) // 余额异常阈值
	newAccountDepositCeiling = decimal.NewFromInt(5000)  // 新账户累计储值阈值
	stolenCardSingleAmount   = decimal.NewFromInt(3000)  // 新账户单笔大额阈值
	dailyDepositAmount       = decimal.NewFromInt(10000) // 普通账户每日储值金额上限
)

// riskResponse 事件类型 → 自动处置策略
// 用查表代替条件链：新增风险信号只改表，不动处置逻辑
// 封禁天数统一取配置 risk.auto_ban_days，BanDays 仅作配置缺失时的兜底
type riskResponse struct {
	AutoBan bool
	BanDays int
}

var autoResponsePolicies = map[string]riskResponse{
	model.RiskEventMaliciousRefund:     {AutoBan: true, BanDays: 7},
	model.RiskEventSuspectedStolenCard: {AutoBan: true, BanDays: 7},
	model.RiskEventNegativeBalance:     {AutoBan: true, BanDays: 7},
	// 其余 critical 类型留给人工复核
}

type RiskService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	orderRepo       *repository.OrderRepository
	depositRepo     *repository.DepositRepository
	riskEventRepo   *repository.RiskEventRepository
	blacklistRepo   *repository.BlacklistRepository
	limitRepo       *repository.DepositLimitRepository
	suspiciousRepo  *repository.SuspiciousLogRepository
	outboxRepo      *repository.OutboxRepository
}

func NewRiskService(db *gorm.DB, cfg *config.Config) *RiskService {
	return &RiskService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		orderRepo:       repository.NewOrderRepository(db),
		depositRepo:     repository.NewDepositRepository(db),
		riskEventRepo:   repository.NewRiskEventRepository(db),
		blacklistRepo:   repository.NewBlacklistRepository(db),
		limitRepo:       repository.NewDepositLimitRepository(db),
		suspiciousRepo:  repository.NewSuspiciousLogRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// logEvent 落一条风险事件，HIGH/CRITICAL 同事务写通知消息
func (s *RiskService) logEvent(ctx context.Context, userID int64, username, eventType, severity, description string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		event := &model.RiskEvent{
			UserID:      userID,
			Username:    username,
			EventType:   eventType,
			Severity:    severity,
			Description: description,
		}
		if err := s.riskEventRepo.Create(ctx, tx, event); err != nil {
			return err
		}

		if severity != model.SeverityHigh && severity != model.SeverityCritical {
			return nil
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id":     userID,
			"username":    username,
			"event_type":  eventType,
			"severity":    severity,
			"description": description,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("risk-%d-%s", userID, eventType),
			Topic:      s.cfg.Kafka.Topic.RiskNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
}

// DetectSuspiciousActivity 单账户全量体检
// 每条命中的规则各落一条事件，返回告警文案列表（无命中返回空）
func (s *RiskService) DetectSuspiciousActivity(ctx context.Context, userID int64, username string) ([]string, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var warnings []string

	fire := func(eventType, severity, description string) error {
		warnings = append(warnings, description)
		return s.logEvent(ctx, userID, username, eventType, severity, description)
	}

	// 1小时内下单过于频繁
	orderCount, err := s.orderRepo.CountByUserSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if orderCount >= rapidOrderCount {
		if err := fire(model.RiskEventRapidOrders, model.SeverityHigh,
			fmt.Sprintf("1小时内下单 %d 次", orderCount)); err != nil {
			return nil, err
		}
	}

	// 未完成订单积压
	pendingCount, err := s.orderRepo.CountByUserAndStatus(ctx, userID, model.OrderStatusPending)
	if err != nil {
		return nil, err
	}
	if pendingCount >= pendingOrderCount {
		if err := fire(model.RiskEventManyPending, model.SeverityMedium,
			fmt.Sprintf("未完成订单 %d 笔", pendingCount)); err != nil {
			return nil, err
		}
	}

	// 余额异常
	if account.Balance.IsNegative() {
		if err := fire(model.RiskEventNegativeBalance, model.SeverityCritical,
			fmt.Sprintf("余额为负: %s", account.Balance.String())); err != nil {
			return nil, err
		}
	} else if account.Balance.GreaterThan(highBalanceThreshold) {
		if err := fire(model.RiskEventHighBalance, model.SeverityMedium,
			fmt.Sprintf("余额异常高: %s", account.Balance.String())); err != nil {
			return nil, err
		}
	}

	// 30天内频繁退款
	refundCount, err := s.transactionRepo.CountByUserAndType(ctx, userID,
		model.TransactionTypeRefund, now.AddDate(0, 0, -refundLookbackDays))
	if err != nil {
		return nil, err
	}
	if refundCount >= frequentRefundCount {
		if err := fire(model.RiskEventFrequentRefunds, model.SeverityHigh,
			fmt.Sprintf("30天内退款 %d 次", refundCount)); err != nil {
			return nil, err
		}
	}

	// 新账户累计大额储值
	if account.IsNew(now) {
		depositSum, err := s.transactionRepo.SumDepositsByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if depositSum.GreaterThan(newAccountDepositCeiling) {
			if err := fire(model.RiskEventNewAccountLargeDeposit, model.SeverityHigh,
				fmt.Sprintf("注册不足 %d 天累计储值 %s", model.NewAccountDays, depositSum.String())); err != nil {
				return nil, err
			}
		}
	}

	return warnings, nil
}

// CheckMaliciousRefund 退款卡点：累犯优先于比例
// 30天内 >=3 次直接按恶意退款（critical）拦截；
// 否则有订单时退款率 >50% 按高退款率（high）拦截
func (s *RiskService) CheckMaliciousRefund(ctx context.Context, userID int64, username string) (bool, string, error) {
	now := time.Now()

	refundCount, err := s.transactionRepo.CountByUserAndType(ctx, userID,
		model.TransactionTypeRefund, now.AddDate(0, 0, -refundLookbackDays))
	if err != nil {
		return false, "", err
	}

	if refundCount >= frequentRefundCount {
		desc := fmt.Sprintf("30天内退款 %d 次，疑似恶意退款", refundCount)
		if err := s.logEvent(ctx, userID, username, model.RiskEventMaliciousRefund, model.SeverityCritical, desc); err != nil {
			return false, "", err
		}
		return true, desc, nil
	}

	orderCount, err := s.orderRepo.CountByUser(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if orderCount > 0 {
		rate := decimal.NewFromInt(refundCount).Div(decimal.NewFromInt(orderCount))
		if rate.GreaterThan(decimal.NewFromFloat(0.5)) {
			desc := fmt.Sprintf("退款率 %s%% 超过一半", rate.Mul(decimal.NewFromInt(100)).StringFixed(0))
			if err := s.logEvent(ctx, userID, username, model.RiskEventHighRefundRate, model.SeverityHigh, desc); err != nil {
				return false, "", err
			}
			return true, desc, nil
		}
	}

	return false, "", nil
}

// CheckStolenCard 储值提交卡点：只记录不拦截
// 命中 critical 的由自动处置在回溯窗口内封禁，避免误杀正常大户的当次提交
func (s *RiskService) CheckStolenCard(ctx context.Context, account *model.Account, amount decimal.Decimal) (bool, string, error) {
	now := time.Now()

	if account.IsNew(now) && amount.GreaterThanOrEqual(stolenCardSingleAmount) {
		desc := fmt.Sprintf("新账户单笔储值 %s，疑似盗刷", amount.String())
		if err := s.logEvent(ctx, account.UserID, account.Username,
			model.RiskEventSuspectedStolenCard, model.SeverityCritical, desc); err != nil {
			return false, "", err
		}
		return true, desc, nil
	}

	requestCount, err := s.depositRepo.CountRequestsByUserSince(ctx, account.UserID, now.Add(-time.Hour))
	if err != nil {
		return false, "", err
	}
	if requestCount >= 3 {
		desc := fmt.Sprintf("1小时内提交储值申请 %d 次", requestCount)
		if err := s.logEvent(ctx, account.UserID, account.Username,
			model.RiskEventRapidDeposits, model.SeverityHigh, desc); err != nil {
			return false, "", err
		}
		return true, desc, nil
	}

	return false, "", nil
}

// DepositLimitResult 储值频控判定结果
type DepositLimitResult struct {
	Allowed     bool            `json:"allowed"`
	CountToday  int             `json:"count_today"`
	AmountToday decimal.Decimal `json:"amount_today"`
	Reason      string          `json:"reason,omitempty"`
}

// CheckDepositLimit 储值频控判定（只读，不计数）
// 新账户每日 1 次；普通账户每日 3 次或累计 10000，先到先限
func (s *RiskService) CheckDepositLimit(ctx context.Context, account *model.Account) (*DepositLimitResult, error) {
	today := time.Now().Format("2006-01-02")

	limit, err := s.limitRepo.GetByUserDate(ctx, account.UserID, today)
	if err != nil {
		return nil, err
	}

	result := &DepositLimitResult{Allowed: true, AmountToday: decimal.Zero}
	if limit != nil {
		result.CountToday = limit.DepositCount
		result.AmountToday = limit.TotalAmount
	}

	if account.IsNew(time.Now()) {
		if result.CountToday >= newAccountDailyDeposits {
			result.Allowed = false
			result.Reason = fmt.Sprintf("新账户每日限储值 %d 次", newAccountDailyDeposits)
		}
		return result, nil
	}

	if result.CountToday >= dailyDepositCount {
		result.Allowed = false
		result.Reason = fmt.Sprintf("每日限储值 %d 次", dailyDepositCount)
		return result, nil
	}
	if result.AmountToday.GreaterThanOrEqual(dailyDepositAmount) {
		result.Allowed = false
		result.Reason = fmt.Sprintf("每日储值金额上限 %s", dailyDepositAmount.String())
	}
	return result, nil
}

// RecordDepositAttempt 每次储值提交计数一次，与后续审批结果无关
// （频控管的是提交频率，不是到账金额）
// 与申请单同事务写入：申请落库则必然计数，计数失败则申请一并回滚
func (s *RiskService) RecordDepositAttempt(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	today := time.Now().Format("2006-01-02")
	return s.limitRepo.RecordAttempt(ctx, tx, userID, today, amount)
}

// AutoHandleResult 自动处置结果
type AutoHandleResult struct {
	Scanned     int              `json:"scanned"`
	AutoBanned  int              `json:"auto_banned"`
	BannedUsers []AutoBannedUser `json:"banned_users,omitempty"`
}

type AutoBannedUser struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	EventID   int64  `json:"event_id"`
	EventType string `json:"event_type"`
	Reason    string `json:"reason"`
}

// AutoHandleRisks 扫描回溯窗口内未处理的 critical 事件并按策略表处置
// 每个事件单独一个事务：封禁 + 标记已处理 + 通知，失败互不影响
// 幂等性来自 handled=false 过滤，已处理事件不会二次进入扫描
func (s *RiskService) AutoHandleRisks(ctx context.Context) (*AutoHandleResult, error) {
	since := time.Now().Add(-autoHandleLookbackHrs * time.Hour)
	events, err := s.riskEventRepo.ListUnhandledCriticalSince(ctx, since)
	if err != nil {
		return nil, err
	}

	result := &AutoHandleResult{Scanned: len(events)}
	for _, event := range events {
		policy, ok := autoResponsePolicies[event.EventType]
		if !ok || !policy.AutoBan {
			continue
		}

		banDays := s.cfg.Risk.AutoBanDays
		if banDays <= 0 {
			banDays = policy.BanDays
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			now := time.Now()
			until := now.Add(time.Duration(banDays) * 24 * time.Hour)
			entry := &model.BlacklistEntry{
				UserID:      event.UserID,
				Username:    event.Username,
				Reason:      event.Description,
				BannedBy:    model.SystemAdminID,
				BannedAt:    now,
				BannedUntil: &until,
				IsPermanent: false,
				Notes:       fmt.Sprintf("自动处置风控事件 #%d (%s)", event.ID, event.EventType),
			}
			if err := s.blacklistRepo.Upsert(ctx, tx, entry); err != nil {
				return err
			}

			if err := s.riskEventRepo.MarkHandled(ctx, tx, event.ID, model.SystemAdminID); err != nil {
				return err
			}

			payload, _ := json.Marshal(map[string]interface{}{
				"user_id":    event.UserID,
				"username":   event.Username,
				"action":     "auto_ban",
				"event_id":   event.ID,
				"event_type": event.EventType,
				"reason":     event.Description,
				"ban_days":   banDays,
			})
			outboxMsg := &model.OutboxMessage{
				MessageKey: fmt.Sprintf("autoban-%d", event.ID),
				Topic:      s.cfg.Kafka.Topic.RiskNotify,
				Payload:    string(payload),
				Status:     model.OutboxStatusPending,
			}
			return s.outboxRepo.Create(ctx, tx, outboxMsg)
		})
		if err != nil {
			log.Printf("自动处置失败: eventID=%d, err=%v", event.ID, err)
			continue
		}

		result.AutoBanned++
		result.BannedUsers = append(result.BannedUsers, AutoBannedUser{
			UserID:    event.UserID,
			Username:  event.Username,
			EventID:   event.ID,
			EventType: event.EventType,
			Reason:    event.Description,
		})
		log.Printf("自动封禁: userID=%d, eventID=%d, type=%s", event.UserID, event.ID, event.EventType)
	}

	return result, nil
}

// MarkEventHandled 人工处理风控事件
func (s *RiskService) MarkEventHandled(ctx context.Context, eventID, adminID int64) error {
	return s.riskEventRepo.MarkHandled(ctx, nil, eventID, adminID)
}

func (s *RiskService) ListUnhandledEvents(ctx context.Context) ([]model.RiskEvent, error) {
	return s.riskEventRepo.ListUnhandled(ctx)
}

func (s *RiskService) ListEventsByUser(ctx context.Context, userID int64, limit int) ([]model.RiskEvent, error) {
	return s.riskEventRepo.ListByUser(ctx, userID, limit)
}

// LogSuspiciousAction 记录可疑操作明细（审计用，不触发处置）
func (s *RiskService) LogSuspiciousAction(ctx context.Context, userID int64, username, actionType, details, ipAddress string) error {
	return s.suspiciousRepo.Create(ctx, &model.SuspiciousLog{
		UserID:     userID,
		Username:   username,
		ActionType: actionType,
		Details:    details,
		IPAddress:  ipAddress,
	})
}

func (s *RiskService) ListSuspiciousLogs(ctx context.Context, userID int64, limit int) ([]model.SuspiciousLog, error) {
	return s.suspiciousRepo.ListByUser(ctx, userID, limit)
}
