package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"walletbot/internal/model"

	"github.com/shopspring/decimal"
)

// ageAccount 把账户注册时间拨到 days 天前，用于新/老账户分支
func ageAccount(t *testing.T, env *testEnv, userID int64, days int) {
	t.Helper()
	created := time.Now().AddDate(0, 0, -days)
	if err := env.db.Model(&model.Account{}).Where("user_id = ?", userID).
		Update("created_at", created).Error; err != nil {
		t.Fatalf("调整账户注册时间失败: %v", err)
	}
}

func insertRefunds(t *testing.T, env *testEnv, userID int64, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		txn := &model.AccountTransaction{
			TransactionNo: fmt.Sprintf("TXN-test-%d-%d", userID, i),
			UserID:        userID,
			Amount:        decimal.NewFromInt(200),
			Type:          model.TransactionTypeRefund,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  decimal.NewFromInt(200),
		}
		if err := env.db.Create(txn).Error; err != nil {
			t.Fatal(err)
		}
	}
}

func insertOrders(t *testing.T, env *testEnv, userID int64, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		order := &model.Order{
			OrderNo:    fmt.Sprintf("ORD-test-%d-%d", userID, i),
			UserID:     userID,
			Username:   "tester",
			ItemName:   "陪玩1小時",
			ItemPrice:  decimal.NewFromInt(200),
			Quantity:   1,
			TotalPrice: decimal.NewFromInt(200),
			Status:     model.OrderStatusPending,
		}
		if err := env.db.Create(order).Error; err != nil {
			t.Fatal(err)
		}
	}
}

func TestDepositLimitNewAccountOnePerDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
		UserID:   4001,
		Username: "newbie",
		Amount:   decimal.NewFromInt(2000),
	}); err != nil {
		t.Fatalf("首次提交应通过: %v", err)
	}

	account, err := env.walletSvc.GetAccount(ctx, 4001)
	if err != nil {
		t.Fatal(err)
	}
	result, err := env.riskSvc.CheckDepositLimit(ctx, account)
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Fatal("新账户当日第二次应被拒")
	}
	if result.CountToday != 1 {
		t.Fatalf("期望当日计数 1，实际 %d", result.CountToday)
	}
	mustEqual(t, result.AmountToday, decimal.NewFromInt(2000), "当日累计金额")

	_, err = env.depositSvc.Submit(ctx, &SubmitDepositRequest{
		UserID:   4001,
		Username: "newbie",
		Amount:   decimal.NewFromInt(300),
	})
	if !errors.Is(err, ErrDepositLimitExceeded) {
		t.Fatalf("期望 ErrDepositLimitExceeded，实际 %v", err)
	}
}

func TestDepositLimitDailyCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4002, "regular"); err != nil {
		t.Fatal(err)
	}
	ageAccount(t, env, 4002, 30)

	for i := 0; i < 3; i++ {
		if _, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
			UserID:   4002,
			Username: "regular",
			Amount:   decimal.NewFromInt(1000),
		}); err != nil {
			t.Fatalf("第 %d 次提交应通过: %v", i+1, err)
		}
	}

	_, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
		UserID:   4002,
		Username: "regular",
		Amount:   decimal.NewFromInt(300),
	})
	if !errors.Is(err, ErrDepositLimitExceeded) {
		t.Fatalf("第 4 次提交期望 ErrDepositLimitExceeded，实际 %v", err)
	}
}

func TestDepositLimitDailyAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4003, "whale"); err != nil {
		t.Fatal(err)
	}
	ageAccount(t, env, 4003, 30)

	for i := 0; i < 2; i++ {
		if _, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
			UserID:   4003,
			Username: "whale",
			Amount:   decimal.NewFromInt(5000),
		}); err != nil {
			t.Fatalf("第 %d 次提交应通过: %v", i+1, err)
		}
	}

	// 次数未满 3，但金额已触顶
	_, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
		UserID:   4003,
		Username: "whale",
		Amount:   decimal.NewFromInt(100),
	})
	if !errors.Is(err, ErrDepositLimitExceeded) {
		t.Fatalf("金额触顶期望 ErrDepositLimitExceeded，实际 %v", err)
	}
}

func TestMaliciousRefundRepeatOffenderWinsOverRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4004, "refunder"); err != nil {
		t.Fatal(err)
	}
	// 3 退款 / 4 订单：比例不过半，但累犯规则先命中
	insertRefunds(t, env, 4004, 3)
	insertOrders(t, env, 4004, 4)

	blocked, reason, err := env.riskSvc.CheckMaliciousRefund(ctx, 4004, "refunder")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatal("累犯退款应被拦截")
	}
	if reason == "" {
		t.Fatal("拦截必须给出原因")
	}

	events, err := env.riskSvc.ListEventsByUser(ctx, 4004, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("期望 1 条风险事件，实际 %d", len(events))
	}
	if events[0].EventType != model.RiskEventMaliciousRefund || events[0].Severity != model.SeverityCritical {
		t.Fatalf("期望 MALICIOUS_REFUND/CRITICAL，实际 %s/%s", events[0].EventType, events[0].Severity)
	}
}

func TestHighRefundRateBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4005, "flaky"); err != nil {
		t.Fatal(err)
	}
	// 2 退款 / 3 订单 = 67%，走比例规则
	insertRefunds(t, env, 4005, 2)
	insertOrders(t, env, 4005, 3)

	blocked, _, err := env.riskSvc.CheckMaliciousRefund(ctx, 4005, "flaky")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatal("退款率过半应被拦截")
	}

	events, err := env.riskSvc.ListEventsByUser(ctx, 4005, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != model.RiskEventHighRefundRate {
		t.Fatalf("期望 HIGH_REFUND_RATE 事件，实际 %+v", events)
	}
}

func TestRefundGuardAllowsCleanUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4006, "clean"); err != nil {
		t.Fatal(err)
	}
	insertRefunds(t, env, 4006, 1)
	insertOrders(t, env, 4006, 4)

	blocked, _, err := env.riskSvc.CheckMaliciousRefund(ctx, 4006, "clean")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Fatal("正常用户不应被拦截")
	}
}

func TestStolenCardFlagsButNeverBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 新账户单笔 3000：落 critical 事件但提交照常通过
	submitted, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
		UserID:   4007,
		Username: "suspect",
		Amount:   decimal.NewFromInt(3000),
	})
	if err != nil {
		t.Fatalf("盗刷检查不应拦截提交: %v", err)
	}
	if !submitted.RiskFlagged {
		t.Fatal("疑似盗刷应被标记")
	}

	events, err := env.riskSvc.ListEventsByUser(ctx, 4007, 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range events {
		if e.EventType == model.RiskEventSuspectedStolenCard && e.Severity == model.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatal("缺少 SUSPECTED_STOLEN_CARD 事件")
	}
}

func TestDetectSuspiciousNegativeBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4008, "broke"); err != nil {
		t.Fatal(err)
	}
	ageAccount(t, env, 4008, 30)
	if _, err := env.walletSvc.CorrectBalance(ctx, 4008, decimal.NewFromInt(-50), "对账修正"); err != nil {
		t.Fatal(err)
	}

	warnings, err := env.riskSvc.DetectSuspiciousActivity(ctx, 4008, "broke")
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("期望 1 条告警，实际 %d: %v", len(warnings), warnings)
	}

	events, err := env.riskSvc.ListEventsByUser(ctx, 4008, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != model.RiskEventNegativeBalance {
		t.Fatalf("期望 NEGATIVE_BALANCE 事件，实际 %+v", events)
	}
	if events[0].Handled {
		t.Fatal("检测产生的事件应为未处理状态")
	}
}

func TestAutoHandleBansCriticalAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 4009, "target"); err != nil {
		t.Fatal(err)
	}
	event := &model.RiskEvent{
		UserID:      4009,
		Username:    "target",
		EventType:   model.RiskEventNegativeBalance,
		Severity:    model.SeverityCritical,
		Description: "余额为负: -50",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}
	if err := env.db.Create(event).Error; err != nil {
		t.Fatal(err)
	}

	result, err := env.riskSvc.AutoHandleRisks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Scanned != 1 || result.AutoBanned != 1 {
		t.Fatalf("期望扫描 1 封禁 1，实际 %d/%d", result.Scanned, result.AutoBanned)
	}

	banned, entry, err := env.blacklistSvc.IsBlacklisted(ctx, 4009)
	if err != nil {
		t.Fatal(err)
	}
	if !banned {
		t.Fatal("critical 事件应触发自动封禁")
	}
	if entry.BannedBy != model.SystemAdminID {
		t.Fatalf("自动封禁人应为系统账号，实际 %d", entry.BannedBy)
	}
	if entry.IsPermanent || entry.BannedUntil == nil {
		t.Fatal("自动封禁应为限期封禁")
	}
	days := time.Until(*entry.BannedUntil).Hours() / 24
	if days < 6.9 || days > 7.1 {
		t.Fatalf("期望 7 天封禁，实际约 %.2f 天", days)
	}

	// 立刻重跑：事件已标记处理，不产生第二次封禁
	again, err := env.riskSvc.AutoHandleRisks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.Scanned != 0 || again.AutoBanned != 0 {
		t.Fatalf("重跑期望 0/0，实际 %d/%d", again.Scanned, again.AutoBanned)
	}
}

func TestAutoHandleSkipsStaleEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := &model.RiskEvent{
		UserID:      4010,
		Username:    "ancient",
		EventType:   model.RiskEventNegativeBalance,
		Severity:    model.SeverityCritical,
		Description: "余额为负: -10",
		CreatedAt:   time.Now().Add(-48 * time.Hour),
	}
	if err := env.db.Create(event).Error; err != nil {
		t.Fatal(err)
	}

	result, err := env.riskSvc.AutoHandleRisks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Scanned != 0 {
		t.Fatalf("回溯窗口外的事件不应被扫描，实际扫描 %d", result.Scanned)
	}
}

func TestAutoHandleSkipsUnlistedEventTypes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := &model.RiskEvent{
		UserID:      4011,
		Username:    "flagged",
		EventType:   model.RiskEventRapidOrders,
		Severity:    model.SeverityCritical,
		Description: "1小时内下单 9 次",
	}
	if err := env.db.Create(event).Error; err != nil {
		t.Fatal(err)
	}

	result, err := env.riskSvc.AutoHandleRisks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Scanned != 1 || result.AutoBanned != 0 {
		t.Fatalf("策略表外的类型只扫描不处置，实际 %d/%d", result.Scanned, result.AutoBanned)
	}

	banned, _, err := env.blacklistSvc.IsBlacklisted(ctx, 4011)
	if err != nil {
		t.Fatal(err)
	}
	if banned {
		t.Fatal("不应被封禁")
	}
}

func TestAutoHandleBanDaysFollowsConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cfg.Risk.AutoBanDays = 3

	if _, _, err := env.walletSvc.Register(ctx, 4012, "short"); err != nil {
		t.Fatal(err)
	}
	event := &model.RiskEvent{
		UserID:      4012,
		Username:    "short",
		EventType:   model.RiskEventSuspectedStolenCard,
		Severity:    model.SeverityCritical,
		Description: "新账户单笔储值 3000，疑似盗刷",
	}
	if err := env.db.Create(event).Error; err != nil {
		t.Fatal(err)
	}

	result, err := env.riskSvc.AutoHandleRisks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.AutoBanned != 1 {
		t.Fatalf("期望封禁 1，实际 %d", result.AutoBanned)
	}

	banned, entry, err := env.blacklistSvc.IsBlacklisted(ctx, 4012)
	if err != nil {
		t.Fatal(err)
	}
	if !banned || entry.BannedUntil == nil {
		t.Fatal("应为限期封禁")
	}
	days := time.Until(*entry.BannedUntil).Hours() / 24
	if days < 2.9 || days > 3.1 {
		t.Fatalf("封禁天数应随配置为 3 天，实际约 %.2f 天", days)
	}
}
