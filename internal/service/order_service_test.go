package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"walletbot/internal/model"
	"walletbot/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupBuyer(t *testing.T, env *testEnv, userID int64, balance int64) {
	t.Helper()
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, userID, "buyer"); err != nil {
		t.Fatal(err)
	}
	if balance > 0 {
		if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
			UserID: userID,
			Delta:  decimal.NewFromInt(balance),
			Type:   model.TransactionTypeDeposit,
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPurchaseDeductsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2001, 1000)

	result, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2001,
		Username: "buyer",
		ItemName: "陪玩1小時",
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("购买失败: %v", err)
	}

	mustEqual(t, result.TotalPrice, decimal.NewFromInt(400), "订单总价")
	mustEqual(t, result.Balance, decimal.NewFromInt(600), "购买后余额")
	if result.Status != model.OrderStatusPending {
		t.Fatalf("期望 pending，实际 %s", result.Status)
	}

	// 分润在建单时快照
	order, err := env.orderSvc.GetOrder(ctx, result.OrderNo)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, order.StaffEarning, decimal.NewFromInt(280), "建单时分润")
	mustEqual(t, order.PlatformFee, decimal.NewFromInt(120), "建单时平台费")
}

func TestPurchaseUnknownItem(t *testing.T) {
	env := newTestEnv(t)
	setupBuyer(t, env, 2002, 1000)

	_, err := env.orderSvc.Purchase(context.Background(), &PurchaseRequest{
		UserID:   2002,
		ItemName: "不存在的商品",
		Quantity: 1,
	})
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("期望 ErrItemNotFound，实际 %v", err)
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2003, 100)

	_, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2003,
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if !errors.Is(err, repository.ErrBalanceNotEnough) {
		t.Fatalf("期望 ErrBalanceNotEnough，实际 %v", err)
	}

	// 失败不留订单
	var count int64
	if err := env.db.Model(&model.Order{}).Where("user_id = ?", 2003).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("失败购买不应留下订单，实际 %d 条", count)
	}
}

func TestPurchaseBlockedWhenBanned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2004, 1000)

	if _, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID: 2004, Username: "buyer", Reason: "测试封禁", BannedBy: 1, Days: 7,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2004,
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if !errors.Is(err, ErrUserBanned) {
		t.Fatalf("期望 ErrUserBanned，实际 %v", err)
	}
}

func TestCompleteOrderCommissionSplit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2005, 1000)

	result, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2005,
		Username: "buyer",
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	completed, err := env.orderSvc.CompleteOrder(ctx, result.OrderNo, 9001, "staff-s")
	if err != nil {
		t.Fatalf("完成订单失败: %v", err)
	}

	// 200 元 70% 分润：工作人员 140，平台 60
	mustEqual(t, completed.StaffEarning, decimal.NewFromInt(140), "分润")
	mustEqual(t, completed.PlatformFee, decimal.NewFromInt(60), "平台费")

	var commissions []model.Commission
	if err := env.db.Where("order_no = ?", result.OrderNo).Find(&commissions).Error; err != nil {
		t.Fatal(err)
	}
	if len(commissions) != 1 {
		t.Fatalf("期望恰好 1 条分润记录，实际 %d", len(commissions))
	}
	mustEqual(t, commissions[0].StaffEarning.Add(commissions[0].PlatformFee),
		commissions[0].OrderAmount, "分润+平台费=订单金额")

	// 二次完成必须失败且不再加分润
	if _, err := env.orderSvc.CompleteOrder(ctx, result.OrderNo, 9002, "staff-x"); !errors.Is(err, repository.ErrOrderStatusInvalid) {
		t.Fatalf("二次完成期望 ErrOrderStatusInvalid，实际 %v", err)
	}

	var count int64
	if err := env.db.Model(&model.Commission{}).Where("order_no = ?", result.OrderNo).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("二次完成后分润记录应仍为 1 条，实际 %d", count)
	}
}

func TestRefundOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2006, 500)

	result, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2006,
		Username: "buyer",
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	txn, err := env.orderSvc.RefundOrder(ctx, result.OrderNo, 1)
	if err != nil {
		t.Fatalf("退款失败: %v", err)
	}
	mustEqual(t, txn.Amount, decimal.NewFromInt(200), "退款金额")
	mustEqual(t, txn.BalanceAfter, decimal.NewFromInt(500), "退款后余额")

	order, err := env.orderSvc.GetOrder(ctx, result.OrderNo)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != model.OrderStatusRefunded {
		t.Fatalf("期望 refunded 终态，实际 %s", order.Status)
	}

	// 终态订单不可再退、不可再完成
	if _, err := env.orderSvc.RefundOrder(ctx, result.OrderNo, 1); !errors.Is(err, repository.ErrOrderStatusInvalid) {
		t.Fatalf("二次退款期望 ErrOrderStatusInvalid，实际 %v", err)
	}
	if _, err := env.orderSvc.CompleteOrder(ctx, result.OrderNo, 9001, "staff"); !errors.Is(err, repository.ErrOrderStatusInvalid) {
		t.Fatalf("退款后完成期望 ErrOrderStatusInvalid，实际 %v", err)
	}
}

func TestRefundBlockedByRiskGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2007, 2000)

	// 先制造 3 条近 30 天退款流水，触发恶意退款累犯规则
	for i := 0; i < 3; i++ {
		if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
			UserID: 2007,
			Delta:  decimal.NewFromInt(10),
			Type:   model.TransactionTypeRefund,
		}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2007,
		Username: "buyer",
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.orderSvc.RefundOrder(ctx, result.OrderNo, 1)
	if !errors.Is(err, ErrRefundBlocked) {
		t.Fatalf("期望 ErrRefundBlocked，实际 %v", err)
	}

	// 拦截后订单必须仍是 pending，余额不动
	order, err := env.orderSvc.GetOrder(ctx, result.OrderNo)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("拦截后订单状态应为 pending，实际 %s", order.Status)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	if !model.CanTransitionTo(model.OrderStatusPending, model.OrderStatusCompleted) {
		t.Fatal("pending 应可流转到 completed")
	}
	if !model.CanTransitionTo(model.OrderStatusPending, model.OrderStatusRefunded) {
		t.Fatal("pending 应可流转到 refunded")
	}
	if model.CanTransitionTo(model.OrderStatusCompleted, model.OrderStatusPending) {
		t.Fatal("completed 是终态")
	}
	if model.CanTransitionTo(model.OrderStatusRefunded, model.OrderStatusCompleted) {
		t.Fatal("refunded 是终态")
	}
}

func TestPendingOrderTimestamps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2008, 1000)

	result, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2008,
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	before := time.Now()
	if _, err := env.orderSvc.CompleteOrder(ctx, result.OrderNo, 9001, "staff"); err != nil {
		t.Fatal(err)
	}

	order, err := env.orderSvc.GetOrder(ctx, result.OrderNo)
	if err != nil {
		t.Fatal(err)
	}
	if order.CompletedAt == nil || order.CompletedAt.Before(before.Add(-time.Second)) {
		t.Fatal("完成时间未正确落库")
	}
	if !order.CommissionPaid {
		t.Fatal("commission_paid 标志未置位")
	}
	if order.StaffID != 9001 {
		t.Fatalf("staff_id 期望 9001，实际 %d", order.StaffID)
	}
}

func TestStatusConflictResolvedInsideTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	setupBuyer(t, env, 2100, 1000)

	result, err := env.orderSvc.Purchase(ctx, &PurchaseRequest{
		UserID:   2100,
		Username: "buyer",
		ItemName: "陪玩1小時",
		Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 同一事务内：首次流转成功，二次流转必须在事务内回读并
	// 区分为状态冲突，而不是撞上自己的写锁
	orderRepo := repository.NewOrderRepository(env.db)
	err = env.db.Transaction(func(tx *gorm.DB) error {
		if err := orderRepo.UpdateStatus(ctx, tx, result.OrderNo,
			model.OrderStatusPending, model.OrderStatusCompleted, nil); err != nil {
			return err
		}
		return orderRepo.UpdateStatus(ctx, tx, result.OrderNo,
			model.OrderStatusPending, model.OrderStatusRefunded, nil)
	})
	if !errors.Is(err, repository.ErrOrderStatusInvalid) {
		t.Fatalf("期望 ErrOrderStatusInvalid，实际 %v", err)
	}
}
