package service

import (
	"context"
	"errors"
	"testing"

	"walletbot/internal/model"
	"walletbot/internal/repository"

	"github.com/shopspring/decimal"
)

func TestRegisterIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, created, err := env.walletSvc.Register(ctx, 1001, "alice")
	if err != nil {
		t.Fatalf("首次注册失败: %v", err)
	}
	if !created {
		t.Fatal("首次注册应报告新建")
	}
	mustEqual(t, first.Balance, decimal.Zero, "初始余额")

	// 入账后重复注册，余额必须保持不变
	if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
		UserID:      1001,
		Delta:       decimal.NewFromInt(100),
		Type:        model.TransactionTypeAdjust,
		Description: "测试入账",
	}); err != nil {
		t.Fatalf("入账失败: %v", err)
	}

	second, createdAgain, err := env.walletSvc.Register(ctx, 1001, "alice")
	if err != nil {
		t.Fatalf("重复注册失败: %v", err)
	}
	if createdAgain {
		t.Fatal("重复注册不应再报告新建")
	}
	mustEqual(t, second.Balance, decimal.NewFromInt(100), "重复注册后余额")
}

func TestGetBalanceNoSuchAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.walletSvc.GetBalance(context.Background(), 404404)
	if !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("期望 ErrAccountNotFound，实际 %v", err)
	}
}

func TestApplyDeltaWritesTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 1002, "bob"); err != nil {
		t.Fatal(err)
	}

	txn, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
		UserID:        1002,
		Delta:         decimal.NewFromInt(300),
		Type:          model.TransactionTypeDeposit,
		Description:   "储值",
		RecordDeposit: true,
		DepositMethod: "銀行轉帳",
	})
	if err != nil {
		t.Fatalf("入账失败: %v", err)
	}

	mustEqual(t, txn.BalanceBefore, decimal.Zero, "变动前余额")
	mustEqual(t, txn.BalanceAfter, decimal.NewFromInt(300), "变动后余额")

	// 储值类变动同时落储值记录
	var depositCount int64
	if err := env.db.Model(&model.Deposit{}).Where("user_id = ?", 1002).Count(&depositCount).Error; err != nil {
		t.Fatal(err)
	}
	if depositCount != 1 {
		t.Fatalf("期望 1 条储值记录，实际 %d", depositCount)
	}
}

func TestApplyDeltaInsufficientBalanceNoPartialWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 1003, "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
		UserID: 1003,
		Delta:  decimal.NewFromInt(50),
		Type:   model.TransactionTypeDeposit,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
		UserID:      1003,
		Delta:       decimal.NewFromInt(-100),
		Type:        model.TransactionTypePurchase,
		Description: "超额扣款",
	})
	if !errors.Is(err, repository.ErrBalanceNotEnough) {
		t.Fatalf("期望 ErrBalanceNotEnough，实际 %v", err)
	}

	// 失败后余额与流水都不能有残留
	balance, err := env.walletSvc.GetBalance(ctx, 1003)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, balance, decimal.NewFromInt(50), "失败后余额")

	var txnCount int64
	if err := env.db.Model(&model.AccountTransaction{}).Where("user_id = ?", 1003).Count(&txnCount).Error; err != nil {
		t.Fatal(err)
	}
	if txnCount != 1 {
		t.Fatalf("期望 1 条流水，实际 %d", txnCount)
	}
}

func TestReconcileInvariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 1004, "dave"); err != nil {
		t.Fatal(err)
	}

	deltas := []int64{500, -120, 300, -80}
	for _, d := range deltas {
		if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
			UserID: 1004,
			Delta:  decimal.NewFromInt(d),
			Type:   model.TransactionTypeAdjust,
		}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := env.walletSvc.Reconcile(ctx, 1004)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Consistent {
		t.Fatalf("对账不平: balance=%s expected=%s", result.Balance.String(), result.ExpectedBalance.String())
	}
	mustEqual(t, result.Balance, decimal.NewFromInt(600), "对账余额")
}

func TestCorrectBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 1005, "eve"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
		UserID: 1005,
		Delta:  decimal.NewFromInt(200),
		Type:   model.TransactionTypeDeposit,
	}); err != nil {
		t.Fatal(err)
	}

	// 向下更正也要到位，且更正流水入账（对账仍然平）
	txn, err := env.walletSvc.CorrectBalance(ctx, 1005, decimal.NewFromInt(150), "活动多发补回")
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, txn.Amount, decimal.NewFromInt(-50), "更正差额")

	result, err := env.walletSvc.Reconcile(ctx, 1005)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Consistent {
		t.Fatal("更正后对账不平")
	}
	mustEqual(t, result.Balance, decimal.NewFromInt(150), "更正后余额")
}

func TestLeaderboardOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, row := range []struct {
		userID  int64
		balance int64
	}{
		{1101, 300},
		{1102, 900},
		{1103, 600},
	} {
		if _, _, err := env.walletSvc.Register(ctx, row.userID, "player"); err != nil {
			t.Fatal(err)
		}
		if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
			UserID: row.userID,
			Delta:  decimal.NewFromInt(row.balance),
			Type:   model.TransactionTypeDeposit,
		}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := env.walletSvc.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条，实际 %d", len(entries))
	}
	if entries[0].UserID != 1102 || entries[1].UserID != 1103 {
		t.Fatalf("排行顺序错误: %+v", entries)
	}
	if entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("名次编号错误: %+v", entries)
	}
}

func TestListDepositsOnlyCredited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	submitted, err := env.depositSvc.Submit(ctx, &SubmitDepositRequest{
		UserID:   1104,
		Username: "saver",
		Amount:   decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatal(err)
	}

	// 审批前没有已入账记录
	deposits, err := env.walletSvc.ListDeposits(ctx, 1104, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(deposits) != 0 {
		t.Fatalf("审批前不应有入账记录，实际 %d 条", len(deposits))
	}

	if _, err := env.depositSvc.Approve(ctx, submitted.RequestID, 8001); err != nil {
		t.Fatal(err)
	}

	deposits, err = env.walletSvc.ListDeposits(ctx, 1104, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(deposits) != 1 {
		t.Fatalf("期望 1 条入账记录，实际 %d", len(deposits))
	}
	mustEqual(t, deposits[0].Amount, decimal.NewFromInt(300), "入账金额")
}

func TestTransactionAuditTrailChains(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.walletSvc.Register(ctx, 1020, "chained"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []int64{100, -30, 7} {
		if _, err := env.walletSvc.ApplyDelta(ctx, &DeltaRequest{
			UserID: 1020,
			Delta:  decimal.NewFromInt(d),
			Type:   model.TransactionTypeAdjust,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// 流水必须首尾相接：每条 before 等于上一条 after，末条 after 等于落库余额
	var txns []model.AccountTransaction
	if err := env.db.Where("user_id = ?", 1020).Order("id").Find(&txns).Error; err != nil {
		t.Fatal(err)
	}
	if len(txns) != 3 {
		t.Fatalf("期望 3 条流水，实际 %d", len(txns))
	}
	prev := decimal.Zero
	for i, txn := range txns {
		if !txn.BalanceBefore.Equal(prev) {
			t.Fatalf("第 %d 条流水 before=%s，应接上一条 after=%s",
				i+1, txn.BalanceBefore.String(), prev.String())
		}
		if !txn.BalanceAfter.Equal(txn.BalanceBefore.Add(txn.Amount)) {
			t.Fatalf("第 %d 条流水 after 与 before+amount 不符", i+1)
		}
		prev = txn.BalanceAfter
	}

	balance, err := env.walletSvc.GetBalance(ctx, 1020)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, prev, balance, "末条流水 after 对齐余额")
}
