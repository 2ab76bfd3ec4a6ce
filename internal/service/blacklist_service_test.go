package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"walletbot/internal/model"
	"walletbot/internal/repository"
)

func TestBanAndUnban(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entry, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID:   5001,
		Username: "eve",
		Reason:   "恶意退款",
		BannedBy: 9001,
	})
	if err != nil {
		t.Fatalf("封禁失败: %v", err)
	}
	if !entry.IsPermanent || entry.BannedUntil != nil {
		t.Fatal("Days=0 应为永久封禁")
	}

	banned, active, err := env.blacklistSvc.IsBlacklisted(ctx, 5001)
	if err != nil {
		t.Fatal(err)
	}
	if !banned || active.Reason != "恶意退款" {
		t.Fatalf("封禁状态不符: banned=%v entry=%+v", banned, active)
	}

	// 封禁同时落一条已处理的风控事件，不进自动处置扫描
	events, err := env.riskSvc.ListEventsByUser(ctx, 5001, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != model.RiskEventBlacklisted || !events[0].Handled {
		t.Fatalf("期望 1 条已处理的 BLACKLISTED 事件，实际 %+v", events)
	}

	if err := env.blacklistSvc.Unban(ctx, 5001); err != nil {
		t.Fatal(err)
	}
	banned, _, err = env.blacklistSvc.IsBlacklisted(ctx, 5001)
	if err != nil {
		t.Fatal(err)
	}
	if banned {
		t.Fatal("解封后不应仍在黑名单")
	}
}

func TestUnbanNotBlacklisted(t *testing.T) {
	env := newTestEnv(t)

	err := env.blacklistSvc.Unban(context.Background(), 5002)
	if !errors.Is(err, repository.ErrNotBlacklisted) {
		t.Fatalf("期望 ErrNotBlacklisted，实际 %v", err)
	}
}

func TestTimedBanExpiresLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID:   5003,
		Username: "temp",
		Reason:   "短期观察",
		BannedBy: 9001,
		Days:     3,
	}); err != nil {
		t.Fatal(err)
	}

	// 把到期时间拨到过去，模拟封禁期满
	past := time.Now().Add(-time.Hour)
	if err := env.db.Model(&model.BlacklistEntry{}).Where("user_id = ?", 5003).
		Update("banned_until", past).Error; err != nil {
		t.Fatal(err)
	}

	banned, _, err := env.blacklistSvc.IsBlacklisted(ctx, 5003)
	if err != nil {
		t.Fatal(err)
	}
	if banned {
		t.Fatal("到期封禁应视为未封禁")
	}

	// 惰性清除：读取即删，列表里也不再出现
	entries, err := env.blacklistSvc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.UserID == 5003 {
			t.Fatal("到期纪录应已被删除")
		}
	}
}

func TestRepeatBanOverwrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID:   5004,
		Username: "repeat",
		Reason:   "第一次",
		BannedBy: 9001,
		Days:     3,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID:   5004,
		Username: "repeat",
		Reason:   "第二次",
		BannedBy: 9002,
	}); err != nil {
		t.Fatal(err)
	}

	banned, entry, err := env.blacklistSvc.IsBlacklisted(ctx, 5004)
	if err != nil {
		t.Fatal(err)
	}
	if !banned {
		t.Fatal("应处于封禁状态")
	}
	if entry.Reason != "第二次" || !entry.IsPermanent || entry.BannedBy != 9002 {
		t.Fatalf("重复封禁应整体覆盖，实际 %+v", entry)
	}

	// 每个用户至多一条纪录
	var count int64
	if err := env.db.Model(&model.BlacklistEntry{}).Where("user_id = ?", 5004).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("期望 1 条黑名单纪录，实际 %d", count)
	}
}

func TestPermanentBanNeverExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID:   5005,
		Username: "forever",
		Reason:   "黑产团伙",
		BannedBy: 9001,
	}); err != nil {
		t.Fatal(err)
	}

	// 永久封禁不受 banned_until 影响
	banned, entry, err := env.blacklistSvc.IsBlacklisted(ctx, 5005)
	if err != nil {
		t.Fatal(err)
	}
	if !banned || !entry.IsPermanent {
		t.Fatal("永久封禁应始终生效")
	}
}

func TestTimedBanPersistsAsNonPermanent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.blacklistSvc.Ban(ctx, &BanRequest{
		UserID:   5006,
		Username: "limited",
		Reason:   "限时处罚",
		BannedBy: 9001,
		Days:     7,
	}); err != nil {
		t.Fatal(err)
	}

	// 直接回读落库纪录，限时封禁不允许被存成永久
	var row model.BlacklistEntry
	if err := env.db.Where("user_id = ?", 5006).First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if row.IsPermanent {
		t.Fatal("限时封禁落库后 IsPermanent 应为 false")
	}
	if row.BannedUntil == nil {
		t.Fatal("限时封禁必须带到期时间")
	}
}
