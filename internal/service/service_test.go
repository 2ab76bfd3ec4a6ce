package service

import (
	"testing"

	"walletbot/internal/config"
	"walletbot/internal/infrastructure/database"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试用独立的内存库，结构与生产一致
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				OrderNotify:   "notify.order",
				DepositNotify: "notify.deposit",
				RiskNotify:    "notify.risk",
			},
			MaxRetryCount: 5,
		},
		Risk: config.RiskConfig{
			AutoHandleIntervalMinutes: 10,
			AutoBanDays:               7,
		},
		Shop: config.ShopConfig{
			Items: []config.ShopItem{
				{
					Name:           "陪玩1小時",
					Price:          decimal.NewFromInt(200),
					Category:       "陪玩服務",
					CommissionRate: decimal.RequireFromString("0.70"),
				},
				{
					Name:           "VIP會員月卡",
					Price:          decimal.NewFromInt(1000),
					Category:       "會員服務",
					CommissionRate: decimal.RequireFromString("0.60"),
				},
			},
		},
		Deposit: config.DepositConfig{
			Method: "銀行轉帳",
			Plans: []config.DepositPlan{
				{Amount: decimal.NewFromInt(300), Points: decimal.NewFromInt(300)},
				{Amount: decimal.NewFromInt(500), Points: decimal.NewFromInt(520)},
				{Amount: decimal.NewFromInt(1000), Points: decimal.NewFromInt(1100)},
				{Amount: decimal.NewFromInt(3000), Points: decimal.NewFromInt(3400)},
			},
		},
	}
}

type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	walletSvc    *WalletService
	riskSvc      *RiskService
	blacklistSvc *BlacklistService
	orderSvc     *OrderService
	depositSvc   *DepositService
	reportSvc    *ReportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig()
	walletSvc := NewWalletService(db, nil)
	riskSvc := NewRiskService(db, cfg)
	blacklistSvc := NewBlacklistService(db, cfg)

	return &testEnv{
		db:           db,
		cfg:          cfg,
		walletSvc:    walletSvc,
		riskSvc:      riskSvc,
		blacklistSvc: blacklistSvc,
		orderSvc:     NewOrderService(db, cfg, walletSvc, riskSvc, blacklistSvc),
		depositSvc:   NewDepositService(db, cfg, walletSvc, riskSvc, blacklistSvc),
		reportSvc:    NewReportService(db, walletSvc),
	}
}

func mustEqual(t *testing.T, got, want decimal.Decimal, what string) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s: 期望 %s，实际 %s", what, want.String(), got.String())
	}
}
