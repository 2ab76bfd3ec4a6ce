package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"walletbot/internal/config"
	"walletbot/internal/infrastructure/database"
	"walletbot/internal/service"
)

// 离线报表工具：直接读库出数，不依赖在线服务
//
// 用法：
//
//	report -config config/config.yaml daily -date 2026-01-15
//	report -config config/config.yaml user -user-id 123456
//	report -config config/config.yaml staff -staff-id 999
//	report -config config/config.yaml pending
//	report -config config/config.yaml reconcile
//	report -config config/config.yaml suspicious
func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.LoadConfig(*configPath)
	db := database.InitMySQL(&cfg.MySQL)

	walletSvc := service.NewWalletService(db, nil)
	reportSvc := service.NewReportService(db, walletSvc)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var (
		result interface{}
		err    error
	)

	switch command {
	case "daily":
		fs := flag.NewFlagSet("daily", flag.ExitOnError)
		date := fs.String("date", time.Now().Format("2006-01-02"), "日期 (YYYY-MM-DD)")
		fs.Parse(args)
		result, err = reportSvc.GetDailySummary(ctx, *date)
	case "user":
		fs := flag.NewFlagSet("user", flag.ExitOnError)
		userID := fs.Int64("user-id", 0, "用户ID")
		fs.Parse(args)
		if *userID == 0 {
			log.Fatal("user-id 不能为空")
		}
		result, err = reportSvc.GetUserStatistics(ctx, *userID)
	case "staff":
		fs := flag.NewFlagSet("staff", flag.ExitOnError)
		staffID := fs.Int64("staff-id", 0, "工作人员ID")
		fs.Parse(args)
		if *staffID == 0 {
			log.Fatal("staff-id 不能为空")
		}
		result, err = reportSvc.GetStaffStatistics(ctx, *staffID)
	case "orders":
		fs := flag.NewFlagSet("orders", flag.ExitOnError)
		start := fs.String("start", "", "开始日期 (YYYY-MM-DD)")
		end := fs.String("end", "", "结束日期 (YYYY-MM-DD)")
		fs.Parse(args)
		result, err = reportSvc.ListOrdersByDateRange(ctx, *start, *end)
	case "pending":
		result, err = reportSvc.ListPendingOrderDetails(ctx)
	case "reconcile":
		var mismatches []service.ReconcileResult
		mismatches, err = reportSvc.GetReconciliationReport(ctx)
		result = map[string]interface{}{
			"consistent": len(mismatches) == 0,
			"mismatches": mismatches,
		}
	case "suspicious":
		var users []service.SuspiciousAccount
		users, err = reportSvc.DetectSuspiciousUsers(ctx)
		if err == nil {
			var staff []service.SuspiciousStaff
			staff, err = reportSvc.DetectSuspiciousStaff(ctx)
			result = map[string]interface{}{
				"users": users,
				"staff": staff,
			}
		}
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("报表生成失败: %v", err)
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("序列化失败: %v", err)
	}
	fmt.Println(string(output))
}

func usage() {
	fmt.Fprintln(os.Stderr, "用法: report [-config path] <daily|user|staff|orders|pending|reconcile|suspicious> [参数]")
}
