package job

import (
	"context"
	"log"
	"time"

	"walletbot/internal/config"
	"walletbot/internal/service"

	"gorm.io/gorm"
)

// RiskAutoHandleJob 周期性自动风控处置
// 扫描逻辑本身幂等（只看 handled=false），任务重启不会重复封禁
type RiskAutoHandleJob struct {
	riskSvc  *service.RiskService
	stopCh   chan struct{}
	interval time.Duration
}

func NewRiskAutoHandleJob(db *gorm.DB, cfg *config.Config) *RiskAutoHandleJob {
	return &RiskAutoHandleJob{
		riskSvc:  service.NewRiskService(db, cfg),
		stopCh:   make(chan struct{}),
		interval: time.Duration(cfg.Risk.AutoHandleIntervalMinutes) * time.Minute,
	}
}

func (j *RiskAutoHandleJob) Start(ctx context.Context) {
	log.Println("[RiskAutoHandleJob] 自动风控处置任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[RiskAutoHandleJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[RiskAutoHandleJob] 任务停止")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *RiskAutoHandleJob) Stop() {
	close(j.stopCh)
}

func (j *RiskAutoHandleJob) runOnce(ctx context.Context) {
	result, err := j.riskSvc.AutoHandleRisks(ctx)
	if err != nil {
		log.Printf("[RiskAutoHandleJob] 处置失败: %v", err)
		return
	}

	if result.Scanned > 0 {
		log.Printf("[RiskAutoHandleJob] 扫描 %d 条事件，自动封禁 %d 人", result.Scanned, result.AutoBanned)
	}
}
