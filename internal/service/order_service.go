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
	"walletbot/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound  = errors.New("商品不存在")
	ErrUserBanned    = errors.New("用户已被封禁")
	ErrRefundBlocked = errors.New("退款请求被风控拦截")
)

// OrderService 订单与分润引擎
//
// 【资金流】购买 = 先扣款后建单；建单失败走补偿入账（尽力而为，
// 补偿也失败时属于不可恢复的不一致，大声报出来留给人工对账，
// 绝不静默吞掉
type OrderService struct {
	db             *gorm.DB
	cfg            *config.Config
	walletSvc      *WalletService
	riskSvc        *RiskService
	blacklistSvc   *BlacklistService
	orderRepo      *repository.OrderRepository
	commissionRepo *repository.CommissionRepository
	outboxRepo     *repository.OutboxRepository
}

func NewOrderService(db *gorm.DB, cfg *config.Config, walletSvc *WalletService, riskSvc *RiskService, blacklistSvc *BlacklistService) *OrderService {
	return &OrderService{
		db:             db,
		cfg:            cfg,
		walletSvc:      walletSvc,
		riskSvc:        riskSvc,
		blacklistSvc:   blacklistSvc,
		orderRepo:      repository.NewOrderRepository(db),
		commissionRepo: repository.NewCommissionRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

type PurchaseRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Username string `json:"username"`
	ItemName string `json:"item_name" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Note     string `json:"note"`
}

type PurchaseResponse struct {
	OrderNo    string          `json:"order_no"`
	ItemName   string          `json:"item_name"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Balance    decimal.Decimal `json:"balance"`
	Status     string          `json:"status"`
}

// Purchase 购买：黑名单门禁 -> 扣款 -> 建单 -> 异步风控巡检
func (s *OrderService) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	banned, entry, err := s.blacklistSvc.IsBlacklisted(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, fmt.Errorf("%w: %s", ErrUserBanned, entry.Reason)
	}

	item := s.cfg.Shop.FindItem(req.ItemName)
	if item == nil {
		return nil, ErrItemNotFound
	}

	totalPrice := item.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))

	// 先扣款（applyDelta 自带锁与事务）
	txn, err := s.walletSvc.ApplyDelta(ctx, &DeltaRequest{
		UserID:      req.UserID,
		Delta:       totalPrice.Neg(),
		Type:        model.TransactionTypePurchase,
		Description: fmt.Sprintf("购买 %s x%d", req.ItemName, req.Quantity),
	})
	if err != nil {
		return nil, err
	}

	order, err := s.createOrder(ctx, req, item, totalPrice)
	if err != nil {
		// 已扣款但建单失败，补偿入账
		if _, compErr := s.walletSvc.ApplyDelta(ctx, &DeltaRequest{
			UserID:      req.UserID,
			Delta:       totalPrice,
			Type:        model.TransactionTypeRefund,
			Description: fmt.Sprintf("建单失败退回: %s x%d", req.ItemName, req.Quantity),
		}); compErr != nil {
			log.Printf("【严重】补偿退款失败，需人工对账: userID=%d, amount=%s, err=%v",
				req.UserID, totalPrice.String(), compErr)
			return nil, fmt.Errorf("建单失败且退款补偿失败，请联系管理员对账: %v", compErr)
		}
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	// 风控巡检不阻塞购买主流程
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.riskSvc.DetectSuspiciousActivity(bgCtx, req.UserID, req.Username); err != nil {
			log.Printf("风控巡检失败: userID=%d, err=%v", req.UserID, err)
		}
	}()

	log.Printf("购买成功: orderNo=%s, userID=%d, total=%s", order.OrderNo, req.UserID, totalPrice.String())

	return &PurchaseResponse{
		OrderNo:    order.OrderNo,
		ItemName:   order.ItemName,
		Quantity:   order.Quantity,
		TotalPrice: order.TotalPrice,
		Balance:    txn.BalanceAfter,
		Status:     order.Status,
	}, nil
}

// createOrder 建单：分润比例在此刻快照，后续改目录不影响已有订单
func (s *OrderService) createOrder(ctx context.Context, req *PurchaseRequest, item *config.ShopItem, totalPrice decimal.Decimal) (*model.Order, error) {
	staffEarning := totalPrice.Mul(item.CommissionRate).Round(2)
	platformFee := totalPrice.Sub(staffEarning)

	order := &model.Order{
		OrderNo:        idgen.GenerateOrderNo(),
		UserID:         req.UserID,
		Username:       req.Username,
		ItemName:       item.Name,
		ItemPrice:      item.Price,
		Quantity:       req.Quantity,
		TotalPrice:     totalPrice,
		Status:         model.OrderStatusPending,
		Note:           req.Note,
		CommissionRate: item.CommissionRate,
		StaffEarning:   staffEarning,
		PlatformFee:    platformFee,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_no":    order.OrderNo,
			"user_id":     order.UserID,
			"username":    order.Username,
			"item_name":   order.ItemName,
			"quantity":    order.Quantity,
			"total_price": order.TotalPrice,
			"status":      order.Status,
			"created_at":  time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: order.OrderNo,
			Topic:      s.cfg.Kafka.Topic.OrderNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

type CompleteOrderResponse struct {
	OrderNo      string          `json:"order_no"`
	StaffID      int64           `json:"staff_id"`
	StaffEarning decimal.Decimal `json:"staff_earning"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
}

// CompleteOrder 完成订单并结算分润，全部动作一个事务
// 状态守卫 + commission_paid 标志 + 分润表唯一索引三重防重
func (s *OrderService) CompleteOrder(ctx context.Context, orderNo string, staffID int64, staffName string) (*CompleteOrderResponse, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	if order.Status != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: 当前状态 %s", repository.ErrOrderStatusInvalid, order.Status)
	}
	if order.CommissionPaid {
		return nil, fmt.Errorf("%w: 分润已发放", repository.ErrOrderStatusInvalid)
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo,
			model.OrderStatusPending, model.OrderStatusCompleted,
			map[string]interface{}{
				"completed_at":    &now,
				"staff_id":        staffID,
				"commission_paid": true,
			}); err != nil {
			return err
		}

		commission := &model.Commission{
			OrderNo:        order.OrderNo,
			StaffID:        staffID,
			StaffName:      staffName,
			OrderAmount:    order.TotalPrice,
			CommissionRate: order.CommissionRate,
			StaffEarning:   order.StaffEarning,
			PlatformFee:    order.PlatformFee,
		}
		if err := s.commissionRepo.Create(ctx, tx, commission); err != nil {
			return fmt.Errorf("记录分润失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_no":      order.OrderNo,
			"user_id":       order.UserID,
			"staff_id":      staffID,
			"staff_name":    staffName,
			"staff_earning": order.StaffEarning,
			"platform_fee":  order.PlatformFee,
			"status":        model.OrderStatusCompleted,
			"completed_at":  now.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: order.OrderNo,
			Topic:      s.cfg.Kafka.Topic.OrderNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("订单完成: orderNo=%s, staffID=%d, earning=%s, fee=%s",
		orderNo, staffID, order.StaffEarning.String(), order.PlatformFee.String())

	return &CompleteOrderResponse{
		OrderNo:      order.OrderNo,
		StaffID:      staffID,
		StaffEarning: order.StaffEarning,
		PlatformFee:  order.PlatformFee,
	}, nil
}

// RefundOrder 退款：恶意退款卡点 -> 状态流转 + 退款入账一个事务
// 只有 pending 订单可退，退完进入 refunded 终态
func (s *OrderService) RefundOrder(ctx context.Context, orderNo string, operatorID int64) (*model.AccountTransaction, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	if order.Status != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: 当前状态 %s", repository.ErrOrderStatusInvalid, order.Status)
	}

	blocked, reason, err := s.riskSvc.CheckMaliciousRefund(ctx, order.UserID, order.Username)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%w: %s", ErrRefundBlocked, reason)
	}

	var txn *model.AccountTransaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo,
			model.OrderStatusPending, model.OrderStatusRefunded, nil); err != nil {
			return err
		}

		var err error
		txn, err = s.walletSvc.ApplyDeltaTx(ctx, tx, &DeltaRequest{
			UserID:      order.UserID,
			Delta:       order.TotalPrice,
			Type:        model.TransactionTypeRefund,
			Description: fmt.Sprintf("订单退款: %s (操作人=%d)", orderNo, operatorID),
		})
		if err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_no":    orderNo,
			"user_id":     order.UserID,
			"amount":      order.TotalPrice,
			"status":      model.OrderStatusRefunded,
			"operator_id": operatorID,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: orderNo,
			Topic:      s.cfg.Kafka.Topic.OrderNotify,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("订单退款: orderNo=%s, userID=%d, amount=%s", orderNo, order.UserID, order.TotalPrice.String())
	return txn, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID, limit)
}

func (s *OrderService) ListOrdersByStaff(ctx context.Context, staffID int64, limit int) ([]model.Order, error) {
	return s.orderRepo.ListByStaff(ctx, staffID, limit)
}

func (s *OrderService) ListPendingOrders(ctx context.Context) ([]model.Order, error) {
	return s.orderRepo.ListByStatus(ctx, model.OrderStatusPending)
}

func (s *OrderService) ListCommissionsByStaff(ctx context.Context, staffID int64, limit int) ([]model.Commission, error) {
	return s.commissionRepo.ListByStaff(ctx, staffID, limit)
}
