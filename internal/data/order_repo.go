package data

import (
	"context"
	"errors"
	"time"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/constants"
	"xinyuan_tech/provision-service/internal/data/model"
	domainErrors "xinyuan_tech/provision-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// retryableStatuses 可重新开服的状态集合
var retryableStatuses = []string{
	constants.OrderStatusPaid,
	constants.OrderStatusProvisioning,
	constants.OrderStatusError,
	constants.OrderStatusFailed,
}

// subscribedStatuses 订阅对账关注的状态集合 (非 canceled 且尚未 provisioned)
var subscribedStatuses = []string{
	constants.OrderStatusPending,
	constants.OrderStatusPaid,
	constants.OrderStatusProvisioning,
	constants.OrderStatusError,
	constants.OrderStatusFailed,
}

// orderRepo 订单仓库实现
type orderRepo struct {
	data *Data
	log  *log.Helper

	// 启动时探测一次，替代原实现里按错误码嗅探表结构的做法
	attemptTrackingReady bool
}

// NewOrderRepo 创建订单仓库
func NewOrderRepo(data *Data, logger log.Logger) biz.OrderRepo {
	helper := log.NewHelper(logger)

	migrator := data.db.Migrator()
	ready := migrator.HasColumn(&model.Order{}, "provision_attempt_count") &&
		migrator.HasColumn(&model.Order{}, "last_provision_attempt_at")
	if !ready {
		helper.Warn("Order table is missing attempt-tracking columns, stuck reconciliation will be a no-op")
	}

	return &orderRepo{
		data:                 data,
		log:                  helper,
		attemptTrackingReady: ready,
	}
}

// AttemptTrackingReady 订单表是否已包含尝试跟踪字段
func (r *orderRepo) AttemptTrackingReady() bool {
	return r.attemptTrackingReady
}

// FindStuckOrders 查询卡单候选
// 已付费/开服中/出错/失败、没有面板服务器、且静默超过最小时长的 game 订单。
// 退避判断属于策略层，这里只负责候选集
func (r *orderRepo) FindStuckOrders(ctx context.Context) ([]*biz.Order, error) {
	cutoff := time.Now().UTC().Add(-constants.StuckStalenessFloor)

	var models []model.Order
	err := r.data.db.WithContext(ctx).
		Where("item_type = ?", constants.ItemTypeGame).
		Where("status IN ?", retryableStatuses).
		Where("panel_server_ref = ?", "").
		Where("COALESCE(last_provision_attempt_at, created_at) <= ?", cutoff).
		Order("created_at ASC").
		Limit(constants.ReconcileBatchLimit).
		Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to query stuck orders: %v", err)
		return nil, err
	}

	return toDomainOrders(models), nil
}

// FindDanglingProvisioned 查询悬挂订单
// provisioned 状态要求必须有面板服务器引用，查出来的都是不一致数据
func (r *orderRepo) FindDanglingProvisioned(ctx context.Context) ([]*biz.Order, error) {
	var models []model.Order
	err := r.data.db.WithContext(ctx).
		Where("item_type = ?", constants.ItemTypeGame).
		Where("status = ?", constants.OrderStatusProvisioned).
		Where("panel_server_ref = ?", "").
		Order("created_at ASC").
		Limit(constants.ReconcileBatchLimit).
		Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to query dangling provisioned orders: %v", err)
		return nil, err
	}

	return toDomainOrders(models), nil
}

// FindSubscribedOrders 查询有未决 PayPal 订阅的订单
func (r *orderRepo) FindSubscribedOrders(ctx context.Context) ([]*biz.Order, error) {
	var models []model.Order
	err := r.data.db.WithContext(ctx).
		Where("item_type = ?", constants.ItemTypeGame).
		Where("paypal_subscription_ref <> ?", "").
		Where("status IN ?", subscribedStatuses).
		Order("created_at ASC").
		Limit(constants.ReconcileBatchLimit).
		Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to query subscribed orders: %v", err)
		return nil, err
	}

	return toDomainOrders(models), nil
}

// GetOrder 获取订单
func (r *orderRepo) GetOrder(ctx context.Context, orderID string) (*biz.Order, error) {
	var m model.Order
	err := r.data.db.WithContext(ctx).First(&m, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get order %s: %v", orderID, err)
		return nil, err
	}
	return toDomainOrder(m), nil
}

// MarkProvisioning 推进订单到 provisioning
// 尝试计数只增不减，退避时钟同步前移。带状态条件的单行更新，
// 行不匹配说明已被其他流程推进
func (r *orderRepo) MarkProvisioning(ctx context.Context, orderID string, now time.Time) error {
	result := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND status IN ?", orderID, retryableStatuses).
		Updates(map[string]interface{}{
			"status":                    constants.OrderStatusProvisioning,
			"provision_attempt_count":   gorm.Expr("provision_attempt_count + 1"),
			"last_provision_attempt_at": now.UTC(),
			"updated_at":                now.UTC(),
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark order %s provisioning: %v", orderID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrTransitionConflict(orderID)
	}
	return nil
}

// TransitionToPaid 推进订单到 paid，并记录订阅与付款人引用
// 已是终态的订单不会被覆盖；行不匹配视为已被处理过 (幂等)
func (r *orderRepo) TransitionToPaid(ctx context.Context, orderID, subscriptionID, payerID string) error {
	result := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND status IN ?", orderID, subscribedStatuses).
		Updates(map[string]interface{}{
			"status":                  constants.OrderStatusPaid,
			"paypal_subscription_ref": subscriptionID,
			"paypal_payer_ref":        payerID,
			"updated_at":              time.Now().UTC(),
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark order %s paid: %v", orderID, result.Error)
		return result.Error
	}
	return nil
}

// TransitionToFailed 订单转入 failed，附带诊断原因
func (r *orderRepo) TransitionToFailed(ctx context.Context, orderID, reason string) error {
	result := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":         constants.OrderStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark order %s failed: %v", orderID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrOrderNotFound(orderID)
	}
	return nil
}

// TransitionToProvisioned 开服成功，记录面板服务器引用
func (r *orderRepo) TransitionToProvisioned(ctx context.Context, orderID, serverRef string) error {
	result := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":           constants.OrderStatusProvisioned,
			"panel_server_ref": serverRef,
			"failure_reason":   "",
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark order %s provisioned: %v", orderID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrOrderNotFound(orderID)
	}
	return nil
}

// TransitionToError 开服失败，订单转入 error 等待下一轮对账
func (r *orderRepo) TransitionToError(ctx context.Context, orderID, reason string) error {
	result := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":         constants.OrderStatusError,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		r.log.Errorf("Failed to mark order %s error: %v", orderID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainErrors.ErrOrderNotFound(orderID)
	}
	return nil
}

// UpsertSubscriptionMirror 刷新订阅状态镜像
func (r *orderRepo) UpsertSubscriptionMirror(ctx context.Context, orderID, subscriptionID, status, payerID string) error {
	m := &model.SubscriptionMirror{
		OrderID:        orderID,
		SubscriptionID: subscriptionID,
		Status:         status,
		PayerID:        payerID,
		UpdatedAt:      time.Now().UTC(),
	}
	err := r.data.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "payer_id", "updated_at"}),
		}).
		Create(m).Error
	if err != nil {
		r.log.Errorf("Failed to upsert subscription mirror for order %s: %v", orderID, err)
		return err
	}
	return nil
}

func toDomainOrder(m model.Order) *biz.Order {
	return &biz.Order{
		ID:                     m.ID,
		ItemType:               m.ItemType,
		Status:                 m.Status,
		ProvisionAttemptCount:  m.ProvisionAttemptCount,
		LastProvisionAttemptAt: m.LastProvisionAttemptAt,
		PanelServerRef:         m.PanelServerRef,
		PaypalSubscriptionRef:  m.PaypalSubscriptionRef,
		PaypalPayerRef:         m.PaypalPayerRef,
		FailureReason:          m.FailureReason,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func toDomainOrders(models []model.Order) []*biz.Order {
	orders := make([]*biz.Order, len(models))
	for i, m := range models {
		orders[i] = toDomainOrder(m)
	}
	return orders
}
