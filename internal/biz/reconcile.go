package biz

import (
	"context"
	"strings"
	"time"

	"xinyuan_tech/provision-service/internal/conf"
	"xinyuan_tech/provision-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// ReconcileUsecase 订单对账业务逻辑
// 三个对账任务各自独立调度，每个任务用分布式锁防止多实例重复执行
type ReconcileUsecase struct {
	orderRepo OrderRepo
	queue     ProvisionQueue
	paypal    PaypalClient
	rs        *redsync.Redsync
	config    *conf.Bootstrap
	log       *log.Helper

	// 测试注入用，默认 time.Now
	now func() time.Time
}

// NewReconcileUsecase 创建对账用例
func NewReconcileUsecase(
	orderRepo OrderRepo,
	queue ProvisionQueue,
	paypal PaypalClient,
	rs *redsync.Redsync,
	config *conf.Bootstrap,
	logger log.Logger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		orderRepo: orderRepo,
		queue:     queue,
		paypal:    paypal,
		rs:        rs,
		config:    config,
		log:       log.NewHelper(logger),
		now:       time.Now,
	}
}

// withPassLock 在分布式锁保护下执行一个对账任务
// 获取锁失败说明已有实例在跑同一任务，直接跳过本轮
func (uc *ReconcileUsecase) withPassLock(ctx context.Context, pass string, fn func(ctx context.Context) (int, error)) (int, error) {
	if uc.rs == nil {
		// 单实例部署 (测试环境) 允许不带锁运行
		return fn(ctx)
	}

	mutex := uc.rs.NewMutex(
		"reconcile_lock:"+pass,
		redsync.WithExpiry(constants.ReconcileLockExpiration),
		redsync.WithTries(constants.ReconcileLockRetries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		uc.log.Infof("Skipping %s pass: lock busy, another instance is running", pass)
		return 0, nil
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			uc.log.Warnf("Failed to unlock %s pass: %v", pass, err)
		}
	}()

	return fn(ctx)
}

// ReconcileStuckOrders 卡单对账
// 找出已付费但迟迟没有拿到面板服务器的订单，退避窗口已过的重新入队开服。
// 返回本轮考察的订单数
func (uc *ReconcileUsecase) ReconcileStuckOrders(ctx context.Context) (int, error) {
	return uc.withPassLock(ctx, "stuck", uc.reconcileStuckOrders)
}

func (uc *ReconcileUsecase) reconcileStuckOrders(ctx context.Context) (int, error) {
	if !uc.orderRepo.AttemptTrackingReady() {
		// 订单表还没有尝试跟踪字段 (灰度期间的预期状态)，本轮降级为空操作
		uc.log.Warn("Stuck pass skipped: order schema missing attempt-tracking columns")
		return 0, nil
	}

	orders, err := uc.orderRepo.FindStuckOrders(ctx)
	if err != nil {
		uc.log.Errorf("Failed to query stuck orders: %v", err)
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}

	uc.log.Infof("Stuck pass: found %d candidate orders", len(orders))

	now := uc.now()
	enqueued := 0
	for _, order := range orders {
		if !RetryDue(order, now) {
			continue
		}
		if err := uc.dispatchProvision(ctx, order.ID, constants.SourceStuckReconcile, now); err != nil {
			// 单个订单失败不阻断本批次
			uc.log.Errorf("Stuck pass: failed to dispatch order %s: %v", order.ID, err)
			continue
		}
		enqueued++
	}

	uc.log.Infof("Stuck pass completed: considered=%d, enqueued=%d", len(orders), enqueued)
	return len(orders), nil
}

// dispatchProvision 入队开服任务并推进订单到 provisioning
// 先入队后标记：标记失败时退避时钟不前进，下一轮的重复入队由去重标记合并
func (uc *ReconcileUsecase) dispatchProvision(ctx context.Context, orderID, source string, now time.Time) error {
	if err := uc.queue.Enqueue(ctx, orderID, source); err != nil {
		return err
	}
	if err := uc.orderRepo.MarkProvisioning(ctx, orderID, now); err != nil {
		uc.log.Errorf("Enqueued order %s but failed to mark provisioning: %v", orderID, err)
		return err
	}
	return nil
}

// ReconcileDanglingOrders 悬挂订单对账
// 状态为 provisioned 却没有面板服务器引用的订单属于数据不一致，
// 统一转为 failed 并附带固定诊断原因。单向清理，不会自动重试。
// 返回本轮处理的订单数
func (uc *ReconcileUsecase) ReconcileDanglingOrders(ctx context.Context) (int, error) {
	return uc.withPassLock(ctx, "dangling", uc.reconcileDanglingOrders)
}

func (uc *ReconcileUsecase) reconcileDanglingOrders(ctx context.Context) (int, error) {
	orders, err := uc.orderRepo.FindDanglingProvisioned(ctx)
	if err != nil {
		uc.log.Errorf("Failed to query dangling provisioned orders: %v", err)
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}

	uc.log.Warnf("Dangling pass: found %d provisioned orders without server reference", len(orders))

	processed := 0
	for _, order := range orders {
		if err := uc.orderRepo.TransitionToFailed(ctx, order.ID, constants.DanglingFailureReason); err != nil {
			uc.log.Errorf("Dangling pass: failed to transition order %s: %v", order.ID, err)
			continue
		}
		uc.log.Infof("Dangling pass: order %s corrected to failed", order.ID)
		processed++
	}

	uc.log.Infof("Dangling pass completed: processed=%d", processed)
	return processed, nil
}

// ReconcileSubscriptions 订阅对账
// 轮询 PayPal 订阅状态，远端 ACTIVE 的订单推进到 paid 并刷新本地镜像，
// 满足开服资格且退避允许时顺带触发开服。
// 返回本轮处理的订单数
func (uc *ReconcileUsecase) ReconcileSubscriptions(ctx context.Context) (int, error) {
	return uc.withPassLock(ctx, "subscription", uc.reconcileSubscriptions)
}

func (uc *ReconcileUsecase) reconcileSubscriptions(ctx context.Context) (int, error) {
	if !uc.config.PaypalEnabled() {
		// 凭证缺失是合法的部署状态 (功能关闭)，不作为错误处理
		uc.log.Warn("Subscription pass skipped: PayPal credentials not configured")
		return 0, nil
	}

	orders, err := uc.orderRepo.FindSubscribedOrders(ctx)
	if err != nil {
		uc.log.Errorf("Failed to query subscribed orders: %v", err)
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}

	paypalCfg := uc.config.Client.Paypal
	token, err := uc.paypal.GetAccessToken(ctx, paypalCfg.ClientID, paypalCfg.ClientSecret, paypalCfg.Sandbox)
	if err != nil {
		uc.log.Errorf("Failed to get PayPal access token: %v", err)
		return 0, err
	}

	uc.log.Infof("Subscription pass: checking %d orders against PayPal", len(orders))

	now := uc.now()
	processed := 0
	for _, order := range orders {
		if err := uc.reconcileOneSubscription(ctx, order, token, now); err != nil {
			// 单个订单失败不阻断本批次，也不作废共享令牌
			uc.log.Errorf("Subscription pass: failed to reconcile order %s (sub=%s): %v", order.ID, order.PaypalSubscriptionRef, err)
			continue
		}
		processed++
	}

	uc.log.Infof("Subscription pass completed: processed=%d", processed)
	return processed, nil
}

func (uc *ReconcileUsecase) reconcileOneSubscription(ctx context.Context, order *Order, token string, now time.Time) error {
	sub, err := uc.paypal.GetSubscription(ctx, token, order.PaypalSubscriptionRef, uc.config.Client.Paypal.Sandbox)
	if err != nil {
		return err
	}

	status := strings.ToUpper(sub.Status)
	if status != constants.PaypalSubscriptionActive {
		// 非 ACTIVE 状态只记录，不做任何状态变更
		uc.log.Infof("Order %s subscription %s is %s, no action", order.ID, order.PaypalSubscriptionRef, status)
		return nil
	}

	if err := uc.orderRepo.TransitionToPaid(ctx, order.ID, order.PaypalSubscriptionRef, sub.Subscriber.PayerID); err != nil {
		return err
	}
	if err := uc.orderRepo.UpsertSubscriptionMirror(ctx, order.ID, order.PaypalSubscriptionRef, status, sub.Subscriber.PayerID); err != nil {
		// 镜像只是审计副本，写入失败不影响订单状态推进
		uc.log.Warnf("Failed to upsert subscription mirror for order %s: %v", order.ID, err)
	}

	// 推进到 paid 之后按常规资格规则决定是否顺带开服
	order.Status = constants.OrderStatusPaid
	if CanProvision(order) && RetryDue(order, now) {
		if err := uc.dispatchProvision(ctx, order.ID, constants.SourceSubscriptionReconcile, now); err != nil {
			return err
		}
		uc.log.Infof("Order %s marked paid and dispatched for provisioning", order.ID)
	} else {
		uc.log.Infof("Order %s marked paid (subscription ACTIVE)", order.ID)
	}
	return nil
}
