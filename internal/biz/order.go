package biz

import (
	"context"
	"time"

	"xinyuan_tech/provision-service/internal/constants"
)

// Order 游戏服务器订单
// 状态机: pending -> paid -> provisioning -> provisioned|error|failed
// canceled 为终态，不参与任何对账查询
type Order struct {
	ID                     string
	ItemType               string // game 等，只有 game 参与开服
	Status                 string
	ProvisionAttemptCount  int
	LastProvisionAttemptAt *time.Time
	PanelServerRef         string // 面板分配的服务器标识，非空即视为开服成功
	PaypalSubscriptionRef  string
	PaypalPayerRef         string
	FailureReason          string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SubscriptionMirror PayPal 订阅状态的本地镜像
// 仅用于审计和读优化，数据源头始终是 PayPal
type SubscriptionMirror struct {
	OrderID        string
	SubscriptionID string
	Status         string // 远端状态统一大写
	PayerID        string
	UpdatedAt      time.Time
}

// OrderRepo 订单仓库接口
type OrderRepo interface {
	// 对账批量查询 (均为最旧优先，上限 200 条)
	FindStuckOrders(ctx context.Context) ([]*Order, error)
	FindDanglingProvisioned(ctx context.Context) ([]*Order, error)
	FindSubscribedOrders(ctx context.Context) ([]*Order, error)

	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// 状态流转 (均为带条件的单行更新)
	MarkProvisioning(ctx context.Context, orderID string, now time.Time) error
	TransitionToPaid(ctx context.Context, orderID, subscriptionID, payerID string) error
	TransitionToFailed(ctx context.Context, orderID, reason string) error
	TransitionToProvisioned(ctx context.Context, orderID, serverRef string) error
	TransitionToError(ctx context.Context, orderID, reason string) error

	UpsertSubscriptionMirror(ctx context.Context, orderID, subscriptionID, status, payerID string) error

	// AttemptTrackingReady 订单表是否已包含尝试跟踪字段
	// 启动时探测一次，灰度期间字段缺失时卡单对账降级为空操作
	AttemptTrackingReady() bool
}

// CanProvision 判断订单当前是否具备开服资格
// failed 不是开服意义上的终态，仍可在退避窗口后重试；
// 是否彻底放弃由队列的尝试上限决定，而不是状态机
func CanProvision(o *Order) bool {
	if o == nil || o.ItemType != constants.ItemTypeGame {
		return false
	}
	if o.PanelServerRef != "" {
		return false
	}
	switch o.Status {
	case constants.OrderStatusPaid,
		constants.OrderStatusProvisioning,
		constants.OrderStatusError,
		constants.OrderStatusFailed:
		return true
	}
	return false
}
