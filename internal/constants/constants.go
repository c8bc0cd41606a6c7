package constants

import "time"

// 订单状态
const (
	OrderStatusPending      = "pending"
	OrderStatusPaid         = "paid"
	OrderStatusProvisioning = "provisioning"
	OrderStatusProvisioned  = "provisioned"
	OrderStatusError        = "error"
	OrderStatusFailed       = "failed"
	OrderStatusCanceled     = "canceled"
)

// 商品类型
const (
	// ItemTypeGame 游戏服务器商品 (只有该类型参与开服调度)
	ItemTypeGame = "game"
)

// 入队来源 (用于区分是哪个对账任务触发的开服)
const (
	// SourceStuckReconcile 卡单对账任务
	SourceStuckReconcile = "stuck_reconcile"
	// SourceSubscriptionReconcile 订阅对账任务
	SourceSubscriptionReconcile = "subscription_reconcile"
)

// 重试退避相关常量
const (
	// BackoffBaseMinutes 退避基础时长(分钟)
	BackoffBaseMinutes = 5
	// BackoffCapMinutes 退避时长上限(分钟)
	BackoffCapMinutes = 30
	// BackoffExponentCap 指数上限 (5*2^4 已超过上限，再大无意义)
	BackoffExponentCap = 4
	// StuckStalenessFloor 卡单判定的最小静默时长
	// 独立于退避策略，避免把首次尝试中的订单误判为卡单
	StuckStalenessFloor = 10 * time.Minute
)

// 批量查询相关常量
const (
	// ReconcileBatchLimit 对账任务单次处理上限
	ReconcileBatchLimit = 200
)

// 开服任务队列相关常量
const (
	// QueueMaxAttempts 队列内部重试次数上限 (瞬时失败重试，区别于对账退避)
	QueueMaxAttempts = 3
	// QueueRetryBaseDelay 队列重试基础延迟
	QueueRetryBaseDelay = 30 * time.Second
	// QueueDedupTTL 去重标记过期时间 (防止异常退出后标记永久残留)
	QueueDedupTTL = time.Hour
	// QueueDequeueTimeout 阻塞出队超时时间
	QueueDequeueTimeout = 5 * time.Second
	// QueueErrorBackoff 出队失败后的等待时长 (redis 不可用时避免空转刷日志)
	QueueErrorBackoff = time.Second
	// DefaultWorkerConcurrency 默认开服并发数 (限制对面板的压力)
	DefaultWorkerConcurrency = 2
)

// 分布式锁相关常量
const (
	// ReconcileLockExpiration 对账任务锁过期时间
	ReconcileLockExpiration = 10 * time.Minute
	// ReconcileLockRetries 对账任务锁重试次数 (获取失败说明已有实例在跑)
	ReconcileLockRetries = 1
)

// PayPal 订阅状态 (远端状态统一大写后比较)
const (
	PaypalSubscriptionActive = "ACTIVE"
)

// 固定诊断信息
const (
	// DanglingFailureReason 悬挂订单清理的失败原因
	DanglingFailureReason = "provisioned without backend server reference"
)
