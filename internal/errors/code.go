package errors

import (
	"strconv"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// 开服服务错误定义
// 错误码格式：SSMMEE (6位数字)，其中 SS=15 表示 provision-service
// 模块划分：
//   01: 订单模块
//   02: 对账模块
//   03: 任务队列模块
//   04: 外部服务模块

// 订单模块 (150100-150199)
const (
	// ErrCodeOrderNotFound 订单不存在错误
	ErrCodeOrderNotFound = 150101
	// ErrCodeOrderTransitionConflict 订单状态流转冲突 (行已被其他流程修改)
	ErrCodeOrderTransitionConflict = 150102
)

// 对账模块 (150200-150299)
const (
	// ErrCodeSchemaNotReady 订单表缺少尝试跟踪字段 (灰度期间的预期状态)
	ErrCodeSchemaNotReady = 150201
	// ErrCodeCredentialsMissing PayPal 凭证未配置 (功能关闭，不是故障)
	ErrCodeCredentialsMissing = 150202
)

// 任务队列模块 (150300-150399)
const (
	// ErrCodeEmptyOrderID 入队时订单ID为空 (调用方错误)
	ErrCodeEmptyOrderID = 150301
	// ErrCodeMalformedJob 任务载荷缺少订单ID (直接丢弃，不重试)
	ErrCodeMalformedJob = 150302
)

// 外部服务模块 (150400-150499)
const (
	// ErrCodePaypalRequestFailed PayPal 接口调用失败
	ErrCodePaypalRequestFailed = 150401
	// ErrCodePanelRequestFailed 开服面板接口调用失败
	ErrCodePanelRequestFailed = 150402
)

// withCode 把 SSMMEE 错误码挂到 metadata 上
func withCode(e *kerrors.Error, code int) *kerrors.Error {
	return e.WithMetadata(map[string]string{"code": strconv.Itoa(code)})
}

// ErrOrderNotFound 订单不存在
func ErrOrderNotFound(orderID string) error {
	return withCode(kerrors.NotFound("ORDER_NOT_FOUND", "order not found: "+orderID), ErrCodeOrderNotFound)
}

// ErrTransitionConflict 订单状态流转冲突
func ErrTransitionConflict(orderID string) error {
	return withCode(kerrors.Conflict("ORDER_TRANSITION_CONFLICT", "order row did not match expected state: "+orderID), ErrCodeOrderTransitionConflict)
}

// ErrEmptyOrderID 入队订单ID为空
func ErrEmptyOrderID() error {
	return withCode(kerrors.BadRequest("EMPTY_ORDER_ID", "enqueue requires a non-empty order id"), ErrCodeEmptyOrderID)
}

// ErrMalformedJob 任务载荷非法
// 该错误表示任务不可重试，消费方应直接丢弃
var ErrMalformedJob = withCode(kerrors.BadRequest("MALFORMED_JOB", "provision job is missing its order id"), ErrCodeMalformedJob)

// IsMalformedJob 判断是否为非法任务错误
func IsMalformedJob(err error) bool {
	return kerrors.Is(err, ErrMalformedJob)
}
