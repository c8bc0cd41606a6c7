package biz

import (
	"time"

	"xinyuan_tech/provision-service/internal/constants"
)

// BackoffMinutes 计算第 attempt 次尝试后的最小等待时长(分钟)
// min(30, 5*2^min(attempt,4))，序列为 5,10,20,30,30,30,...
// 指数退避带上限：既避免对面板的重试风暴，又限定最坏情况下的滞留时间
func BackoffMinutes(attempt int) int {
	if attempt < 0 {
		attempt = 0
	}
	exp := attempt
	if exp > constants.BackoffExponentCap {
		exp = constants.BackoffExponentCap
	}
	minutes := constants.BackoffBaseMinutes << exp
	if minutes > constants.BackoffCapMinutes {
		minutes = constants.BackoffCapMinutes
	}
	return minutes
}

// RetryDue 判断订单是否已过退避窗口，允许再次尝试开服
// 未记录过尝试时间时，以创建时间作为退避起点
func RetryDue(o *Order, now time.Time) bool {
	anchor := o.CreatedAt
	if o.LastProvisionAttemptAt != nil {
		anchor = *o.LastProvisionAttemptAt
	}
	wait := time.Duration(BackoffMinutes(o.ProvisionAttemptCount)) * time.Minute
	return now.Sub(anchor) >= wait
}
