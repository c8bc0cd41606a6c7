package model

import "time"

// SubscriptionMirror PayPal 订阅状态镜像模型
// 按 (order_id, subscription_id) 唯一，只增不删
type SubscriptionMirror struct {
	ID             uint64    `gorm:"primaryKey;column:subscription_mirror_id;autoIncrement"`
	OrderID        string    `gorm:"column:order_id;uniqueIndex:uk_order_subscription"`
	SubscriptionID string    `gorm:"column:subscription_id;uniqueIndex:uk_order_subscription"`
	Status         string    `gorm:"column:status"`
	PayerID        string    `gorm:"column:payer_id"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (SubscriptionMirror) TableName() string { return "subscription_mirror" }
