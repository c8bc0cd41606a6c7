package model

import "time"

// Order 游戏服务器订单模型
type Order struct {
	ID                     string     `gorm:"primaryKey;column:order_id"`
	ItemType               string     `gorm:"column:item_type;index"`
	Status                 string     `gorm:"column:status;index"`
	ProvisionAttemptCount  int        `gorm:"column:provision_attempt_count;default:0"`
	LastProvisionAttemptAt *time.Time `gorm:"column:last_provision_attempt_at"`
	PanelServerRef         string     `gorm:"column:panel_server_ref"`
	PaypalSubscriptionRef  string     `gorm:"column:paypal_subscription_ref"`
	PaypalPayerRef         string     `gorm:"column:paypal_payer_ref"`
	FailureReason          string     `gorm:"column:failure_reason"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (Order) TableName() string { return "game_order" }
