package biz

import "context"

// PaypalSubscriber 订阅付款人信息
type PaypalSubscriber struct {
	PayerID string
}

// PaypalSubscription PayPal 订阅的远端实时状态
type PaypalSubscription struct {
	ID         string
	Status     string // APPROVAL_PENDING, ACTIVE, SUSPENDED, CANCELLED, EXPIRED
	Subscriber PaypalSubscriber
}

// PaypalClient PayPal 客户端接口 (防腐层)
type PaypalClient interface {
	// GetAccessToken 用 client credentials 换取访问令牌
	GetAccessToken(ctx context.Context, clientID, clientSecret string, sandbox bool) (string, error)
	// GetSubscription 查询订阅的实时状态
	GetSubscription(ctx context.Context, accessToken, subscriptionID string, sandbox bool) (*PaypalSubscription, error)
}
