package data

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	paypalLiveBaseURL    = "https://api-m.paypal.com"
	paypalSandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

// paypalClient PayPal REST 客户端实现
type paypalClient struct {
	httpClient *http.Client
	log        *log.Helper
}

// NewPaypalClient 创建 PayPal 客户端
// 凭证在每次调用时由上层传入，客户端本身不持有凭证，
// 凭证缺失时订阅对账在用例层直接跳过，不会走到这里
func NewPaypalClient(c *conf.Bootstrap, logger log.Logger) biz.PaypalClient {
	timeout := 30 * time.Second
	if c != nil && c.Client != nil && c.Client.Paypal != nil && c.Client.Paypal.Timeout != "" {
		if d, err := time.ParseDuration(c.Client.Paypal.Timeout); err == nil {
			timeout = d
		}
	}
	return &paypalClient{
		httpClient: &http.Client{Timeout: timeout},
		log:        log.NewHelper(logger),
	}
}

func paypalBaseURL(sandbox bool) string {
	if sandbox {
		return paypalSandboxBaseURL
	}
	return paypalLiveBaseURL
}

// GetAccessToken 用 client credentials 换取访问令牌
func (c *paypalClient) GetAccessToken(ctx context.Context, clientID, clientSecret string, sandbox bool) (string, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		paypalBaseURL(sandbox)+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("paypal token error %d: %s", resp.StatusCode, string(b))
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode paypal token response: %w", err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("paypal token response missing access_token")
	}
	return res.AccessToken, nil
}

// GetSubscription 查询订阅的实时状态
func (c *paypalClient) GetSubscription(ctx context.Context, accessToken, subscriptionID string, sandbox bool) (*biz.PaypalSubscription, error) {
	url := fmt.Sprintf("%s/v1/billing/subscriptions/%s", paypalBaseURL(sandbox), subscriptionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal subscription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("paypal subscription error %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		Subscriber struct {
			PayerID string `json:"payer_id"`
		} `json:"subscriber"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode paypal subscription response: %w", err)
	}

	return &biz.PaypalSubscription{
		ID:     result.ID,
		Status: result.Status,
		Subscriber: biz.PaypalSubscriber{
			PayerID: result.Subscriber.PayerID,
		},
	}, nil
}
