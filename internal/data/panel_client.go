package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// panelClient 开服面板客户端实现
// 面板是外部协作方，这里只负责透传开服请求和结果，
// 失败原样上抛，由队列的重试机制兜底
type panelClient struct {
	httpClient *http.Client
	addr       string
	apiKey     string
	log        *log.Helper
}

// NewPanelClient 创建面板客户端
func NewPanelClient(c *conf.Bootstrap, logger log.Logger) biz.PanelClient {
	addr := ""
	apiKey := ""
	timeout := 60 * time.Second
	if c != nil && c.Client != nil && c.Client.Panel != nil {
		addr = c.Client.Panel.Addr
		apiKey = c.Client.Panel.ApiKey
		if c.Client.Panel.Timeout != "" {
			if d, err := time.ParseDuration(c.Client.Panel.Timeout); err == nil {
				timeout = d
			}
		}
	}
	return &panelClient{
		httpClient: &http.Client{Timeout: timeout},
		addr:       addr,
		apiKey:     apiKey,
		log:        log.NewHelper(logger),
	}
}

// ProvisionServer 请求面板为订单创建游戏服务器
func (c *panelClient) ProvisionServer(ctx context.Context, orderID string) (*biz.PanelResult, error) {
	if c.addr == "" {
		return nil, fmt.Errorf("panel addr is not configured")
	}

	payload, err := json.Marshal(map[string]string{"order_id": orderID})
	if err != nil {
		return nil, fmt.Errorf("marshal provision payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.addr+"/api/servers", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("panel provision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("panel provision error %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ServerRef string `json:"server_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode panel response: %w", err)
	}
	if result.ServerRef == "" {
		return nil, fmt.Errorf("panel response missing server_ref")
	}

	return &biz.PanelResult{ServerRef: result.ServerRef}, nil
}
