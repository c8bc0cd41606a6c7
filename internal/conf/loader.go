package conf

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load 加载配置文件
// 敏感凭证 (PayPal、面板密钥) 支持通过环境变量覆盖文件配置
func Load(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Bootstrap
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := overlayEnv(&c); err != nil {
		return nil, fmt.Errorf("failed to overlay env: %w", err)
	}

	return &c, nil
}

// overlayEnv 用环境变量覆盖凭证字段
func overlayEnv(c *Bootstrap) error {
	if c.Client == nil {
		c.Client = &Client{}
	}
	if c.Client.Paypal == nil {
		c.Client.Paypal = &Paypal{}
	}
	if c.Client.Panel == nil {
		c.Client.Panel = &Panel{}
	}
	if err := env.Parse(c.Client.Paypal); err != nil {
		return err
	}
	return env.Parse(c.Client.Panel)
}
