package conf

import (
	"fmt"
)

type Bootstrap struct {
	Server    *Server    `yaml:"server" json:"server"`
	Data      *Data      `yaml:"data" json:"data"`
	Client    *Client    `yaml:"client" json:"client"`
	Reconcile *Reconcile `yaml:"reconcile" json:"reconcile"`
	Queue     *Queue     `yaml:"queue" json:"queue"`
	Log       *Log       `yaml:"log" json:"log"`
}

type Server struct {
	Http struct {
		Addr    string `yaml:"addr" json:"addr"`
		Timeout string `yaml:"timeout" json:"timeout"`
	} `yaml:"http" json:"http"`
}

type Data struct {
	Database struct {
		Driver string `yaml:"driver" json:"driver"`
		Source string `yaml:"source" json:"source"`
	} `yaml:"database" json:"database"`
	Redis struct {
		Addr         string `yaml:"addr" json:"addr"`
		Password     string `yaml:"password" json:"password"`
		Db           int32  `yaml:"db" json:"db"`
		ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
	} `yaml:"redis" json:"redis"`
}

type Client struct {
	Paypal *Paypal `yaml:"paypal" json:"paypal"`
	Panel  *Panel  `yaml:"panel" json:"panel"`
}

// Paypal PayPal 凭证配置
// ClientID/ClientSecret 允许为空，表示订阅对账功能未启用 (不是启动错误)
type Paypal struct {
	ClientID     string `yaml:"client_id" json:"client_id" env:"PAYPAL_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" json:"client_secret" env:"PAYPAL_CLIENT_SECRET"`
	Sandbox      bool   `yaml:"sandbox" json:"sandbox" env:"PAYPAL_SANDBOX"`
	Timeout      string `yaml:"timeout" json:"timeout"`
}

// Panel 开服面板配置
type Panel struct {
	Addr    string `yaml:"addr" json:"addr"`
	ApiKey  string `yaml:"api_key" json:"api_key" env:"PANEL_API_KEY"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// Reconcile 对账任务配置
type Reconcile struct {
	// cron 表达式 (带秒字段)
	StuckCron        string `yaml:"stuck_cron" json:"stuck_cron"`
	DanglingCron     string `yaml:"dangling_cron" json:"dangling_cron"`
	SubscriptionCron string `yaml:"subscription_cron" json:"subscription_cron"`
}

// Queue 开服任务队列配置
type Queue struct {
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Validate validates the configuration
func (b *Bootstrap) Validate() error {
	if b.Data == nil {
		return fmt.Errorf("data configuration is required")
	}
	if b.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if b.Data.Redis.Addr == "" {
		return fmt.Errorf("data.redis.addr is required")
	}
	return nil
}

// PaypalEnabled 判断 PayPal 订阅对账功能是否可用
// 凭证缺失是合法的部署状态 (功能关闭)，不作为配置错误处理
func (b *Bootstrap) PaypalEnabled() bool {
	return b.Client != nil && b.Client.Paypal != nil &&
		b.Client.Paypal.ClientID != "" && b.Client.Paypal.ClientSecret != ""
}
