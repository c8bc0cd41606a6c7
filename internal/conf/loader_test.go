package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: 0.0.0.0:8000
    timeout: 10s
data:
  database:
    driver: mysql
    source: root:pass@tcp(127.0.0.1:3306)/provision
  redis:
    addr: 127.0.0.1:6379
    db: 1
client:
  paypal:
    client_id: file-id
    client_secret: file-secret
    sandbox: true
  panel:
    addr: http://panel.local:9000
reconcile:
  stuck_cron: "0 */5 * * * *"
queue:
  concurrency: 4
`)

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "0.0.0.0:8000", c.Server.Http.Addr)
	assert.Equal(t, "root:pass@tcp(127.0.0.1:3306)/provision", c.Data.Database.Source)
	assert.Equal(t, int32(1), c.Data.Redis.Db)
	assert.Equal(t, "file-id", c.Client.Paypal.ClientID)
	assert.True(t, c.Client.Paypal.Sandbox)
	assert.Equal(t, "0 */5 * * * *", c.Reconcile.StuckCron)
	assert.Equal(t, 4, c.Queue.Concurrency)
	assert.True(t, c.PaypalEnabled())
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	t.Setenv("PAYPAL_CLIENT_ID", "env-id")
	t.Setenv("PAYPAL_CLIENT_SECRET", "env-secret")
	t.Setenv("PANEL_API_KEY", "env-panel-key")

	path := writeConfig(t, `
data:
  database:
    source: root:pass@tcp(127.0.0.1:3306)/provision
  redis:
    addr: 127.0.0.1:6379
client:
  paypal:
    client_id: file-id
    client_secret: file-secret
  panel:
    addr: http://panel.local:9000
    api_key: file-key
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-id", c.Client.Paypal.ClientID)
	assert.Equal(t, "env-secret", c.Client.Paypal.ClientSecret)
	assert.Equal(t, "env-panel-key", c.Client.Panel.ApiKey)
	// 未覆盖的字段保留文件值
	assert.Equal(t, "http://panel.local:9000", c.Client.Panel.Addr)
}

func TestLoadEnvOnlyCredentialsEnablePaypal(t *testing.T) {
	t.Setenv("PAYPAL_CLIENT_ID", "env-id")
	t.Setenv("PAYPAL_CLIENT_SECRET", "env-secret")

	// 文件里凭证留空是推荐的部署方式，凭证只从环境变量注入
	path := writeConfig(t, `
data:
  database:
    source: root:pass@tcp(127.0.0.1:3306)/provision
  redis:
    addr: 127.0.0.1:6379
client:
  paypal:
    client_id: ""
    client_secret: ""
    sandbox: true
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.PaypalEnabled())
}

func TestValidate(t *testing.T) {
	t.Run("missing database source", func(t *testing.T) {
		c := &Bootstrap{Data: &Data{}}
		c.Data.Redis.Addr = "127.0.0.1:6379"
		assert.Error(t, c.Validate())
	})

	t.Run("missing redis addr", func(t *testing.T) {
		c := &Bootstrap{Data: &Data{}}
		c.Data.Database.Source = "root@tcp(localhost)/db"
		assert.Error(t, c.Validate())
	})

	t.Run("nil data", func(t *testing.T) {
		c := &Bootstrap{}
		assert.Error(t, c.Validate())
	})
}

func TestPaypalEnabled(t *testing.T) {
	c := &Bootstrap{}
	assert.False(t, c.PaypalEnabled())

	c.Client = &Client{Paypal: &Paypal{ClientID: "id"}}
	assert.False(t, c.PaypalEnabled(), "secret missing")

	c.Client.Paypal.ClientSecret = "secret"
	assert.True(t, c.PaypalEnabled())
}
