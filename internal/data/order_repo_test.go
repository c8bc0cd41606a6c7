package data

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/constants"
	"xinyuan_tech/provision-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (biz.OrderRepo, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Order{}, &model.SubscriptionMirror{}))

	repo := NewOrderRepo(&Data{db: db}, log.NewStdLogger(io.Discard))
	return repo, db
}

func seedOrder(t *testing.T, db *gorm.DB, m *model.Order) {
	t.Helper()
	if m.ItemType == "" {
		m.ItemType = constants.ItemTypeGame
	}
	require.NoError(t, db.Create(m).Error)
}

func TestFindStuckOrders(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	// 付费 11 分钟无服务器：候选
	seedOrder(t, db, &model.Order{ID: "stale-paid", Status: constants.OrderStatusPaid, CreatedAt: now.Add(-11 * time.Minute)})
	// 付费 5 分钟：未过静默下限，不选
	seedOrder(t, db, &model.Order{ID: "young-paid", Status: constants.OrderStatusPaid, CreatedAt: now.Add(-5 * time.Minute)})
	// 创建时间很新，但最近一次尝试已超过下限：候选 (COALESCE 锚点)
	lastAttempt := now.Add(-12 * time.Minute)
	seedOrder(t, db, &model.Order{ID: "stale-attempt", Status: constants.OrderStatusError, ProvisionAttemptCount: 2, LastProvisionAttemptAt: &lastAttempt, CreatedAt: now.Add(-12 * time.Minute)})
	// 已有面板服务器：不选
	seedOrder(t, db, &model.Order{ID: "has-server", Status: constants.OrderStatusPaid, PanelServerRef: "srv-1", CreatedAt: now.Add(-time.Hour)})
	// 非 game 商品：不选
	seedOrder(t, db, &model.Order{ID: "merch", ItemType: "merch", Status: constants.OrderStatusPaid, CreatedAt: now.Add(-time.Hour)})
	// 终态：不选
	seedOrder(t, db, &model.Order{ID: "canceled", Status: constants.OrderStatusCanceled, CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, db, &model.Order{ID: "done", Status: constants.OrderStatusProvisioned, PanelServerRef: "srv-2", CreatedAt: now.Add(-time.Hour)})

	orders, err := repo.FindStuckOrders(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	assert.ElementsMatch(t, []string{"stale-paid", "stale-attempt"}, ids)
}

func TestFindStuckOrdersNeverSelectsYoungOrders(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	// 尝试次数再多，只要最近一次动作在静默下限内就不选
	lastAttempt := now.Add(-2 * time.Minute)
	seedOrder(t, db, &model.Order{ID: "busy", Status: constants.OrderStatusError, ProvisionAttemptCount: 9, LastProvisionAttemptAt: &lastAttempt, CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, db, &model.Order{ID: "fresh", Status: constants.OrderStatusPaid, CreatedAt: now.Add(-time.Minute)})

	orders, err := repo.FindStuckOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFindDanglingProvisioned(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	seedOrder(t, db, &model.Order{ID: "dangling-old", Status: constants.OrderStatusProvisioned, CreatedAt: now.Add(-2 * time.Hour)})
	seedOrder(t, db, &model.Order{ID: "dangling-new", Status: constants.OrderStatusProvisioned, CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, db, &model.Order{ID: "healthy", Status: constants.OrderStatusProvisioned, PanelServerRef: "srv-1", CreatedAt: now.Add(-3 * time.Hour)})

	orders, err := repo.FindDanglingProvisioned(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	// 最旧优先
	assert.Equal(t, "dangling-old", orders[0].ID)
	assert.Equal(t, "dangling-new", orders[1].ID)

	// 修正后不再命中选择谓词 (幂等)
	require.NoError(t, repo.TransitionToFailed(context.Background(), "dangling-old", constants.DanglingFailureReason))
	require.NoError(t, repo.TransitionToFailed(context.Background(), "dangling-new", constants.DanglingFailureReason))

	orders, err = repo.FindDanglingProvisioned(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)

	var failed model.Order
	require.NoError(t, db.First(&failed, "order_id = ?", "dangling-old").Error)
	assert.Equal(t, constants.OrderStatusFailed, failed.Status)
	assert.Equal(t, constants.DanglingFailureReason, failed.FailureReason)
}

func TestFindSubscribedOrders(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	seedOrder(t, db, &model.Order{ID: "sub-pending", Status: constants.OrderStatusPending, PaypalSubscriptionRef: "I-1", CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, db, &model.Order{ID: "sub-failed", Status: constants.OrderStatusFailed, PaypalSubscriptionRef: "I-2", CreatedAt: now.Add(-30 * time.Minute)})
	seedOrder(t, db, &model.Order{ID: "no-sub", Status: constants.OrderStatusPending, CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, db, &model.Order{ID: "sub-done", Status: constants.OrderStatusProvisioned, PaypalSubscriptionRef: "I-3", PanelServerRef: "srv-1", CreatedAt: now.Add(-time.Hour)})
	seedOrder(t, db, &model.Order{ID: "sub-canceled", Status: constants.OrderStatusCanceled, PaypalSubscriptionRef: "I-4", CreatedAt: now.Add(-time.Hour)})

	orders, err := repo.FindSubscribedOrders(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"sub-pending", "sub-failed"}, ids)
}

func TestMarkProvisioning(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	seedOrder(t, db, &model.Order{ID: "O1", Status: constants.OrderStatusPaid, CreatedAt: now.Add(-time.Hour)})

	stamp := now.Truncate(time.Second)
	require.NoError(t, repo.MarkProvisioning(context.Background(), "O1", stamp))

	order, err := repo.GetOrder(context.Background(), "O1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, constants.OrderStatusProvisioning, order.Status)
	assert.Equal(t, 1, order.ProvisionAttemptCount)
	require.NotNil(t, order.LastProvisionAttemptAt)

	// 计数只增不减
	require.NoError(t, repo.MarkProvisioning(context.Background(), "O1", stamp.Add(10*time.Minute)))
	order, err = repo.GetOrder(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, 2, order.ProvisionAttemptCount)
}

func TestMarkProvisioningRejectsTerminalStates(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	seedOrder(t, db, &model.Order{ID: "O1", Status: constants.OrderStatusCanceled, CreatedAt: now})

	err := repo.MarkProvisioning(context.Background(), "O1", now)
	require.Error(t, err)

	order, gerr := repo.GetOrder(context.Background(), "O1")
	require.NoError(t, gerr)
	assert.Equal(t, constants.OrderStatusCanceled, order.Status)
	assert.Equal(t, 0, order.ProvisionAttemptCount)
}

func TestTransitionToPaid(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	seedOrder(t, db, &model.Order{ID: "O1", Status: constants.OrderStatusPending, CreatedAt: now})
	seedOrder(t, db, &model.Order{ID: "O2", Status: constants.OrderStatusCanceled, CreatedAt: now})

	require.NoError(t, repo.TransitionToPaid(context.Background(), "O1", "I-SUB1", "PAYER9"))
	order, err := repo.GetOrder(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusPaid, order.Status)
	assert.Equal(t, "I-SUB1", order.PaypalSubscriptionRef)
	assert.Equal(t, "PAYER9", order.PaypalPayerRef)

	// 终态订单不被覆盖
	require.NoError(t, repo.TransitionToPaid(context.Background(), "O2", "I-SUB2", "PAYER1"))
	order, err = repo.GetOrder(context.Background(), "O2")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusCanceled, order.Status)
	assert.Empty(t, order.PaypalSubscriptionRef)
}

func TestTransitionToProvisionedAndError(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now().UTC()

	seedOrder(t, db, &model.Order{ID: "O1", Status: constants.OrderStatusProvisioning, FailureReason: "previous failure", CreatedAt: now})

	require.NoError(t, repo.TransitionToProvisioned(context.Background(), "O1", "srv-42"))
	order, err := repo.GetOrder(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusProvisioned, order.Status)
	assert.Equal(t, "srv-42", order.PanelServerRef)
	assert.Empty(t, order.FailureReason)

	seedOrder(t, db, &model.Order{ID: "O2", Status: constants.OrderStatusProvisioning, CreatedAt: now})
	require.NoError(t, repo.TransitionToError(context.Background(), "O2", "panel timeout"))
	order, err = repo.GetOrder(context.Background(), "O2")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusError, order.Status)
	assert.Equal(t, "panel timeout", order.FailureReason)

	// 不存在的订单
	require.Error(t, repo.TransitionToProvisioned(context.Background(), "MISSING", "srv-1"))
}

func TestGetOrderNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	order, err := repo.GetOrder(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestUpsertSubscriptionMirror(t *testing.T) {
	repo, db := newTestRepo(t)

	require.NoError(t, repo.UpsertSubscriptionMirror(context.Background(), "O1", "I-SUB1", "APPROVAL_PENDING", ""))
	require.NoError(t, repo.UpsertSubscriptionMirror(context.Background(), "O1", "I-SUB1", "ACTIVE", "PAYER9"))

	var mirrors []model.SubscriptionMirror
	require.NoError(t, db.Find(&mirrors).Error)
	require.Len(t, mirrors, 1)
	assert.Equal(t, "ACTIVE", mirrors[0].Status)
	assert.Equal(t, "PAYER9", mirrors[0].PayerID)

	// 不同订阅是独立的镜像行
	require.NoError(t, repo.UpsertSubscriptionMirror(context.Background(), "O1", "I-SUB2", "ACTIVE", "PAYER9"))
	require.NoError(t, db.Find(&mirrors).Error)
	assert.Len(t, mirrors, 2)
}

func TestAttemptTrackingProbe(t *testing.T) {
	t.Run("ready after full migration", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		assert.True(t, repo.AttemptTrackingReady())
	})

	t.Run("not ready when columns are missing", func(t *testing.T) {
		db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "legacy.db")), &gorm.Config{})
		require.NoError(t, err)
		// 旧版订单表：没有尝试跟踪字段
		require.NoError(t, db.Exec(`CREATE TABLE game_order (
			order_id text PRIMARY KEY,
			item_type text,
			status text,
			panel_server_ref text,
			paypal_subscription_ref text,
			paypal_payer_ref text,
			failure_reason text,
			created_at datetime,
			updated_at datetime
		)`).Error)

		repo := NewOrderRepo(&Data{db: db}, log.NewStdLogger(io.Discard))
		assert.False(t, repo.AttemptTrackingReady())
	})
}
