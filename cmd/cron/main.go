package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/conf"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

// CronApp Cron 应用结构
type CronApp struct {
	reconcileUsecase *biz.ReconcileUsecase
}

// newLogger 创建 logger
func newLogger() klog.Logger {
	return klog.With(klog.NewStdLogger(os.Stdout),
		"ts", klog.DefaultTimestamp,
		"caller", klog.DefaultCaller,
		"service.name", "provision-cron",
	)
}

// 默认调度周期 (带秒字段)
const (
	defaultStuckCron        = "0 */5 * * * *"  // 每 5 分钟
	defaultDanglingCron     = "0 */30 * * * *" // 每 30 分钟
	defaultSubscriptionCron = "0 */10 * * * *" // 每 10 分钟
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置 (文件 + 凭证环境变量覆盖)
	bc, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}
	if err := bc.Validate(); err != nil {
		panic(err)
	}

	// 初始化应用
	app, cleanup, err := wireApp(bc)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	stuckSpec, danglingSpec, subscriptionSpec := cronSpecs(bc)

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 1. 卡单对账 - 找出付了钱却迟迟没开出服务器的订单，按退避重新入队
	_, err = cronScheduler.AddFunc(stuckSpec, func() {
		log.Println("[CRON] Starting stuck-order reconciliation...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		count, err := app.reconcileUsecase.ReconcileStuckOrders(ctx)
		if err != nil {
			log.Printf("[CRON] Error reconciling stuck orders: %v", err)
		} else {
			log.Printf("[CRON] Stuck-order reconciliation finished, considered %d orders", count)
		}
	})
	if err != nil {
		log.Printf("Failed to add stuck reconciliation job: %v", err)
	}

	// 2. 悬挂订单对账 - provisioned 却没有服务器引用的订单转为 failed
	_, err = cronScheduler.AddFunc(danglingSpec, func() {
		log.Println("[CRON] Starting dangling-order reconciliation...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		count, err := app.reconcileUsecase.ReconcileDanglingOrders(ctx)
		if err != nil {
			log.Printf("[CRON] Error reconciling dangling orders: %v", err)
		} else {
			log.Printf("[CRON] Dangling-order reconciliation finished, processed %d orders", count)
		}
	})
	if err != nil {
		log.Printf("Failed to add dangling reconciliation job: %v", err)
	}

	// 3. 订阅对账 - 轮询 PayPal 订阅状态，推进 paid 并触发开服
	_, err = cronScheduler.AddFunc(subscriptionSpec, func() {
		log.Println("[CRON] Starting subscription reconciliation...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		count, err := app.reconcileUsecase.ReconcileSubscriptions(ctx)
		if err != nil {
			log.Printf("[CRON] Error reconciling subscriptions: %v", err)
		} else {
			log.Printf("[CRON] Subscription reconciliation finished, processed %d orders", count)
		}
	})
	if err != nil {
		log.Printf("Failed to add subscription reconciliation job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	log.Println("========================================")
	log.Println("Reconciliation jobs started successfully")
	log.Printf("  - Stuck orders:    %s", stuckSpec)
	log.Printf("  - Dangling orders: %s", danglingSpec)
	log.Printf("  - Subscriptions:   %s", subscriptionSpec)
	log.Println("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		log.Println("Reconciliation jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Println("Reconciliation jobs forced to stop after timeout")
	}
}

// cronSpecs 读取调度配置，缺省时使用默认周期
func cronSpecs(bc *conf.Bootstrap) (string, string, string) {
	stuck, dangling, subscription := defaultStuckCron, defaultDanglingCron, defaultSubscriptionCron
	if bc.Reconcile != nil {
		if bc.Reconcile.StuckCron != "" {
			stuck = bc.Reconcile.StuckCron
		}
		if bc.Reconcile.DanglingCron != "" {
			dangling = bc.Reconcile.DanglingCron
		}
		if bc.Reconcile.SubscriptionCron != "" {
			subscription = bc.Reconcile.SubscriptionCron
		}
	}
	return stuck, dangling, subscription
}
