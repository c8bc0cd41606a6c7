package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/conf"
	"xinyuan_tech/provision-service/internal/constants"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name string = "provision-worker"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

// WorkerApp Worker 应用结构
// 同时承载开服消费循环和运维 HTTP 端点
type WorkerApp struct {
	provisionUsecase *biz.ProvisionUsecase
	httpServer       *http.Server
}

func newApp(logger log.Logger, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
		),
	)
}

func main() {
	flag.Parse()

	// 初始化配置 (文件 + 凭证环境变量覆盖)
	bc, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}

	// 验证配置
	if err := bc.Validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}

	loggerInstance := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	app, cleanup, err := wireApp(bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	concurrency := constants.DefaultWorkerConcurrency
	if bc.Queue != nil && bc.Queue.Concurrency > 0 {
		concurrency = bc.Queue.Concurrency
	}

	// 开服消费循环与 HTTP 服务共生命周期
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		app.provisionUsecase.Run(workerCtx, concurrency)
	}()

	// start and wait for stop signal
	if err := newApp(loggerInstance, app.httpServer).Run(); err != nil {
		stopWorker()
		panic(err)
	}

	stopWorker()
	<-workerDone
}
