//go:build wireinject
// +build wireinject

package main

import (
	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/conf"
	"xinyuan_tech/provision-service/internal/data"
	"xinyuan_tech/provision-service/internal/server"
	"xinyuan_tech/provision-service/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp 初始化应用
func wireApp(*conf.Bootstrap, log.Logger) (*WorkerApp, func(), error) {
	panic(wire.Build(
		server.ProviderSet,
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		wire.Struct(new(WorkerApp), "*"),
	))
}
