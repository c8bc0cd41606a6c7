package server

import (
	"encoding/json"
	stdhttp "net/http"

	"xinyuan_tech/provision-service/internal/conf"
	"xinyuan_tech/provision-service/internal/service"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server.
// 只承载健康检查和手工触发对账的运维端点，业务 API 不在本服务范围内
func NewHTTPServer(c *conf.Bootstrap, rec *service.ReconcileService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
		http.ErrorEncoder(customErrorEncoder),
	}
	if c.Server != nil && c.Server.Http.Addr != "" {
		opts = append(opts, http.Address(c.Server.Http.Addr))
	}
	srv := http.NewServer(opts...)

	// 健康检查端点
	srv.Route("/").GET("/health", func(ctx http.Context) error {
		return ctx.Result(200, map[string]string{"status": "ok", "service": "provision-service"})
	})

	// 运维端点：计划外手工触发对账
	ops := srv.Route("/ops/reconcile")
	ops.POST("/stuck", func(ctx http.Context) error {
		result, err := rec.RunStuckPass(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, result)
	})
	ops.POST("/dangling", func(ctx http.Context) error {
		result, err := rec.RunDanglingPass(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, result)
	})
	ops.POST("/subscriptions", func(ctx http.Context) error {
		result, err := rec.RunSubscriptionPass(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, result)
	})

	return srv
}

func customErrorEncoder(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	se := kerrors.FromError(err)
	status := stdhttp.StatusInternalServerError
	response := map[string]interface{}{
		"code":    status,
		"message": "internal server error",
	}

	if se != nil {
		status = mapErrorStatus(int(se.Code))
		response["code"] = se.Code
		response["reason"] = se.Reason
		response["message"] = se.Message
		if len(se.Metadata) > 0 {
			response["metadata"] = se.Metadata
		}
	} else if err != nil {
		response["message"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// mapErrorStatus kratos 错误的 Code 就是 HTTP 状态码，SSMMEE 业务码在 metadata 里
func mapErrorStatus(code int) int {
	if code >= 100 && code < 600 {
		return code
	}
	return stdhttp.StatusInternalServerError
}
