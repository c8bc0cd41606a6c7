package service

import (
	"context"

	"xinyuan_tech/provision-service/internal/biz"

	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewReconcileService)

// ReconcileService 对账运维服务
// 暴露给运维 HTTP 端点，用于在计划外手工触发某个对账任务
type ReconcileService struct {
	uc *biz.ReconcileUsecase
}

// NewReconcileService 创建对账服务实例
func NewReconcileService(uc *biz.ReconcileUsecase) *ReconcileService {
	return &ReconcileService{uc: uc}
}

// PassResult 单次对账结果
type PassResult struct {
	Pass      string `json:"pass"`
	Processed int    `json:"processed"`
}

// RunStuckPass 手工触发卡单对账
func (s *ReconcileService) RunStuckPass(ctx context.Context) (*PassResult, error) {
	n, err := s.uc.ReconcileStuckOrders(ctx)
	if err != nil {
		return nil, err
	}
	return &PassResult{Pass: "stuck", Processed: n}, nil
}

// RunDanglingPass 手工触发悬挂订单对账
func (s *ReconcileService) RunDanglingPass(ctx context.Context) (*PassResult, error) {
	n, err := s.uc.ReconcileDanglingOrders(ctx)
	if err != nil {
		return nil, err
	}
	return &PassResult{Pass: "dangling", Processed: n}, nil
}

// RunSubscriptionPass 手工触发订阅对账
func (s *ReconcileService) RunSubscriptionPass(ctx context.Context) (*PassResult, error) {
	n, err := s.uc.ReconcileSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	return &PassResult{Pass: "subscription", Processed: n}, nil
}
