package biz

import (
	"context"
	"time"

	"xinyuan_tech/provision-service/internal/constants"
	"xinyuan_tech/provision-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// ProvisionJob 开服任务
// 任务身份由订单ID唯一决定，同一订单在完成前只会存在一个未决任务
type ProvisionJob struct {
	JobID      string    `json:"job_id"`
	OrderID    string    `json:"order_id"`
	Source     string    `json:"source"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ProvisionQueue 开服任务队列接口
// Enqueue 按订单ID幂等：任务完成前的重复入队会合并为一个未决任务
type ProvisionQueue interface {
	Enqueue(ctx context.Context, orderID, source string) error
	// Dequeue 阻塞等待下一个任务，超时返回 (nil, nil)
	Dequeue(ctx context.Context) (*ProvisionJob, error)
	// Complete 标记任务完成，释放该订单的去重标记
	Complete(ctx context.Context, job *ProvisionJob) error
	// Fail 标记任务失败，未超过尝试上限时按指数延迟重新入队
	Fail(ctx context.Context, job *ProvisionJob, cause error) error
}

// PanelResult 面板开服结果
type PanelResult struct {
	ServerRef string
}

// PanelClient 开服面板客户端接口 (防腐层)
// 失败以普通错误形式向上传递，由队列的重试机制兜底
type PanelClient interface {
	ProvisionServer(ctx context.Context, orderID string) (*PanelResult, error)
}

// ProvisionUsecase 开服任务消费逻辑
type ProvisionUsecase struct {
	orderRepo OrderRepo
	queue     ProvisionQueue
	panel     PanelClient
	log       *log.Helper
}

// NewProvisionUsecase 创建开服用例
func NewProvisionUsecase(orderRepo OrderRepo, queue ProvisionQueue, panel PanelClient, logger log.Logger) *ProvisionUsecase {
	return &ProvisionUsecase{
		orderRepo: orderRepo,
		queue:     queue,
		panel:     panel,
		log:       log.NewHelper(logger),
	}
}

// HandleJob 处理单个开服任务
// 返回 ErrMalformedJob 表示任务不可重试，调用方应直接丢弃；
// 其他错误作为瞬时失败交给队列重试
func (uc *ProvisionUsecase) HandleJob(ctx context.Context, job *ProvisionJob) error {
	if job.OrderID == "" {
		uc.log.Warnf("Dropping malformed provision job %s: missing order id", job.JobID)
		return errors.ErrMalformedJob
	}

	order, err := uc.orderRepo.GetOrder(ctx, job.OrderID)
	if err != nil {
		uc.log.Errorf("Failed to load order %s for job %s: %v", job.OrderID, job.JobID, err)
		return err
	}
	if order == nil {
		// 订单不存在不是瞬时故障，重试没有意义
		uc.log.Warnf("Dropping provision job %s: order %s does not exist", job.JobID, job.OrderID)
		return errors.ErrMalformedJob
	}
	if order.PanelServerRef != "" {
		// 已经开服成功，重复任务直接完成 (幂等)
		uc.log.Infof("Order %s already has panel server %s, skipping", order.ID, order.PanelServerRef)
		return nil
	}

	uc.log.Infof("Provisioning server for order %s (source=%s, attempt=%d)", job.OrderID, job.Source, job.Attempt)

	result, err := uc.panel.ProvisionServer(ctx, job.OrderID)
	if err != nil {
		uc.log.Errorf("Panel provisioning failed for order %s: %v", job.OrderID, err)
		if terr := uc.orderRepo.TransitionToError(ctx, job.OrderID, err.Error()); terr != nil {
			uc.log.Errorf("Failed to mark order %s as error: %v", job.OrderID, terr)
		}
		return err
	}

	if err := uc.orderRepo.TransitionToProvisioned(ctx, job.OrderID, result.ServerRef); err != nil {
		uc.log.Errorf("Failed to mark order %s as provisioned (server=%s): %v", job.OrderID, result.ServerRef, err)
		return err
	}

	uc.log.Infof("Order %s provisioned successfully, server=%s", job.OrderID, result.ServerRef)
	return nil
}

// Run 启动开服消费循环
// concurrency 个槽位并发消费，每个槽位一次只处理一个任务，限制对面板的压力
func (uc *ProvisionUsecase) Run(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	uc.log.Infof("Starting provision worker with %d slots", concurrency)

	done := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		go func(slot int) {
			defer func() { done <- struct{}{} }()
			uc.consumeLoop(ctx, slot)
		}(i)
	}
	for i := 0; i < concurrency; i++ {
		<-done
	}
	uc.log.Info("Provision worker stopped")
}

func (uc *ProvisionUsecase) consumeLoop(ctx context.Context, slot int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := uc.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			uc.log.Errorf("Slot %d failed to dequeue: %v", slot, err)
			// redis 故障期间退避重试，不空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(constants.QueueErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue // 出队超时，空转一圈
		}

		if err := uc.HandleJob(ctx, job); err != nil {
			if errors.IsMalformedJob(err) {
				// 非法任务：记录后释放，不进入重试
				if cerr := uc.queue.Complete(ctx, job); cerr != nil {
					uc.log.Errorf("Failed to drop malformed job %s: %v", job.JobID, cerr)
				}
				continue
			}
			if ferr := uc.queue.Fail(ctx, job, err); ferr != nil {
				uc.log.Errorf("Failed to record job failure %s: %v", job.JobID, ferr)
			}
			continue
		}

		if err := uc.queue.Complete(ctx, job); err != nil {
			uc.log.Errorf("Failed to complete job %s: %v", job.JobID, err)
		}
	}
}
