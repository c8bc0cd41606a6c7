package data

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"xinyuan_tech/provision-service/internal/biz"
	"xinyuan_tech/provision-service/internal/constants"
	domainErrors "xinyuan_tech/provision-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	queueReadyKey   = "provision:ready"
	queueDelayedKey = "provision:delayed"
	queueDedupKey   = "provision:pending:"
)

// provisionQueue 基于 redis 的开服任务队列
// 去重标记保证同一订单最多只有一个未决任务，多个 worker 之间
// 靠任务身份互斥，不需要额外加锁
type provisionQueue struct {
	rdb *redis.Client
	log *log.Helper
}

// NewProvisionQueue 创建开服任务队列
func NewProvisionQueue(rdb *redis.Client, logger log.Logger) biz.ProvisionQueue {
	return &provisionQueue{
		rdb: rdb,
		log: log.NewHelper(logger),
	}
}

// Enqueue 入队开服任务
// 按订单ID幂等：任务完成前的重复入队直接合并，不产生新任务
func (q *provisionQueue) Enqueue(ctx context.Context, orderID, source string) error {
	if orderID == "" {
		return domainErrors.ErrEmptyOrderID()
	}

	// 去重标记：设置成功才是本轮的第一次入队
	ok, err := q.rdb.SetNX(ctx, queueDedupKey+orderID, source, constants.QueueDedupTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		q.log.Infof("Order %s already has a pending provision job, enqueue collapsed", orderID)
		return nil
	}

	job := &biz.ProvisionJob{
		JobID:      uuid.NewString(),
		OrderID:    orderID,
		Source:     source,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		q.rdb.Del(ctx, queueDedupKey+orderID)
		return err
	}

	if err := q.rdb.LPush(ctx, queueReadyKey, payload).Err(); err != nil {
		// 入队失败回收去重标记，否则订单会被卡到标记过期
		q.rdb.Del(ctx, queueDedupKey+orderID)
		return err
	}

	q.log.Infof("Enqueued provision job %s for order %s (source=%s)", job.JobID, orderID, source)
	return nil
}

// Dequeue 阻塞等待下一个任务
// 每次先把到期的延迟重试任务搬回就绪队列，再阻塞出队；
// 超时返回 (nil, nil) 让消费循环空转一圈
func (q *provisionQueue) Dequeue(ctx context.Context) (*biz.ProvisionJob, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		q.log.Warnf("Failed to promote delayed jobs: %v", err)
	}

	res, err := q.rdb.BRPop(ctx, constants.QueueDequeueTimeout, queueReadyKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPop 返回 [key, value]
	if len(res) != 2 {
		return nil, nil
	}

	var job biz.ProvisionJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		// 载荷损坏无法定位订单，只能丢弃
		q.log.Errorf("Dropping undecodable provision job payload: %v", err)
		return nil, nil
	}
	return &job, nil
}

// Complete 任务完成，释放订单的去重标记
func (q *provisionQueue) Complete(ctx context.Context, job *biz.ProvisionJob) error {
	if job.OrderID == "" {
		return nil
	}
	return q.rdb.Del(ctx, queueDedupKey+job.OrderID).Err()
}

// Fail 任务失败
// 未到尝试上限时按指数延迟重新入队 (队列内部的瞬时失败重试)；
// 到达上限后放弃任务并释放标记，交给下一轮对账按退避策略重新评估
func (q *provisionQueue) Fail(ctx context.Context, job *biz.ProvisionJob, cause error) error {
	job.Attempt++
	if job.Attempt >= constants.QueueMaxAttempts {
		q.log.Warnf("Provision job %s for order %s exhausted %d attempts, leaving for reconciliation: %v",
			job.JobID, job.OrderID, job.Attempt, cause)
		return q.rdb.Del(ctx, queueDedupKey+job.OrderID).Err()
	}

	delay := constants.QueueRetryBaseDelay << (job.Attempt - 1)
	readyAt := time.Now().UTC().Add(delay)

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	q.log.Infof("Provision job %s for order %s failed (attempt=%d), retrying in %s: %v",
		job.JobID, job.OrderID, job.Attempt, delay, cause)
	return q.rdb.ZAdd(ctx, queueDelayedKey, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: payload,
	}).Err()
}

// promoteDelayed 把到期的延迟任务搬回就绪队列
func (q *provisionQueue) promoteDelayed(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, queueDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil || len(members) == 0 {
		return err
	}

	for _, member := range members {
		// ZRem 返回 1 才说明是本实例抢到了该任务
		removed, err := q.rdb.ZRem(ctx, queueDelayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, queueReadyKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
