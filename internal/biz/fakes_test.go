package biz

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"xinyuan_tech/provision-service/internal/constants"
)

// fakeOrderRepo 内存订单仓库
// 查询基于谓词实时计算，保证对账任务的幂等性测试贴近真实行为
type fakeOrderRepo struct {
	orders       map[string]*Order
	insertOrder  []string // 插入顺序，模拟 created_at ASC
	attemptReady bool

	markProvisioningCalls []string
	failedReasons         map[string]string
	mirrors               map[string]*SubscriptionMirror

	markProvisioningErr map[string]error
	transitionPaidErr   map[string]error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:              make(map[string]*Order),
		attemptReady:        true,
		failedReasons:       make(map[string]string),
		mirrors:             make(map[string]*SubscriptionMirror),
		markProvisioningErr: make(map[string]error),
		transitionPaidErr:   make(map[string]error),
	}
}

func (r *fakeOrderRepo) add(o *Order) {
	r.orders[o.ID] = o
	r.insertOrder = append(r.insertOrder, o.ID)
}

func (r *fakeOrderRepo) AttemptTrackingReady() bool { return r.attemptReady }

func (r *fakeOrderRepo) FindStuckOrders(ctx context.Context) ([]*Order, error) {
	var result []*Order
	for _, id := range r.insertOrder {
		o := r.orders[id]
		if CanProvision(o) {
			result = append(result, o)
		}
	}
	return result, nil
}

func (r *fakeOrderRepo) FindDanglingProvisioned(ctx context.Context) ([]*Order, error) {
	var result []*Order
	for _, id := range r.insertOrder {
		o := r.orders[id]
		if o.ItemType == constants.ItemTypeGame &&
			o.Status == constants.OrderStatusProvisioned && o.PanelServerRef == "" {
			result = append(result, o)
		}
	}
	return result, nil
}

func (r *fakeOrderRepo) FindSubscribedOrders(ctx context.Context) ([]*Order, error) {
	var result []*Order
	for _, id := range r.insertOrder {
		o := r.orders[id]
		if o.ItemType != constants.ItemTypeGame || o.PaypalSubscriptionRef == "" {
			continue
		}
		switch o.Status {
		case constants.OrderStatusProvisioned, constants.OrderStatusCanceled:
			continue
		}
		result = append(result, o)
	}
	return result, nil
}

func (r *fakeOrderRepo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	return o, nil
}

func (r *fakeOrderRepo) MarkProvisioning(ctx context.Context, orderID string, now time.Time) error {
	if err := r.markProvisioningErr[orderID]; err != nil {
		return err
	}
	r.markProvisioningCalls = append(r.markProvisioningCalls, orderID)
	o := r.orders[orderID]
	o.Status = constants.OrderStatusProvisioning
	o.ProvisionAttemptCount++
	t := now
	o.LastProvisionAttemptAt = &t
	return nil
}

func (r *fakeOrderRepo) TransitionToPaid(ctx context.Context, orderID, subscriptionID, payerID string) error {
	if err := r.transitionPaidErr[orderID]; err != nil {
		return err
	}
	o := r.orders[orderID]
	o.Status = constants.OrderStatusPaid
	o.PaypalSubscriptionRef = subscriptionID
	o.PaypalPayerRef = payerID
	return nil
}

func (r *fakeOrderRepo) TransitionToFailed(ctx context.Context, orderID, reason string) error {
	o := r.orders[orderID]
	o.Status = constants.OrderStatusFailed
	o.FailureReason = reason
	r.failedReasons[orderID] = reason
	return nil
}

func (r *fakeOrderRepo) TransitionToProvisioned(ctx context.Context, orderID, serverRef string) error {
	o := r.orders[orderID]
	o.Status = constants.OrderStatusProvisioned
	o.PanelServerRef = serverRef
	return nil
}

func (r *fakeOrderRepo) TransitionToError(ctx context.Context, orderID, reason string) error {
	o := r.orders[orderID]
	o.Status = constants.OrderStatusError
	o.FailureReason = reason
	return nil
}

func (r *fakeOrderRepo) UpsertSubscriptionMirror(ctx context.Context, orderID, subscriptionID, status, payerID string) error {
	r.mirrors[orderID] = &SubscriptionMirror{
		OrderID:        orderID,
		SubscriptionID: subscriptionID,
		Status:         status,
		PayerID:        payerID,
	}
	return nil
}

// enqueueCall 一次入队请求
type enqueueCall struct {
	OrderID string
	Source  string
}

// fakeQueue 内存任务队列，记录入队请求并模拟按订单去重
type fakeQueue struct {
	calls      []enqueueCall
	pending    map[string]bool
	enqueueErr map[string]error

	// 消费循环测试用：Dequeue 被并发调用，计数走原子操作
	dequeueErr   error
	dequeueCalls int32
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		pending:    make(map[string]bool),
		enqueueErr: make(map[string]error),
	}
}

func (q *fakeQueue) Enqueue(ctx context.Context, orderID, source string) error {
	if orderID == "" {
		return fmt.Errorf("enqueue requires a non-empty order id")
	}
	if err := q.enqueueErr[orderID]; err != nil {
		return err
	}
	if q.pending[orderID] {
		return nil // 重复入队合并
	}
	q.pending[orderID] = true
	q.calls = append(q.calls, enqueueCall{OrderID: orderID, Source: source})
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*ProvisionJob, error) {
	atomic.AddInt32(&q.dequeueCalls, 1)
	if q.dequeueErr != nil {
		return nil, q.dequeueErr
	}
	return nil, nil
}

func (q *fakeQueue) Complete(ctx context.Context, job *ProvisionJob) error {
	delete(q.pending, job.OrderID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, job *ProvisionJob, cause error) error {
	delete(q.pending, job.OrderID)
	return nil
}

// fakePaypal 内存 PayPal 客户端
type fakePaypal struct {
	token      string
	tokenErr   error
	tokenCalls int

	subs    map[string]*PaypalSubscription
	subErrs map[string]error
}

func newFakePaypal() *fakePaypal {
	return &fakePaypal{
		token:   "test-token",
		subs:    make(map[string]*PaypalSubscription),
		subErrs: make(map[string]error),
	}
}

func (p *fakePaypal) GetAccessToken(ctx context.Context, clientID, clientSecret string, sandbox bool) (string, error) {
	p.tokenCalls++
	if p.tokenErr != nil {
		return "", p.tokenErr
	}
	return p.token, nil
}

func (p *fakePaypal) GetSubscription(ctx context.Context, accessToken, subscriptionID string, sandbox bool) (*PaypalSubscription, error) {
	if err := p.subErrs[subscriptionID]; err != nil {
		return nil, err
	}
	sub, ok := p.subs[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	return sub, nil
}

// fakePanel 内存开服面板
type fakePanel struct {
	serverRef string
	err       error
	calls     []string
}

func (p *fakePanel) ProvisionServer(ctx context.Context, orderID string) (*PanelResult, error) {
	p.calls = append(p.calls, orderID)
	if p.err != nil {
		return nil, p.err
	}
	return &PanelResult{ServerRef: p.serverRef}, nil
}
