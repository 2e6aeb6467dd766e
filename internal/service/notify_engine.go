package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// HTTPDoer http_clients 中具名客户端的调用面
type HTTPDoer interface {
	Do(ctx context.Context, method, path string, query, headers map[string]string, body, out any) (*http.Response, error)
}

type NotifyCallback func(waitID string, data model.ResponseData)

// NotifyEngine 异步任务的 wait-id 通知：进程内回调、可选 webhook，以及在 TTL 内可轮询的结果。
type NotifyEngine struct {
	*core.BaseComponent
	HTTPClients *http_client.HTTPClientsComponent `infra:"dep:http_clients?"`

	workers    int
	resultTTL  time.Duration
	clientName string
	poster     HTTPDoer

	mu       sync.Mutex
	waiters  map[string][]NotifyCallback
	webhooks map[string]string
	results  map[string]deliveredResult

	jobs   chan webhookJob
	wg     sync.WaitGroup
	cancel context.CancelFunc
	now    func() time.Time
}

type deliveredResult struct {
	data model.ResponseData
	at   time.Time
}

type webhookJob struct {
	url     string
	payload webhookPayload
}

type webhookPayload struct {
	WaitID   string             `json:"wait_id"`
	Response model.ResponseData `json:"response"`
}

func NewNotifyEngine(workers int, resultTTL time.Duration, clientName string) *NotifyEngine {
	if workers <= 0 {
		workers = 4
	}
	if resultTTL <= 0 {
		resultTTL = 10 * time.Minute
	}
	return &NotifyEngine{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_NOTIFY),
		workers:       workers,
		resultTTL:     resultTTL,
		clientName:    clientName,
		waiters:       map[string][]NotifyCallback{},
		webhooks:      map[string]string{},
		results:       map[string]deliveredResult{},
		jobs:          make(chan webhookJob, 256),
		now:           time.Now,
	}
}

func (n *NotifyEngine) Start(ctx context.Context) error {
	if n.IsActive() {
		return nil
	}
	if err := n.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if n.poster == nil && n.HTTPClients != nil {
		if cli, err := n.resolveClient(); err == nil {
			n.poster = cli
		} else {
			logging.Warn(ctx, "notify webhook client unavailable", zap.String("client", n.clientName), zap.Error(err))
		}
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.deliverLoop(loopCtx)
	}
	n.wg.Add(1)
	go n.sweepLoop(loopCtx)
	return nil
}

func (n *NotifyEngine) Stop(ctx context.Context) error {
	if !n.IsActive() {
		return nil
	}
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	return n.BaseComponent.Stop(ctx)
}

func (n *NotifyEngine) resolveClient() (*http_client.InstrumentedClient, error) {
	if n.clientName != "" {
		return n.HTTPClients.Client(n.clientName)
	}
	return n.HTTPClients.Default()
}

// WaitFor 注册进程内回调；结果已送达时立即回调
func (n *NotifyEngine) WaitFor(waitID string, cb NotifyCallback) {
	n.mu.Lock()
	if r, ok := n.results[waitID]; ok {
		n.mu.Unlock()
		cb(waitID, r.data)
		return
	}
	n.waiters[waitID] = append(n.waiters[waitID], cb)
	n.mu.Unlock()
}

// RegisterCallback 结果送达时向 url POST {wait_id, response}
func (n *NotifyEngine) RegisterCallback(waitID, url string) {
	if url == "" {
		return
	}
	n.mu.Lock()
	n.webhooks[waitID] = url
	n.mu.Unlock()
}

func (n *NotifyEngine) Notify(ctx context.Context, waitID string, data model.ResponseData) {
	n.mu.Lock()
	n.results[waitID] = deliveredResult{data: data, at: n.now()}
	callbacks := n.waiters[waitID]
	delete(n.waiters, waitID)
	url, hasHook := n.webhooks[waitID]
	delete(n.webhooks, waitID)
	n.mu.Unlock()

	for _, cb := range callbacks {
		cb(waitID, data)
	}
	if !hasHook {
		return
	}
	job := webhookJob{url: url, payload: webhookPayload{WaitID: waitID, Response: data}}
	select {
	case n.jobs <- job:
	case <-ctx.Done():
		logging.Warn(ctx, "notify webhook not enqueued", zap.String("wait_id", waitID), zap.Error(ctx.Err()))
	}
}

// Discard 丢弃尚未送达的回调与 webhook 登记，用于永远不会产生结果的 wait-id
func (n *NotifyEngine) Discard(waitID string) {
	n.mu.Lock()
	delete(n.waiters, waitID)
	delete(n.webhooks, waitID)
	n.mu.Unlock()
}

// Result 查询已送达的通知
func (n *NotifyEngine) Result(waitID string) (model.ResponseData, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.results[waitID]
	if !ok || n.now().Sub(r.at) >= n.resultTTL {
		return model.ResponseData{}, false
	}
	return r.data, true
}

func (n *NotifyEngine) deliverLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-n.jobs:
			n.deliver(ctx, job)
		}
	}
}

func (n *NotifyEngine) deliver(ctx context.Context, job webhookJob) {
	if n.poster == nil {
		logging.Warn(ctx, "notify webhook skipped, no http client", zap.String("wait_id", job.payload.WaitID))
		return
	}
	if _, err := n.poster.Do(ctx, http.MethodPost, job.url, nil, nil, job.payload, nil); err != nil {
		logging.Error(ctx, "notify webhook failed", zap.String("wait_id", job.payload.WaitID), zap.String("url", job.url), zap.Error(err))
		return
	}
	logging.Debug(ctx, "notify webhook delivered", zap.String("wait_id", job.payload.WaitID))
}

func (n *NotifyEngine) sweepLoop(ctx context.Context) {
	defer n.wg.Done()
	interval := n.resultTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sweep()
		}
	}
}

func (n *NotifyEngine) sweep() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	removed := 0
	for id, r := range n.results {
		if now.Sub(r.at) >= n.resultTTL {
			delete(n.results, id)
			removed++
		}
	}
	return removed
}
