package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/grpc_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_client"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/rpc"
)

const (
	minBackoff      = time.Second
	maxBackoff      = 30 * time.Second
	responseTimeout = 10 * time.Second
)

// Runner 参考 delegate：注册、心跳、订阅事件，领取并执行任务后回传结果
type Runner struct {
	*core.BaseComponent
	GRPCClients *grpc_client.GRPCClientComponent  `infra:"dep:grpc_clients?"`
	HTTPClients *http_client.HTTPClientsComponent `infra:"dep:http_clients?"`

	cfg       bizConfig.AgentConfig
	client    *rpc.AgentClient
	executors map[consts.TaskType]Executor
	sem       chan struct{}

	mu      sync.Mutex
	self    *model.Delegate
	running map[string]context.CancelFunc
	aborted map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(cfg bizConfig.AgentConfig) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.AccountID == "" {
		cfg.AccountID = consts.GLOBAL_ACCOUNT_ID
	}
	return &Runner{
		BaseComponent: core.NewBaseComponent(consts.COMP_AGENT_RUNNER, appconsts.COMPONENT_LOGGING),
		cfg:           cfg,
		sem:           make(chan struct{}, cfg.Concurrency),
		running:       map[string]context.CancelFunc{},
		aborted:       map[string]bool{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if err := r.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if r.client == nil {
		if r.GRPCClients == nil {
			_ = r.BaseComponent.Stop(ctx)
			return fmt.Errorf("agent runner requires component %s", appconsts.COMPONENT_GRPC_CLIENTS)
		}
		conn, err := r.GRPCClients.GetClient(r.cfg.GRPCClient)
		if err != nil {
			_ = r.BaseComponent.Stop(ctx)
			return fmt.Errorf("agent grpc client: %w", err)
		}
		r.client = rpc.NewAgentClient(conn)
	}
	if r.executors == nil {
		r.executors = newExecutors(r.cfg.ShellEnabled, r.httpDoer(ctx))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(loopCtx)
	}()
	return nil
}

func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.BaseComponent.Stop(ctx)
}

func (r *Runner) httpDoer(ctx context.Context) HTTPDoer {
	if r.HTTPClients == nil {
		return nil
	}
	var (
		cli *http_client.InstrumentedClient
		err error
	)
	if r.cfg.HTTPClient != "" {
		cli, err = r.HTTPClients.Client(r.cfg.HTTPClient)
	} else {
		cli, err = r.HTTPClients.Default()
	}
	if err != nil {
		logging.Warn(ctx, "http task client unavailable", zap.String("client", r.cfg.HTTPClient), zap.Error(err))
		return nil
	}
	return cli
}

func (r *Runner) run(ctx context.Context) {
	if err := r.register(ctx); err != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.heartbeatLoop(ctx)
	}()
	r.subscribeLoop(ctx)
}

func (r *Runner) descriptor() *model.Delegate {
	host := r.cfg.HostName
	if host == "" {
		host, _ = os.Hostname()
	}
	ip := r.cfg.IP
	if ip == "" {
		ip = localIP()
	}
	var types []consts.TaskType
	for _, t := range r.cfg.SupportedTaskTypes {
		types = append(types, consts.TaskType(t))
	}
	return &model.Delegate{
		AccountID:          r.cfg.AccountID,
		IP:                 ip,
		HostName:           host,
		Description:        r.cfg.Description,
		Version:            r.cfg.Version,
		SupportedTaskTypes: model.NewTaskTypeSet(types...),
	}
}

// register 失败按指数退避重试，直到成功或 ctx 结束
func (r *Runner) register(ctx context.Context) error {
	backoff := minBackoff
	for {
		d, err := r.client.Register(ctx, r.descriptor())
		if err == nil {
			r.mu.Lock()
			r.self = d
			r.mu.Unlock()
			logging.Info(ctx, "delegate registered", zap.String("delegate_id", d.ID), zap.String("account_id", d.AccountID))
			return nil
		}
		logging.Warn(ctx, "delegate register failed", zap.Error(err), zap.Duration("retry_in", backoff))
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

func (r *Runner) identity() (accountID, delegateID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.self == nil {
		return "", ""
	}
	return r.self.AccountID, r.self.ID
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

func (r *Runner) heartbeat(ctx context.Context) {
	accountID, delegateID := r.identity()
	_, err := r.client.Heartbeat(ctx, &rpc.HeartbeatRequest{
		AccountID:               accountID,
		DelegateID:              delegateID,
		CurrentlyExecutingTasks: r.executing(),
	})
	switch {
	case err == nil:
	case status.Code(err) == codes.NotFound:
		logging.Warn(ctx, "delegate record missing, registering again", zap.String("delegate_id", delegateID))
		_ = r.register(ctx)
	default:
		logging.Warn(ctx, "heartbeat failed", zap.String("delegate_id", delegateID), zap.Error(err))
	}
}

func (r *Runner) subscribeLoop(ctx context.Context) {
	backoff := minBackoff
	for ctx.Err() == nil {
		accountID, delegateID := r.identity()
		stream, err := r.client.Subscribe(ctx, &rpc.SubscribeRequest{AccountID: accountID, DelegateID: delegateID})
		if err == nil {
			backoff = minBackoff
			err = r.consume(ctx, stream)
		}
		if ctx.Err() != nil {
			return
		}
		logging.Warn(ctx, "event stream interrupted", zap.Error(err), zap.Duration("retry_in", backoff))
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (r *Runner) consume(ctx context.Context, stream *rpc.EventStream) error {
	for {
		ev, err := stream.Recv()
		if err != nil {
			return err
		}
		r.handle(ctx, ev)
	}
}

func (r *Runner) handle(ctx context.Context, ev *model.BroadcastEvent) {
	switch ev.Kind {
	case model.EVENT_NEW_TASK:
		task := ev.Task
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-r.sem }()
			if err := r.process(ctx, task.AccountID, task.ID); err != nil {
				logging.Error(ctx, "process task failed", zap.String("task_id", task.ID), zap.Error(err))
			}
		}()
	case model.EVENT_ABORT:
		r.abort(ctx, ev.Abort.DelegateTaskID)
	}
}

// process 领取、开始、执行、回传；任一步竞争失败直接放弃
func (r *Runner) process(ctx context.Context, accountID, taskID string) error {
	_, delegateID := r.identity()
	req := &rpc.TaskRequest{AccountID: accountID, DelegateID: delegateID, TaskID: taskID}
	acquired, err := r.client.Acquire(ctx, req)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	if acquired == nil {
		logging.Debug(ctx, "task taken by another delegate", zap.String("task_id", taskID))
		return nil
	}
	task, err := r.client.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if task == nil {
		logging.Debug(ctx, "task no longer startable", zap.String("task_id", taskID))
		return nil
	}

	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if task.TimeoutMs > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutMs)*time.Millisecond)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	r.track(taskID, cancel)
	data := execute(taskCtx, r.executors, task)
	if r.untrack(taskID) {
		data = model.ErrorResponse("task %s aborted", taskID)
	}
	cancel()

	sendCtx, sendCancel := context.WithTimeout(context.WithoutCancel(ctx), responseTimeout)
	defer sendCancel()
	resp := &model.DelegateTaskResponse{AccountID: accountID, Task: task.Ref(), Response: data}
	if err := r.client.SendResponse(sendCtx, resp); err != nil {
		return fmt.Errorf("send response: %w", err)
	}
	logging.Info(ctx, "task finished", zap.String("task_id", taskID), zap.String("kind", string(data.Kind)))
	return nil
}

func (r *Runner) track(taskID string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.running[taskID] = cancel
	r.mu.Unlock()
}

// untrack 返回任务是否被中止
func (r *Runner) untrack(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	aborted := r.aborted[taskID]
	delete(r.running, taskID)
	delete(r.aborted, taskID)
	return aborted
}

func (r *Runner) abort(ctx context.Context, taskID string) {
	r.mu.Lock()
	cancel, ok := r.running[taskID]
	if ok {
		r.aborted[taskID] = true
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	logging.Info(ctx, "aborting running task", zap.String("task_id", taskID))
	cancel()
}

func (r *Runner) executing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return ""
}
